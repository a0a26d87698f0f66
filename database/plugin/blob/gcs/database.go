// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/herdledger/database/sops"
	"github.com/blinklabs-io/herdledger/database/types"
	"google.golang.org/api/option"
)

// BlobStoreGCS stores data in a Google Cloud Storage bucket. Values are
// SOPS-encrypted when a KMS key is configured in the environment.
type BlobStoreGCS struct {
	logger          *GcsLogger
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	timeout         time.Duration
}

// New creates a GCS blob store from a 'gcs://<bucket>[/<prefix>]' URL
func New(url string, logger *slog.Logger) (*BlobStoreGCS, error) {
	bucketName, prefix, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(prefix),
		WithLogger(logger),
	)
}

func parseURL(url string) (string, string, error) {
	after, ok := strings.CutPrefix(url, "gcs://")
	if !ok || after == "" {
		return "", "", errors.New(
			"gcs blob: bucket not set (expected 'gcs://<bucket>')",
		)
	}
	bucketName, prefix, _ := strings.Cut(after, "/")
	return bucketName, strings.Trim(prefix, "/"), nil
}

// NewWithOptions creates a new GCS-backed blob store using options
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = NewGcsLogger(nil)
	}
	return db, nil
}

// SetLogger replaces the logger before Start() is called
func (d *BlobStoreGCS) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = NewGcsLogger(logger)
	}
}

// ValidateCredentials checks that a configured credentials file exists
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("failed to read GCS credentials file: %w", err)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreGCS) Start() error {
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	d.logger.Infof("gcs blob: using bucket %s", d.bucketName)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

func (d *BlobStoreGCS) objectName(key []byte) string {
	if d.prefix == "" {
		return string(key)
	}
	return d.prefix + "/" + string(key)
}

// Get returns the value stored under key
func (d *BlobStoreGCS) Get(ctx context.Context, key []byte) ([]byte, error) {
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	r, err := d.bucket.Object(d.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs blob: get %q failed: %v", key, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return sops.MaybeDecrypt(data)
}

// Set stores val under key
func (d *BlobStoreGCS) Set(ctx context.Context, key []byte, val []byte) error {
	if d.bucket == nil {
		return types.ErrBlobStoreUnavailable
	}
	data, err := sops.MaybeEncrypt(val)
	if err != nil {
		return fmt.Errorf("gcs blob: encrypt failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	w := d.bucket.Object(d.objectName(key)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		d.logger.Errorf("gcs blob: put %q failed: %v", key, err)
		return err
	}
	if err := w.Close(); err != nil {
		d.logger.Errorf("gcs blob: put %q failed: %v", key, err)
		return err
	}
	d.logger.Debugf("gcs blob: put %q ok (%d bytes)", key, len(data))
	return nil
}

// Delete removes key. Deleting a missing key is not an error
func (d *BlobStoreGCS) Delete(ctx context.Context, key []byte) error {
	if d.bucket == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.bucket.Object(d.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}
