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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/herdledger/database/sops"
	"github.com/blinklabs-io/herdledger/database/types"
)

// BlobStoreS3 stores data in an AWS S3 (or S3-compatible) bucket
type BlobStoreS3 struct {
	logger   *S3Logger
	client   *s3.Client
	bucket   string
	prefix   string
	region   string
	endpoint string
	timeout  time.Duration
}

// New creates an S3 blob store from an 's3://<bucket>[/<prefix>]' URL
func New(url string, logger *slog.Logger) (*BlobStoreS3, error) {
	bucket, prefix, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(
		WithBucket(bucket),
		WithPrefix(prefix),
		WithLogger(logger),
	)
}

func parseURL(url string) (string, string, error) {
	after, ok := strings.CutPrefix(url, "s3://")
	if !ok || after == "" {
		return "", "", errors.New(
			"s3 blob: bucket not set (expected 's3://<bucket>[/<prefix>]')",
		)
	}
	bucket, prefix, _ := strings.Cut(after, "/")
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewWithOptions creates a new S3-backed blob store using options
func NewWithOptions(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	d := &BlobStoreS3{
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = NewS3Logger(nil)
	}
	return d, nil
}

// SetLogger replaces the logger before Start() is called
func (d *BlobStoreS3) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = NewS3Logger(logger)
	}
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreS3) Start() error {
	if d.bucket == "" {
		return errors.New("s3 blob: bucket not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			// S3-compatible services rarely support virtual-host addressing
			o.UsePathStyle = true
		}
	})
	d.logger.Infof("s3 blob: using bucket %s prefix %q", d.bucket, d.prefix)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreS3) Stop() error {
	return d.Close()
}

// Close releases the client. The SDK holds no long-lived connections
func (d *BlobStoreS3) Close() error {
	d.client = nil
	return nil
}

func (d *BlobStoreS3) fullKey(key []byte) string {
	if d.prefix == "" {
		return string(key)
	}
	return d.prefix + "/" + string(key)
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

// Get returns the value stored under key
func (d *BlobStoreS3) Get(ctx context.Context, key []byte) ([]byte, error) {
	if d.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("s3 blob: get %q failed: %v", key, err)
		return nil, err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return sops.MaybeDecrypt(data)
}

// Set stores val under key
func (d *BlobStoreS3) Set(ctx context.Context, key []byte, val []byte) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	data, err := sops.MaybeEncrypt(val)
	if err != nil {
		return fmt.Errorf("s3 blob: encrypt failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.fullKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		d.logger.Errorf("s3 blob: put %q failed: %v", key, err)
		return err
	}
	d.logger.Debugf("s3 blob: put %q ok (%d bytes)", key, len(data))
	return nil
}

// Delete removes key
func (d *BlobStoreS3) Delete(ctx context.Context, key []byte) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return err
	}
	return nil
}
