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

package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/herdledger/database/plugin/blob"
	"github.com/blinklabs-io/herdledger/database/plugin/blob/badger"
	"github.com/blinklabs-io/herdledger/database/plugin/metadata"
	"github.com/blinklabs-io/herdledger/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultMetadataPlugin = "sqlite"
	DefaultBlobPlugin     = "badger"
)

// Config holds the storage settings. An empty DataDir with the default
// plugins gives a fully in-memory database
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	DataDir        string
	MetadataPlugin string
	BlobPlugin     string
}

type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	dataDir  string
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance. The sqlite and badger plugins are
// built directly from the config so that DataDir is honored; any other
// plugin is taken from the plugin registry with its configured options
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataPlugin := cfg.MetadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = DefaultMetadataPlugin
	}
	blobPlugin := cfg.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = DefaultBlobPlugin
	}
	var metadataDb metadata.MetadataStore
	var err error
	if metadataPlugin == "sqlite" {
		metadataDb, err = sqlite.New(cfg.DataDir, logger, cfg.PromRegistry)
	} else {
		metadataDb, err = metadata.New(metadataPlugin, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	var blobDb blob.BlobStore
	if blobPlugin == "badger" {
		blobDb, err = badger.New(
			badger.WithDataDir(cfg.DataDir),
			badger.WithLogger(logger),
		)
	} else {
		blobDb, err = blob.New(blobPlugin, logger)
	}
	if err != nil {
		_ = metadataDb.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return NewWithStores(logger, metadataDb, blobDb, cfg.DataDir), nil
}

// NewWithStores wraps already started stores
func NewWithStores(
	logger *slog.Logger,
	metadataDb metadata.MetadataStore,
	blobDb blob.BlobStore,
	dataDir string,
) *Database {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Database{
		logger:   logger,
		metadata: metadataDb,
		blob:     blobDb,
		dataDir:  dataDir,
	}
}
