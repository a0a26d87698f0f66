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

package blob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/herdledger/database/plugin"

	// Register blob plugins
	_ "github.com/blinklabs-io/herdledger/database/plugin/blob/aws"
	_ "github.com/blinklabs-io/herdledger/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/herdledger/database/plugin/blob/gcs"
)

// BlobStore is a key/value store for settlement receipts and other opaque
// documents. Get returns types.ErrBlobKeyNotFound for a missing key.
type BlobStore interface {
	Close() error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key []byte, val []byte) error
	Delete(ctx context.Context, key []byte) error
}

type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// New returns the started blob plugin selected by name
func New(pluginName string, logger *slog.Logger) (BlobStore, error) {
	p := plugin.GetPlugin(plugin.PluginTypeBlob, pluginName)
	if p == nil {
		return nil, fmt.Errorf("blob plugin '%s' not found", pluginName)
	}
	if ls, ok := p.(loggerSetter); ok && logger != nil {
		ls.SetLogger(logger)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start blob plugin '%s': %w",
			pluginName,
			err,
		)
	}
	blobStore, ok := p.(BlobStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}
	return blobStore, nil
}
