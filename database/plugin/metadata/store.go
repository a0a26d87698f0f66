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

package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/database/plugin"
	"github.com/blinklabs-io/herdledger/database/types"
	"gorm.io/gorm"

	// Register metadata plugins
	_ "github.com/blinklabs-io/herdledger/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/herdledger/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/herdledger/database/plugin/metadata/sqlite"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	Dialect() string
	Migrate() error
	Ping(context.Context) error
	SupportsRowLocking() bool
	Transaction(context.Context) *gorm.DB

	// Directory
	GetUser(string, *gorm.DB) (*models.User, error)
	SetUser(*models.User, *gorm.DB) error
	GetHerd(string, *gorm.DB) (*models.Herd, error)
	SetHerd(*models.Herd, *gorm.DB) error
	UpdateHerd(
		string, // herdId
		map[string]any,
		*gorm.DB,
	) (bool, error)
	SetPool(*models.TokenPool, *gorm.DB) error
	ResolvePoolID(string, *gorm.DB) (string, error)
	GetPoolView(string, *gorm.DB) (*models.PoolView, error)
	GetPoolViews(*gorm.DB) ([]models.PoolView, error)

	// Ledger state
	GetOwnership(
		string, // userId
		string, // poolId
		bool, // forUpdate
		*gorm.DB,
	) (*models.Ownership, error)
	CreateOwnership(*models.Ownership, *gorm.DB) (bool, error)
	SetOwnershipAmount(
		string, // ownershipId
		int64, // amount
		*gorm.DB,
	) error
	GetUserOwnership(string, *gorm.DB) ([]models.UserOwnershipView, error)
	GetPoolOwnership(string, *gorm.DB) ([]models.PoolOwnershipView, error)

	// Transaction log
	CreateTransaction(*models.Transaction, *gorm.DB) error
	GetTransaction(string, *gorm.DB) (*models.Transaction, error)
	GetTransactionByIdempotencyKey(
		string, // userId
		string, // key
		*gorm.DB,
	) (*models.Transaction, error)
	GetUserTransactions(
		string, // userId
		types.ListOptions,
		*gorm.DB,
	) ([]models.TransactionView, error)
	GetPoolTransactions(
		string, // poolId
		types.ListOptions,
		*gorm.DB,
	) ([]models.PoolTransactionView, error)
}

type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// New returns the started metadata plugin selected by name
func New(pluginName string, logger *slog.Logger) (MetadataStore, error) {
	p := plugin.GetPlugin(plugin.PluginTypeMetadata, pluginName)
	if p == nil {
		return nil, fmt.Errorf("metadata plugin '%s' not found", pluginName)
	}
	if ls, ok := p.(loggerSetter); ok {
		ls.SetLogger(logger)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start metadata plugin '%s': %w",
			pluginName,
			err,
		)
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
