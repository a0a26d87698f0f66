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

package ledger

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/herdledger/database"
)

// Resolver maps the identifier a caller used for a pool, either the pool's
// own ID or the ID of its herd, to the canonical pool ID
type Resolver struct {
	db *database.Database
}

func NewResolver(db *database.Database) *Resolver {
	return &Resolver{db: db}
}

// ResolvePool returns ErrPoolNotFound when neither a pool nor a herd with
// the given ID backs a pool. Queries run inside txn when one is given
func (r *Resolver) ResolvePool(
	_ context.Context,
	txn *database.Txn,
	id string,
) (string, error) {
	poolID, err := r.db.ResolvePoolID(id, txn)
	if err != nil {
		return "", fmt.Errorf("resolve pool %s: %w", id, err)
	}
	if poolID == "" {
		return "", fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return poolID, nil
}
