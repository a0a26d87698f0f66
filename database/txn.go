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
	"context"
	"fmt"
	"sync"

	"github.com/blinklabs-io/herdledger/database/types"
	"gorm.io/gorm"
)

// Txn is a unit of work against the metadata store. Read-only handles run
// queries on the shared pool; read-write handles own a database transaction
// until Commit or Rollback.
type Txn struct {
	ctx         context.Context
	db          *Database
	metadataTxn *gorm.DB
	beginErr    error
	onCommit    []func()
	onFinish    []func()
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

var _ types.Txn = (*Txn)(nil)

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(ctx context.Context, readWrite bool) *Txn {
	return NewTxn(ctx, d, readWrite)
}

func NewTxn(ctx context.Context, db *Database, readWrite bool) *Txn {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Txn{ctx: ctx, db: db, readWrite: readWrite}
	if !readWrite {
		return t
	}
	ms := db.Metadata()
	if ms == nil {
		t.beginErr = types.ErrNoStoreAvailable
		return t
	}
	tx := ms.Transaction(ctx)
	if tx == nil {
		t.beginErr = types.ErrNoStoreAvailable
		return t
	}
	if tx.Error != nil {
		t.beginErr = fmt.Errorf("begin transaction: %w", tx.Error)
		return t
	}
	t.metadataTxn = tx
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Context returns the context the transaction was started with
func (t *Txn) Context() context.Context {
	return t.ctx
}

// ReadWrite reports whether the handle owns a database transaction
func (t *Txn) ReadWrite() bool {
	return t.readWrite
}

// Metadata returns the underlying metadata transaction handle. It is nil for
// read-only handles, which the stores treat as "use the shared pool"
func (t *Txn) Metadata() *gorm.DB {
	if t == nil {
		return nil
	}
	return t.metadataTxn
}

// OnCommit registers fn to run after a successful commit
func (t *Txn) OnCommit(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.onCommit = append(t.onCommit, fn)
}

// OnFinish registers fn to run once the transaction is committed or rolled
// back. Hooks run in reverse registration order
func (t *Txn) OnFinish(fn func()) {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		fn()
		return
	}
	t.onFinish = append(t.onFinish, fn)
	t.lock.Unlock()
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if t.beginErr != nil {
		t.Release()
		return t.beginErr
	}
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		return types.ErrTxnFinished
	}
	if t.beginErr != nil {
		finish := t.finish()
		t.lock.Unlock()
		finish()
		return t.beginErr
	}
	var err error
	if t.metadataTxn != nil {
		err = t.metadataTxn.Commit().Error
		if err != nil {
			// Most engines already rolled back, this frees the connection
			_ = t.metadataTxn.Rollback()
		}
	}
	finish := t.finish()
	var commitHooks []func()
	if err == nil {
		commitHooks = t.onCommit
	}
	t.onCommit = nil
	t.lock.Unlock()
	finish()
	for _, fn := range commitHooks {
		fn()
	}
	return err
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		return nil
	}
	var err error
	if t.metadataTxn != nil {
		err = t.metadataTxn.Rollback().Error
	}
	finish := t.finish()
	t.onCommit = nil
	t.lock.Unlock()
	finish()
	if err != nil {
		return fmt.Errorf("metadata rollback: %w", err)
	}
	return nil
}

// finish marks the transaction done and returns the OnFinish hooks to run
// once the mutex is released. Caller must hold t.lock
func (t *Txn) finish() func() {
	t.finished = true
	hooks := t.onFinish
	t.onFinish = nil
	return func() {
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	}
}

// Release releases transaction resources. For read-write transactions, this
// is equivalent to Rollback. Errors are logged but not returned, making this
// safe for deferred calls.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
