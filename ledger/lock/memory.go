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

package lock

import (
	"context"
	"fmt"
	"sync"
)

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// Memory is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits on them
type Memory struct {
	entries map[Key]*memoryEntry
	mu      sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[Key]*memoryEntry),
	}
}

func (m *Memory) Name() string {
	return StrategyMemory
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) ref(key Key) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Memory) unref(key Key, e *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Held returns the number of keys currently held or waited on
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) WithAccountLock(
	ctx context.Context,
	txn Finisher,
	key Key,
	fn func() error,
) error {
	e := m.ref(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, e)
		return fmt.Errorf("%w: %s: %w", ErrLockUnavailable, key, ctx.Err())
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			m.unref(key, e)
		})
	}
	return holdUntilFinish(txn, release, fn)
}
