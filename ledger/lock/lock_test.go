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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTxn collects OnFinish hooks until finish is called
type fakeTxn struct {
	hooks []func()
	mu    sync.Mutex
}

func (f *fakeTxn) OnFinish(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeTxn) finish() {
	f.mu.Lock()
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

var testKey = Key{UserID: "user-1", PoolID: "pool-1"}

// exerciseMutualExclusion runs workers on one key and checks that no two
// critical sections overlap
func exerciseMutualExclusion(t *testing.T, l Locker, workers int) {
	t.Helper()
	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn := &fakeTxn{}
			err := l.WithAccountLock(t.Context(), txn, testKey, func() error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			txn.finish()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestNewStrategies(t *testing.T) {
	l, err := New(Config{Strategy: "row"})
	require.NoError(t, err)
	assert.Equal(t, StrategyRow, l.Name())
	l, err = New(Config{Strategy: ""})
	require.NoError(t, err)
	assert.Equal(t, StrategyMemory, l.Name())
	_, err = New(Config{Strategy: "zookeeper"})
	require.Error(t, err)
}

func TestMemoryMutualExclusion(t *testing.T) {
	m := NewMemory()
	exerciseMutualExclusion(t, m, 10)
	assert.Zero(t, m.Held())
}

func TestMemoryHeldUntilFinish(t *testing.T) {
	m := NewMemory()
	txn := &fakeTxn{}
	require.NoError(t, m.WithAccountLock(t.Context(), txn, testKey, func() error {
		return nil
	}))
	// fn returned but the transaction is still open
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := m.WithAccountLock(ctx, nil, testKey, func() error {
		return nil
	})
	require.ErrorIs(t, err, ErrLockUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A different account is not blocked
	other := Key{UserID: "user-1", PoolID: "pool-2"}
	require.NoError(t, m.WithAccountLock(t.Context(), nil, other, func() error {
		return nil
	}))

	txn.finish()
	require.NoError(t, m.WithAccountLock(t.Context(), nil, testKey, func() error {
		return nil
	}))
	assert.Zero(t, m.Held())
}

func TestMemoryPropagatesFnError(t *testing.T) {
	m := NewMemory()
	errBoom := errors.New("boom")
	err := m.WithAccountLock(t.Context(), nil, testKey, func() error {
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, m.Held())
}

func TestRowRunsFn(t *testing.T) {
	called := false
	require.NoError(t, NewRow().WithAccountLock(t.Context(), nil, testKey, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisWithClient(client, RedisConfig{
		Expiry:     5 * time.Second,
		Tries:      200,
		RetryDelay: time.Millisecond,
	}, nil)
	return mr, r
}

func TestRedisMutualExclusion(t *testing.T) {
	_, r := newTestRedis(t)
	exerciseMutualExclusion(t, r, 5)
}

func TestRedisHeldUntilFinish(t *testing.T) {
	mr, r := newTestRedis(t)
	txn := &fakeTxn{}
	require.NoError(t, r.WithAccountLock(t.Context(), txn, testKey, func() error {
		return nil
	}))
	assert.True(t, mr.Exists(RedisKeyPrefix+testKey.String()))

	impatient := NewRedisWithClient(r.client, RedisConfig{
		Tries:      1,
		RetryDelay: time.Millisecond,
	}, nil)
	err := impatient.WithAccountLock(t.Context(), nil, testKey, func() error {
		return nil
	})
	require.ErrorIs(t, err, ErrLockUnavailable)

	txn.finish()
	assert.False(t, mr.Exists(RedisKeyPrefix+testKey.String()))
	require.NoError(t, impatient.WithAccountLock(t.Context(), nil, testKey, func() error {
		return nil
	}))
}

func TestNewRedisPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedis(RedisConfig{Addr: addr}, nil)
	require.Error(t, err)
}

func TestNewRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := New(Config{Strategy: "redis", Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.Equal(t, StrategyRedis, l.Name())
	require.NoError(t, l.Close())
}
