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

import "context"

// Row relies on the metadata store taking a pessimistic row lock
// (SELECT ... FOR UPDATE) on the ownership row inside the transaction. The
// database releases it on commit or rollback
type Row struct{}

func NewRow() *Row {
	return &Row{}
}

func (r *Row) Name() string {
	return StrategyRow
}

func (r *Row) Close() error {
	return nil
}

func (r *Row) WithAccountLock(
	_ context.Context,
	_ Finisher,
	_ Key,
	fn func() error,
) error {
	return fn()
}
