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
	"time"

	"github.com/blinklabs-io/herdledger/database/models"
	"github.com/blinklabs-io/herdledger/event"
)

const SettlementEventType event.EventType = "ledger.settlement"

// SettlementEvent is published once a settlement unit has committed
type SettlementEvent struct {
	CommittedAt      time.Time          `json:"committedAt"`
	Ownership        *models.Ownership  `json:"ownership"`
	Transaction      models.Transaction `json:"transaction"`
	Delta            int64              `json:"delta"`
	OwnershipUpdated bool               `json:"ownershipUpdated"`
}

// EventKey keeps all events of one account on the same message partition
func (e SettlementEvent) EventKey() string {
	return e.Transaction.UserID + ":" + e.Transaction.PoolID
}
