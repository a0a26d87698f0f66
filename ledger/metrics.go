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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	settlements        *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	receipts           *prometheus.CounterVec
}

// newLedgerMetrics registers on promRegistry. A nil registry yields working
// but unregistered collectors
func newLedgerMetrics(promRegistry prometheus.Registerer) *ledgerMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &ledgerMetrics{
		settlements: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "herdledger_settlements_total",
				Help: "settlement requests, by outcome",
			},
			[]string{"outcome"},
		),
		settlementDuration: promautoFactory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "herdledger_settlement_duration_seconds",
				Help:    "time to settle a transaction request",
				Buckets: prometheus.DefBuckets,
			},
		),
		receipts: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "herdledger_receipts_total",
				Help: "receipt archive writes, by result",
			},
			[]string{"result"},
		),
	}
}
