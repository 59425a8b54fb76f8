// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cmp_client"

// Metrics groups the Prometheus instrumentation a driven session emits.
type Metrics struct {
	Transactions *prometheus.CounterVec
	PollRounds   prometheus.Counter
	Duration     prometheus.Histogram
}

// NewMetrics registers (or, if already present, looks up) the session
// metrics against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Transactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total CMP transactions, labeled by body type and outcome.",
		}, []string{"body_type", "outcome"}),
		PollRounds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_rounds_total",
			Help:      "Total pollReq/pollRep rounds across all transactions.",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Wall-clock duration of a completed CMP transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
