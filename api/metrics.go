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

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type apiMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newAPIMetrics(promRegistry prometheus.Registerer) *apiMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &apiMetrics{
		requests: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "herdledger_api_requests_total",
				Help: "HTTP requests, by route and status code",
			},
			[]string{"route", "code"},
		),
		duration: promautoFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "herdledger_api_request_duration_seconds",
				Help:    "HTTP request latency, by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records a request under the pattern that served it. Requests
// under /api/ are labelled with the nested mux pattern
func (m *apiMetrics) instrument(mux *http.ServeMux, api *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		_, route := mux.Handler(r)
		if route == "/api/" {
			_, route = api.Handler(r)
		}
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
