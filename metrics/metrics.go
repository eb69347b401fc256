// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metrics holds the process-wide prometheus registry and the
// counters/histograms the pipeline and store packages update as they work.
// There is no gRPC surface in this module, so unlike the wider project's
// metrics package this one carries no grpc-prometheus interceptor metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ObjectStore"

var Registry = prometheus.NewRegistry()

var (
	// OpsApplied counts ops the pipeline has finished applying, by result.
	OpsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "ops_applied_total",
		Help:      "Ops applied by the worker pool, by result.",
	}, []string{"result"})

	// OpApplyDuration observes wall-clock time spent applying one op's
	// full transaction list, including the backend commit.
	OpApplyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "op_apply_duration_seconds",
		Help:      "Time to apply and commit one op's transaction list.",
		Buckets:   prometheus.DefBuckets,
	})

	// TransactionsDecoded counts op-stream instructions dispatched by the
	// decoder, by op code name.
	TransactionsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decode",
		Name:      "instructions_total",
		Help:      "Transaction op-stream instructions dispatched, by op code.",
	}, []string{"op"})

	// KVReadBytes and KVWriteBytes track bytes moved across the rate
	// limiter at the store's KV read/write boundary.
	KVReadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kv",
		Name:      "read_bytes_total",
		Help:      "Bytes read from the KV backend through the rate limiter.",
	})
	KVWriteBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kv",
		Name:      "write_bytes_total",
		Help:      "Bytes written to the KV backend through the rate limiter.",
	})

	// FatalDecodeErrors counts how many times the decoder's caller had to
	// terminate the process after a structured transaction dump.
	FatalDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decode",
		Name:      "fatal_errors_total",
		Help:      "Fatal decode errors that triggered process termination.",
	})
)

func init() {
	Registry.MustRegister(
		OpsApplied,
		OpApplyDuration,
		TransactionsDecoded,
		KVReadBytes,
		KVWriteBytes,
		FatalDecodeErrors,
	)
}
