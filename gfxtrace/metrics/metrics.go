// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the prometheus metrics of capture and replay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	kind   = "kind"
	mode   = "mode"
	reason = "reason"
)

var (
	// ChunksRecorded is the number of chunks written while capturing.
	ChunksRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gfxtrace_capture_chunks_total",
		Help: "Number of chunks recorded during capture",
	}, []string{kind})

	// CaptureDuration is how long finishing a capture took.
	CaptureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gfxtrace_capture_finish_seconds",
		Help:    "Time spent writing a capture",
		Buckets: []float64{0.01, 0.1, 1, 5, 10, 60},
	})

	// CaptureWarnings is the number of capture-time problems that did not
	// stop the capture.
	CaptureWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gfxtrace_capture_warnings_total",
		Help: "Number of warnings raised during capture",
	}, []string{reason})

	// ChunksDecoded is the number of chunks read while loading traces.
	ChunksDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gfxtrace_replay_chunks_decoded_total",
		Help: "Number of chunks decoded while loading traces",
	}, []string{kind})

	// ChunksSkipped is the number of chunks skipped during replay.
	ChunksSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gfxtrace_replay_chunks_skipped_total",
		Help: "Number of chunks skipped during load or replay",
	}, []string{reason})

	// ReplayFailures is the number of replays that failed.
	ReplayFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gfxtrace_replay_failures_total",
		Help: "Number of failed replays",
	}, []string{reason})

	// ReplayLatency is how long each replay took.
	ReplayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gfxtrace_replay_latency_seconds",
		Help:    "Replay latency in seconds",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 5, 10},
	}, []string{mode})
)

func init() {
	prometheus.MustRegister(
		ChunksRecorded,
		CaptureDuration,
		CaptureWarnings,
		ChunksDecoded,
		ChunksSkipped,
		ReplayFailures,
		ReplayLatency,
	)
}

// Reset clears every metric.
func Reset() {
	ChunksRecorded.Reset()
	CaptureWarnings.Reset()
	ChunksDecoded.Reset()
	ChunksSkipped.Reset()
	ReplayFailures.Reset()
	ReplayLatency.Reset()
}
