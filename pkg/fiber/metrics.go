// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package fiber

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	totalWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "number_of_workers",
			Help:      "The total number of workers in a scheduler.",
		}, []string{"name"})
	workingWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "number_of_working_workers",
			Help:      "The number of workers currently running a fiber.",
		}, []string{"name"})
	workingDuration = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "workers_cpu_seconds_total",
			Help:      "Total time workers spent running fibers in seconds.",
		}, []string{"name"})
	runQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "run_queue_length",
			Help:      "The number of runnable fibers waiting for a worker.",
		}, []string{"name"})
	liveFibers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "number_of_fibers",
			Help:      "The number of fibers that have not terminated.",
		}, []string{"name"})
	spawnedFibers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "scheduler",
			Name:      "spawned_fibers_total",
			Help:      "Total number of spawned fibers.",
		}, []string{"name"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(totalWorkers)
	registry.MustRegister(workingWorkers)
	registry.MustRegister(workingDuration)
	registry.MustRegister(runQueueLength)
	registry.MustRegister(liveFibers)
	registry.MustRegister(spawnedFibers)
}
