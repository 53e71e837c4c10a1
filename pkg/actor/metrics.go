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

package actor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	liveActors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "number_of_actors",
			Help:      "The number of live actors in an actor system.",
		}, []string{"name"})
	actorExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "exits_total",
			Help:      "Total number of terminated actors.",
		}, []string{"name", "reason"})
	receivedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "received_messages_total",
			Help:      "Total number of messages matched by a receive.",
		}, []string{"name"})
	skippedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "skipped_messages_total",
			Help:      "Total number of messages deferred by a receive handler.",
		}, []string{"name"})
	receiveTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "receive_timeouts_total",
			Help:      "Total number of receives that timed out.",
		}, []string{"name"})
	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiactor",
			Subsystem: "actor",
			Name:      "dead_letters_total",
			Help:      "Total number of messages absorbed without delivery.",
		}, []string{"name"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(liveActors)
	registry.MustRegister(actorExits)
	registry.MustRegister(receivedMessages)
	registry.MustRegister(skippedMessages)
	registry.MustRegister(receiveTimeouts)
	registry.MustRegister(deadLetters)
}
