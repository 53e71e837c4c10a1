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

package bench

import (
	"io"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiactor/pkg/actor"
	"github.com/pingcap/tiactor/pkg/channel"
	"github.com/pingcap/tiactor/pkg/fiber"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

const metricsPrefix = "tiactor_"

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollections(collectors.GoRuntimeMemStatsCollection)))

	fiber.InitMetrics(registry)
	actor.InitMetrics(registry)
	channel.InitMetrics(registry)
}

// dumpMetrics writes the runtime metrics in the text exposition format.
func dumpMetrics(w io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return errors.Trace(err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), metricsPrefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
