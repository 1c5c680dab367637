// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package collector

import (
	"time"

	"github.com/giadasql/IoT-Project/types"
	"github.com/prometheus/client_golang/prometheus"
)

var stateGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "state",
		Help:      "Current state of the collector (1 for the active state).",
	}, []string{"state"},
)

var pollCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "sensor_reads_total",
		Help:      "Total number of sensor reads.",
	}, []string{"role", "result"},
)

var pollDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "sensor_read_duration_seconds",
		Help:      "Duration of sensor reads.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"role"},
)

var publishCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "snapshots_published_total",
		Help:      "Total number of published snapshots.",
	}, []string{"result"},
)

var discoveryCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "config_responses_total",
		Help:      "Total number of handled configuration responses.",
	}, []string{"result"},
)

var configRequests = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "bin",
		Subsystem: "collector",
		Name:      "config_requests_total",
		Help:      "Total number of published configuration requests.",
	},
)

func registerState(state State) {
	for _, s := range States {
		if s == state {
			stateGauge.WithLabelValues(s.String()).Set(1)
		} else {
			stateGauge.WithLabelValues(s.String()).Set(0)
		}
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func registerRead(role types.Role, reading types.Reading, duration time.Duration) {
	pollCounter.WithLabelValues(role.Key(), result(reading.Succeeded)).Inc()
	pollDuration.WithLabelValues(role.Key()).Observe(duration.Seconds())
}

func registerPublish(err error) {
	publishCounter.WithLabelValues(result(err == nil)).Inc()
}

func init() {
	prometheus.MustRegister(stateGauge)
	prometheus.MustRegister(pollCounter)
	prometheus.MustRegister(pollDuration)
	prometheus.MustRegister(publishCounter)
	prometheus.MustRegister(discoveryCounter)
	prometheus.MustRegister(configRequests)
}
