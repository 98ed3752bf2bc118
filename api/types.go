/*
Copyright 2025 The lbautoscaler Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api contains the API types shared across the autoscaler packages.
package api

import (
	"strings"
	"time"
)

// MonitoredKey identifies one load-balancer-visible frontend, structurally
// "<application>_<port>". Several keys may front the same orchestrator
// application on different ports.
type MonitoredKey string

// AppID returns the orchestrator-level application identifier, i.e. the
// key's prefix before the final "_<port>" separator. Keys without a port
// suffix map to themselves.
func (k MonitoredKey) AppID() string {
	s := string(k)
	if i := strings.LastIndex(s, "_"); i > 0 {
		return s[:i]
	}
	return s
}

// Row is one parsed stats-feed record for a frontend, projected as a
// mapping from header column name to the raw string value.
type Row map[string]string

// HostSample holds the rows one load-balancer host served for the
// monitored key set during a single tick.
type HostSample struct {
	// Host is the concrete address the feed was fetched from.
	Host string

	// Rows maps each monitored key present in the feed to its row.
	Rows map[MonitoredKey]Row
}

// Decision is a single scaling decision produced by one tick, at most one
// per application.
type Decision struct {
	// AppID is the orchestrator application to scale.
	AppID string

	// Instances is the replica count to set.
	Instances int32

	// Current is the replica count observed when the decision was made.
	Current int32
}

// Config holds the complete controller configuration.
type Config struct {
	// Marathon is the orchestrator base URL. Default is http://localhost:8080.
	Marathon string

	// HAProxy is the list of load-balancer base URLs to poll. Each URL's
	// host may resolve to several concrete addresses; all of them are
	// polled and merged. Default is http://localhost:80.
	HAProxy []string

	// StatsPath is the path of the delimited stats feed on each
	// load-balancer host. Default is "/haproxy?stats;csv".
	StatsPath string

	// Interval is the duration of one control tick. Fractional seconds
	// are allowed. Default is 60s.
	Interval time.Duration

	// Samples is the sliding window length, in ticks, over which the rate
	// signal is averaged. Default is 10.
	Samples int

	// Cooldown is the multiplier applied to Interval to derive the
	// minimum quiet period after a scale action. The full cooldown is
	// cooldown*interval + interval*samples. Default is 5.
	Cooldown int

	// TargetRPS is the requests-per-second each instance should carry.
	// Default is 1000.
	TargetRPS float64

	// Apps is the set of monitored keys to track. Required.
	Apps []string

	// ThresholdPercent is the relative deviation of the per-instance rate
	// from TargetRPS below which no scaling occurs. Default is 0.5.
	ThresholdPercent float64

	// ThresholdInstances is the absolute instance-count gap below which no
	// scaling occurs. Both thresholds must be crossed to leave the
	// hysteresis band. Default is 3.
	ThresholdInstances int32

	// IntervalsPastThreshold is the number of consecutive ticks the signal
	// must stay outside the hysteresis band before a scale is issued.
	// Default is 3.
	IntervalsPastThreshold int

	// MinInstances is the lower bound on any target replica count.
	// Default is 1.
	MinInstances int32

	// MaxInstances is the upper bound on any target replica count.
	// 0 means unlimited. Default is 0.
	MaxInstances int32

	// RequestTimeout bounds every HTTP call to a collaborator so one
	// unreachable host cannot stall a tick. Default is 10s.
	RequestTimeout time.Duration

	// DryRun logs decisions without issuing orchestrator updates.
	// Default is false.
	DryRun bool
}
