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

// Package scaling holds the tracked per-frontend state and the decision
// engine that turns smoothed rate signals into replica targets.
package scaling

import (
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Fedosin/lbautoscaler/api"
	"github.com/Fedosin/lbautoscaler/transmitter"
	"github.com/Fedosin/lbautoscaler/window"
)

const (
	// rateColumn is the feed column holding the current request rate.
	rateColumn = "rate"

	// queueColumn is the feed column holding the current queue depth.
	queueColumn = "qcur"
)

// entry is the tracked state for one monitored key. Entries are created
// once at startup and live for the whole process. Each field has exactly
// one writer: the window is fed by Aggregate, current by RefreshInstances,
// target and pastThreshold by Decide.
type entry struct {
	key   api.MonitoredKey
	appID string

	// window holds the recent combined rate+queue observations.
	window *window.SlidingWindow

	// current is the replica count last observed at the orchestrator.
	current int32

	// target is the replica count last computed by the decision engine.
	target int32

	// pastThreshold counts consecutive ticks outside the hysteresis band.
	pastThreshold int
}

// Tracker owns the full set of tracked entries and the per-application
// last-scale timestamps.
type Tracker struct {
	cfg      *api.Config
	entries  map[api.MonitoredKey]*entry
	reporter transmitter.Reporter
	logger   *zap.SugaredLogger

	// lastScaled is keyed by application ID so sibling frontends of one
	// application share a cooldown.
	lastScaled map[string]time.Time
}

// NewTracker creates a Tracker with one entry per configured monitored key.
func NewTracker(cfg *api.Config, reporter transmitter.Reporter, logger *zap.SugaredLogger) *Tracker {
	if reporter == nil {
		reporter = transmitter.NewNoOpReporter()
	}

	entries := make(map[api.MonitoredKey]*entry, len(cfg.Apps))
	for _, a := range cfg.Apps {
		key := api.MonitoredKey(a)
		entries[key] = &entry{
			key:    key,
			appID:  key.AppID(),
			window: window.New(cfg.Samples),
		}
	}

	return &Tracker{
		cfg:        cfg,
		entries:    entries,
		reporter:   reporter,
		logger:     logger,
		lastScaled: make(map[string]time.Time),
	}
}

// Aggregate merges one tick's host samples into the tracked windows. For
// each entry the rate and queue-depth counters are summed across every
// host that served the key; a host without the row contributes nothing.
// If no host served the key at all, the window is left untouched for this
// tick rather than being fed a zero.
func (t *Tracker) Aggregate(samples []api.HostSample) {
	for key, e := range t.entries {
		combined := 0.0
		seen := false
		for _, hs := range samples {
			row, ok := hs.Rows[key]
			if !ok {
				continue
			}
			seen = true
			combined += t.counter(row, rateColumn) + t.counter(row, queueColumn)
		}
		if !seen {
			continue
		}
		e.window.Record(combined)
		t.reporter.RecordSmoothedRate(key, e.window.Average())
	}
}

// RefreshInstances overwrites each entry's current replica count from the
// orchestrator's application list. Entries whose application is absent
// from the list keep their last known count, so a transient orchestrator
// read cannot trigger a spurious scale to one.
func (t *Tracker) RefreshInstances(apps map[string]int32) {
	for _, e := range t.entries {
		if n, ok := apps[e.appID]; ok {
			e.current = n
		}
	}
}

// Keys returns the tracked monitored keys in sorted order.
func (t *Tracker) Keys() []api.MonitoredKey {
	keys := make([]api.MonitoredKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Average returns the current smoothed average for a monitored key.
func (t *Tracker) Average(key api.MonitoredKey) float64 {
	if e, ok := t.entries[key]; ok {
		return e.window.Average()
	}
	return 0
}

// counter parses a non-negative integer feed column. Absent or malformed
// values count as zero; the row itself was already validated as a
// frontend row by the sampler.
func (t *Tracker) counter(row api.Row, column string) float64 {
	raw, ok := row[column]
	if !ok || raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		t.logger.Debugw("ignoring malformed counter", "column", column, "value", raw)
		return 0
	}
	return v
}
