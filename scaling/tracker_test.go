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

package scaling

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Fedosin/lbautoscaler/api"
)

func testConfig(apps ...string) *api.Config {
	return &api.Config{
		Interval:               time.Second,
		Samples:                10,
		Cooldown:               5,
		TargetRPS:              1000,
		Apps:                   apps,
		ThresholdPercent:       0.5,
		ThresholdInstances:     3,
		IntervalsPastThreshold: 3,
		MinInstances:           1,
	}
}

func newTestTracker(cfg *api.Config, reporter *recordingReporter) *Tracker {
	if reporter == nil {
		reporter = &recordingReporter{}
	}
	return NewTracker(cfg, reporter, zap.NewNop().Sugar())
}

// recordingReporter captures withheld-scale reports.
type recordingReporter struct {
	intents []string
}

func (r *recordingReporter) RecordSmoothedRate(key api.MonitoredKey, value float64) {}

func (r *recordingReporter) RecordDesiredInstances(appID string, current, desired int32) {}

func (r *recordingReporter) RecordScaleIntent(appID string, desired int32, reason string) {
	r.intents = append(r.intents, fmt.Sprintf("%s=%d (%s)", appID, desired, reason))
}

// hostSample builds one host's rows: key -> (rate, qcur) pairs.
func hostSample(host string, rows map[api.MonitoredKey][2]string) api.HostSample {
	out := make(map[api.MonitoredKey]api.Row, len(rows))
	for k, v := range rows {
		out[k] = api.Row{"rate": v[0], "qcur": v[1]}
	}
	return api.HostSample{Host: host, Rows: out}
}

func TestAggregateSumsAcrossHosts(t *testing.T) {
	tr := newTestTracker(testConfig("web_80"), nil)

	tr.Aggregate([]api.HostSample{
		hostSample("10.0.0.1:80", map[api.MonitoredKey][2]string{"web_80": {"30", "2"}}),
		hostSample("10.0.0.2:80", map[api.MonitoredKey][2]string{"web_80": {"20", "8"}}),
	})

	assert.InDelta(t, 60.0, tr.Average("web_80"), 1e-9)
	assert.Equal(t, 1, tr.entries["web_80"].window.Len())
}

func TestAggregateSkipsAbsentRows(t *testing.T) {
	tr := newTestTracker(testConfig("web_80", "api_8080"), nil)

	// Only one of two hosts serves api_8080; its sum is just that host's.
	tr.Aggregate([]api.HostSample{
		hostSample("10.0.0.1:80", map[api.MonitoredKey][2]string{
			"web_80":   {"100", "0"},
			"api_8080": {"40", "5"},
		}),
		hostSample("10.0.0.2:80", map[api.MonitoredKey][2]string{"web_80": {"100", "0"}}),
	})

	assert.InDelta(t, 200.0, tr.Average("web_80"), 1e-9)
	assert.InDelta(t, 45.0, tr.Average("api_8080"), 1e-9)
}

func TestAggregateNoHostServedKey(t *testing.T) {
	tr := newTestTracker(testConfig("web_80", "gone_80"), nil)

	tr.Aggregate([]api.HostSample{
		hostSample("10.0.0.1:80", map[api.MonitoredKey][2]string{"web_80": {"10", "0"}}),
	})

	// The untouched window records nothing: absence is not a zero sample.
	assert.Equal(t, 0, tr.entries["gone_80"].window.Len())
	assert.Equal(t, 1, tr.entries["web_80"].window.Len())
}

func TestAggregateMalformedCounters(t *testing.T) {
	tr := newTestTracker(testConfig("web_80"), nil)

	tr.Aggregate([]api.HostSample{
		hostSample("10.0.0.1:80", map[api.MonitoredKey][2]string{"web_80": {"oops", "7"}}),
	})

	assert.InDelta(t, 7.0, tr.Average("web_80"), 1e-9)
}

func TestWindowLengthNeverExceedsSamples(t *testing.T) {
	cfg := testConfig("web_80")
	cfg.Samples = 4
	tr := newTestTracker(cfg, nil)

	for i := 0; i < 20; i++ {
		tr.Aggregate([]api.HostSample{
			hostSample("10.0.0.1:80", map[api.MonitoredKey][2]string{
				"web_80": {fmt.Sprint(i), "0"},
			}),
		})
		assert.LessOrEqual(t, tr.entries["web_80"].window.Len(), cfg.Samples)
	}
	// After more than Samples ticks the average covers exactly Samples values.
	assert.InDelta(t, 17.5, tr.Average("web_80"), 1e-9)
}

func TestRefreshInstances(t *testing.T) {
	tr := newTestTracker(testConfig("web_80", "web_443", "api_8080"), nil)
	tr.entries["api_8080"].current = 4

	tr.RefreshInstances(map[string]int32{"web": 7})

	assert.Equal(t, int32(7), tr.entries["web_80"].current)
	assert.Equal(t, int32(7), tr.entries["web_443"].current)
	// Absent from the orchestrator list: keeps the last known count.
	assert.Equal(t, int32(4), tr.entries["api_8080"].current)
}

func TestMonitoredKeyAppID(t *testing.T) {
	tests := []struct {
		key  api.MonitoredKey
		want string
	}{
		{"web_80", "web"},
		{"web_443", "web"},
		{"my_app_8080", "my_app"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.key.AppID(), "key %s", tc.key)
	}
}
