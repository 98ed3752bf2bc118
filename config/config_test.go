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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fedosin/lbautoscaler/api"
)

func TestLoadFromMap(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]string
		wantErr bool
		check   func(*testing.T, *api.Config)
	}{{
		name: "valid config with all values",
		data: map[string]string{
			"marathon":                 "http://marathon:8080",
			"haproxy":                  "http://lb-a:9000,http://lb-b:9000",
			"stats-path":               "/stats;csv",
			"interval":                 "1.5s",
			"samples":                  "5",
			"cooldown":                 "2",
			"target-rps":               "500",
			"apps":                     "web_80,web_443,api_8080",
			"threshold-percent":        "0.25",
			"threshold-instances":      "2",
			"intervals-past-threshold": "4",
			"min-instances":            "2",
			"max-instances":            "50",
			"request-timeout":          "3s",
			"dry-run":                  "true",
		},
		check: func(t *testing.T, cfg *api.Config) {
			assert.Equal(t, "http://marathon:8080", cfg.Marathon)
			assert.Equal(t, []string{"http://lb-a:9000", "http://lb-b:9000"}, cfg.HAProxy)
			assert.Equal(t, 1500*time.Millisecond, cfg.Interval)
			assert.Equal(t, 5, cfg.Samples)
			assert.Equal(t, 2, cfg.Cooldown)
			assert.Equal(t, 500.0, cfg.TargetRPS)
			assert.Equal(t, []string{"web_80", "web_443", "api_8080"}, cfg.Apps)
			assert.Equal(t, 0.25, cfg.ThresholdPercent)
			assert.Equal(t, int32(2), cfg.ThresholdInstances)
			assert.Equal(t, 4, cfg.IntervalsPastThreshold)
			assert.Equal(t, int32(2), cfg.MinInstances)
			assert.Equal(t, int32(50), cfg.MaxInstances)
			assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
			assert.True(t, cfg.DryRun)
		},
	}, {
		name: "default values",
		data: map[string]string{
			"apps": "web_80",
		},
		check: func(t *testing.T, cfg *api.Config) {
			assert.Equal(t, DefaultMarathon, cfg.Marathon)
			assert.Equal(t, []string{DefaultHAProxy}, cfg.HAProxy)
			assert.Equal(t, DefaultStatsPath, cfg.StatsPath)
			assert.Equal(t, 60*time.Second, cfg.Interval)
			assert.Equal(t, 10, cfg.Samples)
			assert.Equal(t, 5, cfg.Cooldown)
			assert.Equal(t, 1000.0, cfg.TargetRPS)
			assert.Equal(t, 0.5, cfg.ThresholdPercent)
			assert.Equal(t, int32(3), cfg.ThresholdInstances)
			assert.Equal(t, 3, cfg.IntervalsPastThreshold)
			assert.Equal(t, int32(1), cfg.MinInstances)
			assert.Equal(t, int32(0), cfg.MaxInstances)
			assert.False(t, cfg.DryRun)
		},
	}, {
		name:    "no monitored keys",
		data:    map[string]string{},
		wantErr: true,
	}, {
		name: "malformed monitored key",
		data: map[string]string{
			"apps": "web",
		},
		wantErr: true,
	}, {
		name: "invalid interval",
		data: map[string]string{
			"apps":     "web_80",
			"interval": "soon",
		},
		wantErr: true,
	}, {
		name: "zero samples",
		data: map[string]string{
			"apps":    "web_80",
			"samples": "0",
		},
		wantErr: true,
	}, {
		name: "negative target rps",
		data: map[string]string{
			"apps":       "web_80",
			"target-rps": "-10",
		},
		wantErr: true,
	}, {
		name: "min above max",
		data: map[string]string{
			"apps":          "web_80",
			"min-instances": "10",
			"max-instances": "5",
		},
		wantErr: true,
	}, {
		name: "malformed marathon URL",
		data: map[string]string{
			"apps":     "web_80",
			"marathon": "not a url",
		},
		wantErr: true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFromMap(tc.data)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AUTOSCALER_APPS", "web_80, api_8080")
	t.Setenv("AUTOSCALER_TARGET_RPS", "750")
	t.Setenv("AUTOSCALER_INTERVAL", "500ms")
	t.Setenv("AUTOSCALER_HAPROXY", "http://lb-a,http://lb-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"web_80", "api_8080"}, cfg.Apps)
	assert.Equal(t, 750.0, cfg.TargetRPS)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
	assert.Equal(t, []string{"http://lb-a", "http://lb-b"}, cfg.HAProxy)
	assert.Equal(t, 10, cfg.Samples)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("AUTOSCALER_APPS", "web_80")
	t.Setenv("AUTOSCALER_SAMPLES", "many")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Samples = 0
	cfg.TargetRPS = -1
	cfg.IntervalsPastThreshold = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "samples")
	assert.Contains(t, err.Error(), "target-rps")
	assert.Contains(t, err.Error(), "intervals-past-threshold")
}
