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

// Package transmitter provides signal and decision reporting for the
// controller.
package transmitter

import (
	"go.uber.org/zap"

	"github.com/Fedosin/lbautoscaler/api"
)

// Reporter receives the controller's observations and decisions as they
// are made. Implementations must be cheap; they are called on every tick.
type Reporter interface {
	// RecordSmoothedRate reports a monitored key's smoothed average after
	// a tick's samples were merged into its window.
	RecordSmoothedRate(key api.MonitoredKey, value float64)

	// RecordDesiredInstances reports the replica target computed for an
	// application against its current count.
	RecordDesiredInstances(appID string, current, desired int32)

	// RecordScaleIntent reports a scale the engine wanted to issue but
	// held back, with the reason.
	RecordScaleIntent(appID string, desired int32, reason string)
}

// LogReporter writes every observation to a structured logger.
type LogReporter struct {
	logger *zap.SugaredLogger
}

// NewLogReporter creates a log-based reporter.
func NewLogReporter(logger *zap.SugaredLogger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogReporter{logger: logger}
}

// RecordSmoothedRate logs the smoothed average for a monitored key.
func (r *LogReporter) RecordSmoothedRate(key api.MonitoredKey, value float64) {
	r.logger.Debugw("smoothed rate", "key", string(key), "value", value)
}

// RecordDesiredInstances logs the computed replica target.
func (r *LogReporter) RecordDesiredInstances(appID string, current, desired int32) {
	r.logger.Debugw("desired instances", "app", appID, "current", current, "desired", desired)
}

// RecordScaleIntent logs a withheld scale decision.
func (r *LogReporter) RecordScaleIntent(appID string, desired int32, reason string) {
	r.logger.Infow("scale withheld", "app", appID, "desired", desired, "reason", reason)
}

// NoOpReporter discards everything.
type NoOpReporter struct{}

// NewNoOpReporter creates a reporter that does nothing.
func NewNoOpReporter() *NoOpReporter {
	return &NoOpReporter{}
}

// RecordSmoothedRate does nothing.
func (r *NoOpReporter) RecordSmoothedRate(key api.MonitoredKey, value float64) {}

// RecordDesiredInstances does nothing.
func (r *NoOpReporter) RecordDesiredInstances(appID string, current, desired int32) {}

// RecordScaleIntent does nothing.
func (r *NoOpReporter) RecordScaleIntent(appID string, desired int32, reason string) {}
