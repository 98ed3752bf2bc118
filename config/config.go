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

// Package config handles controller configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Fedosin/lbautoscaler/api"
)

const (
	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "AUTOSCALER_"

	// Default values
	DefaultMarathon               = "http://localhost:8080"
	DefaultHAProxy                = "http://localhost:80"
	DefaultStatsPath              = "/haproxy?stats;csv"
	defaultInterval               = 60 * time.Second
	defaultSamples                = 10
	defaultCooldown               = 5
	defaultTargetRPS              = 1000.0
	defaultThresholdPercent       = 0.5
	defaultThresholdInstances     = int32(3)
	defaultIntervalsPastThreshold = 3
	defaultMinInstances           = int32(1)
	defaultMaxInstances           = int32(0)
	defaultRequestTimeout         = 10 * time.Second
)

// configErrors aggregates multiple configuration errors
type configErrors struct {
	errors []error
}

func (ce *configErrors) add(err error) {
	if err != nil {
		ce.errors = append(ce.errors, err)
	}
}

func (ce *configErrors) hasErrors() bool {
	return len(ce.errors) > 0
}

func (ce *configErrors) Error() string {
	if len(ce.errors) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration errors:")
	for _, err := range ce.errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Default returns a Config populated with every documented default.
func Default() *api.Config {
	return &api.Config{
		Marathon:               DefaultMarathon,
		HAProxy:                []string{DefaultHAProxy},
		StatsPath:              DefaultStatsPath,
		Interval:               defaultInterval,
		Samples:                defaultSamples,
		Cooldown:               defaultCooldown,
		TargetRPS:              defaultTargetRPS,
		ThresholdPercent:       defaultThresholdPercent,
		ThresholdInstances:     defaultThresholdInstances,
		IntervalsPastThreshold: defaultIntervalsPastThreshold,
		MinInstances:           defaultMinInstances,
		MaxInstances:           defaultMaxInstances,
		RequestTimeout:         defaultRequestTimeout,
	}
}

// Load creates a Config from environment variables and validates it.
func Load() (*api.Config, error) {
	errs := &configErrors{}

	interval, err := getEnvDuration("INTERVAL", defaultInterval)
	errs.add(err)

	samples, err := getEnvInt("SAMPLES", defaultSamples)
	errs.add(err)

	cooldown, err := getEnvInt("COOLDOWN", defaultCooldown)
	errs.add(err)

	targetRPS, err := getEnvFloat("TARGET_RPS", defaultTargetRPS)
	errs.add(err)

	thresholdPercent, err := getEnvFloat("THRESHOLD_PERCENT", defaultThresholdPercent)
	errs.add(err)

	thresholdInstances, err := getEnvInt32("THRESHOLD_INSTANCES", defaultThresholdInstances)
	errs.add(err)

	intervalsPastThreshold, err := getEnvInt("INTERVALS_PAST_THRESHOLD", defaultIntervalsPastThreshold)
	errs.add(err)

	minInstances, err := getEnvInt32("MIN_INSTANCES", defaultMinInstances)
	errs.add(err)

	maxInstances, err := getEnvInt32("MAX_INSTANCES", defaultMaxInstances)
	errs.add(err)

	requestTimeout, err := getEnvDuration("REQUEST_TIMEOUT", defaultRequestTimeout)
	errs.add(err)

	if errs.hasErrors() {
		return nil, errs
	}

	cfg := &api.Config{
		Marathon:               getEnvString("MARATHON", DefaultMarathon),
		HAProxy:                getEnvStringSlice("HAPROXY", []string{DefaultHAProxy}),
		StatsPath:              getEnvString("STATS_PATH", DefaultStatsPath),
		Interval:               interval,
		Samples:                samples,
		Cooldown:               cooldown,
		TargetRPS:              targetRPS,
		Apps:                   getEnvStringSlice("APPS", nil),
		ThresholdPercent:       thresholdPercent,
		ThresholdInstances:     thresholdInstances,
		IntervalsPastThreshold: intervalsPastThreshold,
		MinInstances:           minInstances,
		MaxInstances:           maxInstances,
		RequestTimeout:         requestTimeout,
		DryRun:                 getEnvString("DRY_RUN", "") == "true",
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromMap creates a Config from a map of string values.
func LoadFromMap(data map[string]string) (*api.Config, error) {
	errs := &configErrors{}

	interval, err := parseDuration(data["interval"], defaultInterval)
	errs.add(err)

	samples, err := parseInt(data["samples"], defaultSamples)
	errs.add(err)

	cooldown, err := parseInt(data["cooldown"], defaultCooldown)
	errs.add(err)

	targetRPS, err := parseFloat(data["target-rps"], defaultTargetRPS)
	errs.add(err)

	thresholdPercent, err := parseFloat(data["threshold-percent"], defaultThresholdPercent)
	errs.add(err)

	thresholdInstances, err := parseInt32(data["threshold-instances"], defaultThresholdInstances)
	errs.add(err)

	intervalsPastThreshold, err := parseInt(data["intervals-past-threshold"], defaultIntervalsPastThreshold)
	errs.add(err)

	minInstances, err := parseInt32(data["min-instances"], defaultMinInstances)
	errs.add(err)

	maxInstances, err := parseInt32(data["max-instances"], defaultMaxInstances)
	errs.add(err)

	requestTimeout, err := parseDuration(data["request-timeout"], defaultRequestTimeout)
	errs.add(err)

	if errs.hasErrors() {
		return nil, errs
	}

	cfg := &api.Config{
		Marathon:               parseString(data["marathon"], DefaultMarathon),
		HAProxy:                parseStringSlice(data["haproxy"], []string{DefaultHAProxy}),
		StatsPath:              parseString(data["stats-path"], DefaultStatsPath),
		Interval:               interval,
		Samples:                samples,
		Cooldown:               cooldown,
		TargetRPS:              targetRPS,
		Apps:                   parseStringSlice(data["apps"], nil),
		ThresholdPercent:       thresholdPercent,
		ThresholdInstances:     thresholdInstances,
		IntervalsPastThreshold: intervalsPastThreshold,
		MinInstances:           minInstances,
		MaxInstances:           maxInstances,
		RequestTimeout:         requestTimeout,
		DryRun:                 data["dry-run"] == "true",
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all configuration values are valid.
func Validate(cfg *api.Config) error {
	errs := &configErrors{}

	if _, err := url.ParseRequestURI(cfg.Marathon); err != nil {
		errs.add(fmt.Errorf("marathon = %q, must be a valid URL: %v", cfg.Marathon, err))
	}

	if len(cfg.HAProxy) == 0 {
		errs.add(fmt.Errorf("haproxy must list at least one load-balancer URL"))
	}
	for _, u := range cfg.HAProxy {
		if _, err := url.ParseRequestURI(u); err != nil {
			errs.add(fmt.Errorf("haproxy = %q, must be a valid URL: %v", u, err))
		}
	}

	if len(cfg.Apps) == 0 {
		errs.add(fmt.Errorf("apps must list at least one monitored key"))
	}
	for _, a := range cfg.Apps {
		if !strings.Contains(a, "_") {
			errs.add(fmt.Errorf("app key %q must have the form <application>_<port>", a))
		}
	}

	if cfg.Interval <= 0 {
		errs.add(fmt.Errorf("interval = %v, must be positive", cfg.Interval))
	}

	if cfg.Samples < 1 {
		errs.add(fmt.Errorf("samples = %d, must be at least 1", cfg.Samples))
	}

	if cfg.Cooldown < 0 {
		errs.add(fmt.Errorf("cooldown = %d, cannot be negative", cfg.Cooldown))
	}

	if cfg.TargetRPS <= 0 {
		errs.add(fmt.Errorf("target-rps = %v, must be positive", cfg.TargetRPS))
	}

	if cfg.ThresholdPercent < 0 {
		errs.add(fmt.Errorf("threshold-percent = %v, cannot be negative", cfg.ThresholdPercent))
	}

	if cfg.ThresholdInstances < 0 {
		errs.add(fmt.Errorf("threshold-instances = %d, cannot be negative", cfg.ThresholdInstances))
	}

	if cfg.IntervalsPastThreshold < 1 {
		errs.add(fmt.Errorf("intervals-past-threshold = %d, must be at least 1", cfg.IntervalsPastThreshold))
	}

	if cfg.MinInstances < 1 {
		errs.add(fmt.Errorf("min-instances = %d, must be at least 1", cfg.MinInstances))
	}
	if cfg.MaxInstances < 0 {
		errs.add(fmt.Errorf("max-instances = %d, must be at least 0", cfg.MaxInstances))
	}
	if cfg.MaxInstances > 0 && cfg.MinInstances > cfg.MaxInstances {
		errs.add(fmt.Errorf("min-instances (%d) must be less than or equal to max-instances (%d)", cfg.MinInstances, cfg.MaxInstances))
	}

	if cfg.RequestTimeout <= 0 {
		errs.add(fmt.Errorf("request-timeout = %v, must be positive", cfg.RequestTimeout))
	}

	if errs.hasErrors() {
		return errs
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid float value for %s%s: %q", EnvPrefix, key, value)
	}
	return f, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int value for %s%s: %q", EnvPrefix, key, value)
	}
	return i, nil
}

func getEnvInt32(key string, defaultValue int32) (int32, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int32 value for %s%s: %q", EnvPrefix, key, value)
	}
	return int32(i), nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid duration value for %s%s: %q", EnvPrefix, key, value)
	}
	return d, nil
}

// Helper functions for map parsing
func parseString(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func parseStringSlice(value string, defaultValue []string) []string {
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

func parseFloat(value string, defaultValue float64) (float64, error) {
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid float value: %q", value)
	}
	return f, nil
}

func parseInt(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int value: %q", value)
	}
	return i, nil
}

func parseInt32(value string, defaultValue int32) (int32, error) {
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int32 value: %q", value)
	}
	return int32(i), nil
}

func parseDuration(value string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("invalid duration value: %q", value)
	}
	return d, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
