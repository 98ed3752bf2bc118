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

// The lbautoscaler daemon polls load-balancer stats feeds and scales the
// backing orchestrator applications to a target request rate per instance.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Fedosin/lbautoscaler/api"
	"github.com/Fedosin/lbautoscaler/config"
	"github.com/Fedosin/lbautoscaler/controller"
	"github.com/Fedosin/lbautoscaler/haproxy"
	"github.com/Fedosin/lbautoscaler/marathon"
	"github.com/Fedosin/lbautoscaler/scaling"
	"github.com/Fedosin/lbautoscaler/transmitter"
)

var rootCmd = &cobra.Command{
	Use:   "lbautoscaler",
	Short: "Scale orchestrator applications to a target request rate per instance",
	Long: `lbautoscaler polls one or more load-balancer stats feeds, smooths the
observed request rate per monitored frontend over a sliding window, and
adjusts the replica count of the backing orchestrator applications so
each one tracks the configured requests-per-second per instance.

Every flag can also be set through the environment with the AUTOSCALER_
prefix, e.g. AUTOSCALER_TARGET_RPS=1500.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("marathon", config.DefaultMarathon, "Orchestrator base URL")
	flags.StringSlice("haproxy", []string{config.DefaultHAProxy}, "Load balancer base URLs to poll")
	flags.String("stats-path", config.DefaultStatsPath, "Path of the stats feed on each load balancer host")
	flags.Float64("interval", 60, "Polling interval in seconds, fractional allowed")
	flags.Int("samples", 10, "Number of ticks in the sliding sample window")
	flags.Int("cooldown", 5, "Interval multiplier for the post-scale quiet period")
	flags.Float64("target-rps", 1000, "Target requests per second per instance")
	flags.StringSlice("apps", nil, "Monitored keys to track, each <application>_<port>")
	flags.Float64("threshold-percent", 0.5, "Relative deviation below which no scaling occurs")
	flags.Int32("threshold-instances", 3, "Instance-count gap below which no scaling occurs")
	flags.Int("intervals-past-threshold", 3, "Consecutive ticks past threshold before scaling")
	flags.Int32("min-instances", 1, "Lower bound on any replica target")
	flags.Int32("max-instances", 0, "Upper bound on any replica target, 0 for unlimited")
	flags.Duration("request-timeout", 10*time.Second, "Timeout for every collaborator HTTP call")
	flags.Bool("dry-run", false, "Log scaling decisions without issuing them")
	flags.Bool("debug", false, "Enable debug logging")

	viper.SetEnvPrefix("AUTOSCALER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := &api.Config{
		Marathon:               viper.GetString("marathon"),
		HAProxy:                viper.GetStringSlice("haproxy"),
		StatsPath:              viper.GetString("stats-path"),
		Interval:               time.Duration(viper.GetFloat64("interval") * float64(time.Second)),
		Samples:                viper.GetInt("samples"),
		Cooldown:               viper.GetInt("cooldown"),
		TargetRPS:              viper.GetFloat64("target-rps"),
		Apps:                   viper.GetStringSlice("apps"),
		ThresholdPercent:       viper.GetFloat64("threshold-percent"),
		ThresholdInstances:     viper.GetInt32("threshold-instances"),
		IntervalsPastThreshold: viper.GetInt("intervals-past-threshold"),
		MinInstances:           viper.GetInt32("min-instances"),
		MaxInstances:           viper.GetInt32("max-instances"),
		RequestTimeout:         viper.GetDuration("request-timeout"),
		DryRun:                 viper.GetBool("dry-run"),
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := buildLogger(viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	sampler, err := haproxy.NewSampler(cfg.HAProxy, cfg.StatsPath, cfg.Apps, httpClient, nil, logger.Named("haproxy"))
	if err != nil {
		return err
	}
	orch, err := marathon.NewClient(cfg.Marathon, httpClient)
	if err != nil {
		return err
	}

	reporter := transmitter.NewLogReporter(logger.Named("report"))
	tracker := scaling.NewTracker(cfg, reporter, logger.Named("scaling"))
	ctrl := controller.New(cfg, sampler, orch, tracker, logger.Named("controller"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Infow("shutting down")
	return nil
}

func buildLogger(debug bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
