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

// Package controller drives the sample/aggregate/decide/scale cycle on a
// fixed wall-clock cadence.
package controller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Fedosin/lbautoscaler/api"
	"github.com/Fedosin/lbautoscaler/scaling"
)

// Sampler supplies one tick's worth of load-balancer host samples.
type Sampler interface {
	Sample(ctx context.Context) []api.HostSample
}

// Orchestrator exposes the application list and scale commands.
type Orchestrator interface {
	Apps(ctx context.Context) (map[string]int32, error)
	Scale(ctx context.Context, appID string, instances int32) error
}

// Controller owns the tracked state and runs the control loop until its
// context is cancelled.
type Controller struct {
	cfg     *api.Config
	sampler Sampler
	orch    Orchestrator
	tracker *scaling.Tracker
	logger  *zap.SugaredLogger

	// ticks counts completed sampling rounds since start; decisions are
	// gated until a full window of them has elapsed.
	ticks int

	// now and after are injectable for tests.
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// New creates a Controller.
func New(cfg *api.Config, sampler Sampler, orch Orchestrator, tracker *scaling.Tracker, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		cfg:     cfg,
		sampler: sampler,
		orch:    orch,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
		after:   time.After,
	}
}

// Run executes ticks forever, anchored to wall-clock boundaries: the next
// tick starts at tickStart+interval, so a slow tick does not accumulate
// drift. A tick that overruns the interval is followed immediately by the
// next one. Run returns only when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Infow("starting control loop",
		"interval", c.cfg.Interval,
		"samples", c.cfg.Samples,
		"apps", c.cfg.Apps,
	)

	for {
		start := c.now()
		c.tick(ctx)

		sleep := start.Add(c.cfg.Interval).Sub(c.now())
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.after(sleep):
		}
	}
}

// tick runs one full cycle. Any panic escaping a component is caught and
// logged here so the loop survives to the next scheduled tick.
func (c *Controller) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("tick failed", "panic", r)
		}
	}()

	c.ticks++

	samples := c.sampler.Sample(ctx)
	c.tracker.Aggregate(samples)

	if apps, err := c.orch.Apps(ctx); err != nil {
		// Entries keep their last known replica counts.
		c.logger.Warnw("could not refresh instance counts", zap.Error(err))
	} else {
		c.tracker.RefreshInstances(apps)
	}

	if c.ticks < c.cfg.Samples {
		c.logger.Debugw("warming up, sampling only", "tick", c.ticks, "samples", c.cfg.Samples)
		return
	}

	decisions := c.tracker.Decide(c.now())
	if len(decisions) == 0 {
		return
	}
	c.scale(ctx, decisions)
}

// scale issues the tick's decisions, one independent orchestrator call per
// application. A failing call is logged and never blocks the others.
func (c *Controller) scale(ctx context.Context, decisions []api.Decision) {
	if c.cfg.DryRun {
		for _, d := range decisions {
			c.logger.Infow("dry run, scale suppressed",
				"app", d.AppID, "current", d.Current, "desired", d.Instances)
		}
		return
	}

	var g errgroup.Group
	for _, d := range decisions {
		d := d
		g.Go(func() error {
			if err := c.orch.Scale(ctx, d.AppID, d.Instances); err != nil {
				c.logger.Errorw("scale failed", "app", d.AppID, "desired", d.Instances, zap.Error(err))
				return nil
			}
			c.logger.Infow("scaled application",
				"app", d.AppID, "current", d.Current, "desired", d.Instances)
			return nil
		})
	}
	_ = g.Wait()
}
