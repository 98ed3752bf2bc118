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
	"math"
	"sort"
	"time"

	"github.com/Fedosin/lbautoscaler/api"
)

// Decide runs the decision engine over every tracked entry and returns
// this tick's scaling batch: at most one decision per application, the
// maximum demand among its frontends winning.
//
// The hysteresis band uses the relative deviation of the per-instance
// smoothed rate from the target rate, and the cooldown is the additive
// form cooldown*interval + interval*samples, so a prior scale's effect
// has fully entered the smoothed signal before it is reconsidered.
func (t *Tracker) Decide(now time.Time) []api.Decision {
	batch := make(map[string]api.Decision)

	// Cooldowns are judged against the state before this tick, so the
	// optimistic stamp of one frontend cannot mask its siblings out of
	// this tick's conflict resolution.
	prior := make(map[string]time.Time, len(t.lastScaled))
	for appID, ts := range t.lastScaled {
		prior[appID] = ts
	}

	// Sorted iteration keeps sibling-frontend conflicts deterministic.
	for _, key := range t.Keys() {
		e := t.entries[key]
		avg := e.window.Average()

		e.target = t.desired(avg)
		t.reporter.RecordDesiredInstances(e.appID, e.current, e.target)

		if e.target == e.current {
			e.pastThreshold = 0
			continue
		}

		// Hysteresis band: both the relative deviation of the
		// per-instance rate and the absolute instance gap must be
		// crossed before a scale is considered.
		current := e.current
		if current < 1 {
			current = 1
		}
		deviation := math.Abs(avg/float64(current)-t.cfg.TargetRPS) / t.cfg.TargetRPS
		gap := e.target - e.current
		if gap < 0 {
			gap = -gap
		}
		if deviation < t.cfg.ThresholdPercent && gap < t.cfg.ThresholdInstances {
			e.pastThreshold = 0
			continue
		}

		// Debounce transient spikes.
		e.pastThreshold++
		if e.pastThreshold < t.cfg.IntervalsPastThreshold {
			continue
		}

		// Cooldown: a recent scale for this application must first show
		// up in the smoothed signal.
		if last, ok := prior[e.appID]; ok {
			quiet := time.Duration(t.cfg.Cooldown)*t.cfg.Interval + t.cfg.Interval*time.Duration(t.cfg.Samples)
			if now.Before(last.Add(quiet)) {
				t.reporter.RecordScaleIntent(e.appID, e.target, "cooldown in effect")
				continue
			}
		}

		// Conflict resolution across sibling frontends: the highest
		// target for an application wins the tick.
		if existing, ok := batch[e.appID]; ok && existing.Instances >= e.target {
			continue
		}
		batch[e.appID] = api.Decision{
			AppID:     e.appID,
			Instances: e.target,
			Current:   e.current,
		}
		// Stamped before the network call is made, so the next tick
		// cannot re-trigger while the call is still in flight.
		t.lastScaled[e.appID] = now
	}

	decisions := make([]api.Decision, 0, len(batch))
	for _, d := range batch {
		decisions = append(decisions, d)
	}
	sort.Slice(decisions, func(i, j int) bool { return decisions[i].AppID < decisions[j].AppID })
	return decisions
}

// desired converts a smoothed average into a replica target: the ceiling
// of average over target rate, never below one, clamped into the
// configured instance bounds.
func (t *Tracker) desired(avg float64) int32 {
	target := int32(math.Ceil(avg / t.cfg.TargetRPS))
	if target < 1 {
		target = 1
	}
	if target < t.cfg.MinInstances {
		target = t.cfg.MinInstances
	}
	if t.cfg.MaxInstances > 0 && target > t.cfg.MaxInstances {
		target = t.cfg.MaxInstances
	}
	return target
}
