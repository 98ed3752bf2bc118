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

// Package window provides a fixed-length sliding window of rate samples.
package window

import (
	"sync"
)

// SlidingWindow is a ring buffer of the most recent float64 samples.
// Recording the (size+1)-th sample evicts the oldest one, so the window
// never holds more than size values.
type SlidingWindow struct {
	mu sync.RWMutex

	// buckets is a ring buffer indexed by writeIdx % len(buckets).
	buckets []float64

	// count is the number of samples recorded so far, capped at len(buckets).
	count int

	// writeIdx is the position the next sample is written to.
	writeIdx int

	// total is the sum of the samples currently in the window.
	total float64
}

// New creates a SlidingWindow holding at most size samples.
// Sizes below 1 are treated as 1.
func New(size int) *SlidingWindow {
	if size < 1 {
		size = 1
	}
	return &SlidingWindow{
		buckets: make([]float64, size),
	}
}

// Record pushes a new sample, evicting the oldest once the window is full.
func (w *SlidingWindow) Record(value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.total += value - w.buckets[w.writeIdx]
	w.buckets[w.writeIdx] = value
	w.writeIdx = (w.writeIdx + 1) % len(w.buckets)
	if w.count < len(w.buckets) {
		w.count++
	}
}

// Average returns the mean over however many samples have been recorded,
// or 0 if the window is empty.
func (w *SlidingWindow) Average() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.count == 0 {
		return 0
	}
	return w.total / float64(w.count)
}

// Len returns the number of samples currently held.
func (w *SlidingWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Full reports whether the window has reached its configured size.
func (w *SlidingWindow) Full() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count == len(w.buckets)
}

// Size returns the configured maximum length.
func (w *SlidingWindow) Size() int {
	return len(w.buckets)
}
