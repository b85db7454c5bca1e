// Copyright 2026 The Drover Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package drover

import "time"

// statusWait is one pending assurance on a worker handle.  It is
// push-based: it subscribes to the handle's status notifications and
// arms its timer at construction, so there is no race between a poll
// interval and the timeout.
//
// A handle carries at most one pending wait.  A wait begun while one
// is pending follows it: it shares the pending wait's outcome instead
// of registering a second subscription.
type statusWait struct {
	worker  *Worker
	seq     []Status // exact ordered expectation; nil for target waits
	target  Status
	ch      chan Status
	timer   *time.Timer
	timeout time.Duration
	done    chan struct{}
	err     error

	satisfied bool        // target already held at registration
	follow    *statusWait // the pending wait this one shares
}

// beginWait registers a wait on w.  Exactly one of seq or target is
// meaningful; seq nil selects the single-target variant.
func (w *Worker) beginWait(seq []Status, target Status, timeout time.Duration) *statusWait {
	w.mx.Lock()
	defer w.mx.Unlock()
	if p := w.pending; p != nil {
		return &statusWait{follow: p}
	}
	sw := &statusWait{
		worker:  w,
		seq:     seq,
		target:  target,
		timeout: timeout,
		ch:      make(chan Status, 16),
		done:    make(chan struct{}),
	}
	if seq == nil && w.status == target {
		sw.satisfied = true
	}
	sw.timer = time.NewTimer(timeout)
	w.pending = sw
	w.subs[sw.ch] = true
	return sw
}

// wait blocks until the expectation is met, a deviation is observed,
// or the timer fires.  Deviations fail immediately with a
// StatusError; there is no retry.
func (sw *statusWait) wait() error {
	if sw.follow != nil {
		<-sw.follow.done
		return sw.follow.err
	}
	defer sw.finish()
	if sw.satisfied {
		return nil
	}
	if sw.seq != nil {
		for i := 0; i < len(sw.seq); {
			select {
			case st := <-sw.ch:
				if st != sw.seq[i] {
					sw.err = &StatusError{Expected: sw.seq[i], Actual: st}
					return sw.err
				}
				i++
			case <-sw.timer.C:
				sw.err = &TimeoutError{Expected: sw.seq[i], After: sw.timeout}
				return sw.err
			}
		}
		return nil
	}
	for {
		select {
		case st := <-sw.ch:
			if st == sw.target {
				return nil
			}
			if st.Terminal() {
				sw.err = &StatusError{Expected: sw.target, Actual: st}
				return sw.err
			}
			// Intermediate statuses do not fail a target wait.
		case <-sw.timer.C:
			sw.err = &TimeoutError{Expected: sw.target, After: sw.timeout}
			return sw.err
		}
	}
}

// abort releases a wait whose triggering action never happened.
func (sw *statusWait) abort() {
	if sw.follow == nil {
		sw.finish()
	}
}

func (sw *statusWait) finish() {
	sw.timer.Stop()
	w := sw.worker
	w.mx.Lock()
	delete(w.subs, sw.ch)
	if w.pending == sw {
		w.pending = nil
	}
	w.mx.Unlock()
	close(sw.done)
}

// WaitStatus blocks until the handle reaches target, fails fast with
// a StatusError if it reaches a different terminal status first, or
// fails with a TimeoutError once timeout elapses.  Concurrent calls
// for the same handle share the single pending wait.
func (w *Worker) WaitStatus(target Status, timeout time.Duration) error {
	return w.beginWait(nil, target, timeout).wait()
}
