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

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusAssurance(t *testing.T) {
	Convey("Status assurance on a worker handle", t, func() {
		h := newWorkerHarness(t, testWorkerConfig())
		w := h.w

		Convey("A sequence wait resolves on exact matches", func() {
			sw := w.beginWait([]Status{StatusStarting, StatusStarted}, "", time.Second)
			go func() {
				w.setStatus(StatusStarting)
				w.setStatus(StatusStarted)
			}()
			So(sw.wait(), ShouldBeNil)
		})

		Convey("A deviation fails immediately, without waiting out the timer", func() {
			sw := w.beginWait([]Status{StatusStarting, StatusStarted}, "", time.Minute)
			go func() {
				w.setStatus(StatusStarting)
				w.setStatus(StatusFailed)
			}()
			begin := time.Now()
			e := sw.wait()
			var se *StatusError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Expected, ShouldEqual, StatusStarted)
			So(se.Actual, ShouldEqual, StatusFailed)
			So(time.Since(begin), ShouldBeLessThan, time.Minute)
		})

		Convey("Silence trips the timer", func() {
			sw := w.beginWait([]Status{StatusStarting}, "", 20*time.Millisecond)
			e := sw.wait()
			var te *TimeoutError
			So(errors.As(e, &te), ShouldBeTrue)
			So(te.Expected, ShouldEqual, StatusStarting)
			So(te.After, ShouldEqual, 20*time.Millisecond)
		})

		Convey("A target wait ignores intermediate statuses", func() {
			sw := w.beginWait(nil, StatusStopped, time.Second)
			go func() {
				w.setStatus(StatusStarting)
				w.setStatus(StatusStarted)
				w.setStatus(StatusStopping)
				w.setStatus(StatusStopped)
			}()
			So(sw.wait(), ShouldBeNil)
		})

		Convey("A target wait fails fast on a terminal deviation", func() {
			sw := w.beginWait(nil, StatusStarted, time.Minute)
			go w.setStatus(StatusFailed)
			e := sw.wait()
			var se *StatusError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Actual, ShouldEqual, StatusFailed)
		})

		Convey("A wait registered at the target resolves at once", func() {
			w.setStatus(StatusStarting)
			w.setStatus(StatusStarted)
			So(w.WaitStatus(StatusStarted, 10*time.Millisecond), ShouldBeNil)
		})

		Convey("A wait begun while one is pending shares its outcome", func() {
			first := w.beginWait([]Status{StatusStarting, StatusStarted}, "", time.Second)
			second := w.beginWait(nil, StatusStarted, time.Second)
			So(second.follow, ShouldEqual, first)

			results := make(chan error, 2)
			go func() { results <- first.wait() }()
			go func() { results <- second.wait() }()
			w.setStatus(StatusStarting)
			w.setStatus(StatusStarted)
			So(<-results, ShouldBeNil)
			So(<-results, ShouldBeNil)
		})

		Convey("An aborted wait releases the pending slot", func() {
			first := w.beginWait([]Status{StatusStarting}, "", time.Second)
			first.abort()
			second := w.beginWait([]Status{StatusStarting}, "", time.Second)
			So(second.follow, ShouldBeNil)
			go w.setStatus(StatusStarting)
			So(second.wait(), ShouldBeNil)
		})
	})
}
