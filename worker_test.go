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
	"log"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func testWorkerConfig() *Config {
	return &Config{
		Script:         "app.sh",
		Count:          1,
		StatusTimeout:  time.Second,
		RestartTimeout: time.Second,
	}
}

type workerHarness struct {
	w     *Worker
	s     *fakeSpawner
	exits chan ExitReason
	errs  chan error
}

func newWorkerHarness(t *testing.T, cfg *Config) *workerHarness {
	h := &workerHarness{
		s:     newFakeSpawner(),
		exits: make(chan ExitReason, 4),
		errs:  make(chan error, 4),
	}
	logger := log.New(&testLog{t: t}, "", 0)
	h.w = newWorker(cfg, h.s, logger, workerHooks{
		onExit:  func(w *Worker, r ExitReason) { h.exits <- r },
		onError: func(w *Worker, err error) { h.errs <- err },
	})
	return h
}

func (h *workerHarness) exitReason() ExitReason {
	select {
	case r := <-h.exits:
		return r
	case <-time.After(time.Second):
		return nil
	}
}

func TestWorkerStartup(t *testing.T) {
	Convey("A worker runs the startup handshake", t, func() {
		h := newWorkerHarness(t, testWorkerConfig())

		So(h.w.Status(), ShouldEqual, StatusInitialized)
		So(h.w.ID(), ShouldEqual, "")
		So(h.w.Start(), ShouldBeNil)
		So(h.w.Status(), ShouldEqual, StatusStarted)
		So(h.w.ID(), ShouldNotEqual, "")
		So(h.w.Info().Pid, ShouldEqual, 1)

		Convey("And cannot start twice", func() {
			e := h.w.Start()
			So(errors.Is(e, ErrUnexpectedWorkerState), ShouldBeTrue)
		})
	})
}

func TestWorkerStopAndQuit(t *testing.T) {
	Convey("A started worker", t, func() {
		h := newWorkerHarness(t, testWorkerConfig())
		So(h.w.Start(), ShouldBeNil)

		Convey("Stops on acknowledgment", func() {
			So(h.w.Stop(), ShouldBeNil)
			So(h.w.Status(), ShouldEqual, StatusStopped)

			Convey("And then quits normally", func() {
				So(h.w.Quit(false), ShouldBeNil)
				So(h.w.Status(), ShouldEqual, StatusShuttedDown)
				r, ok := h.exitReason().(NormalExit)
				So(ok, ShouldBeTrue)
				So(r.Code, ShouldEqual, 0)
			})
		})

		Convey("Quits directly from started", func() {
			So(h.w.Quit(false), ShouldBeNil)
			So(h.w.Status(), ShouldEqual, StatusShuttedDown)
			_, ok := h.exitReason().(NormalExit)
			So(ok, ShouldBeTrue)
		})

		Convey("A forced quit kills without waiting", func() {
			So(h.w.Quit(true), ShouldBeNil)
			r, ok := h.exitReason().(ExternalSignal)
			So(ok, ShouldBeTrue)
			So(r.Signal, ShouldEqual, "SIGKILL")
			So(h.w.Status(), ShouldEqual, StatusFailed)
		})

		Convey("A child dying cleanly mid-stop still reaches a terminal status", func() {
			p := h.s.spawned()[0]
			p.mx.Lock()
			p.dieOnStop = true
			p.mx.Unlock()
			e := h.w.Stop()
			var se *StatusError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Expected, ShouldEqual, StatusStopped)
			r, ok := h.exitReason().(NormalExit)
			So(ok, ShouldBeTrue)
			So(r.Code, ShouldEqual, 0)
			So(h.w.Status(), ShouldEqual, StatusShuttedDown)
			So(h.w.Status().Terminal(), ShouldBeTrue)
		})

		Convey("An unsolicited death is abnormal", func() {
			h.s.spawned()[0].exit(7, "")
			r, ok := h.exitReason().(AbnormalExit)
			So(ok, ShouldBeTrue)
			So(r.Code, ShouldEqual, 7)
			So(h.w.Status(), ShouldEqual, StatusFailed)

			Convey("And later lifecycle calls resolve without a process", func() {
				So(h.w.Stop(), ShouldBeNil)
				So(h.w.Quit(false), ShouldBeNil)
			})
		})
	})
}

func TestWorkerStartFailures(t *testing.T) {
	Convey("Worker startup failure modes", t, func() {
		cfg := testWorkerConfig()

		Convey("A refused spawn propagates and leaves the handle fresh", func() {
			h := newWorkerHarness(t, cfg)
			h.s.failAfter = 0
			e := h.w.Start()
			So(e, ShouldNotBeNil)
			So(h.w.Status(), ShouldEqual, StatusInitialized)
		})

		Convey("A child dying before started fails the handshake", func() {
			h := newWorkerHarness(t, cfg)
			h.s.exitEarly = true
			e := h.w.Start()
			var se *StatusError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Expected, ShouldEqual, StatusStarted)
			r, ok := h.exitReason().(AbnormalExit)
			So(ok, ShouldBeTrue)
			So(r.Code, ShouldEqual, 1)
		})

		Convey("An illegal status report fails fast", func() {
			h := newWorkerHarness(t, cfg)
			h.s.badReport = true
			e := h.w.Start()
			var se *StatusError
			So(errors.As(e, &se), ShouldBeTrue)
			So(se.Actual, ShouldEqual, StatusFailed)
			var fault error
			select {
			case fault = <-h.errs:
			case <-time.After(time.Second):
			}
			So(fault, ShouldNotBeNil)
			So(errors.Is(fault, ErrProtocol), ShouldBeTrue)
		})

		Convey("A silent child times the handshake out", func() {
			cfg := testWorkerConfig()
			cfg.StatusTimeout = 50 * time.Millisecond
			h := newWorkerHarness(t, cfg)
			h.s.setHold(true)
			e := h.w.Start()
			var te *TimeoutError
			So(errors.As(e, &te), ShouldBeTrue)
			So(te.Expected, ShouldEqual, StatusStarted)
		})
	})
}

func TestStatusMachine(t *testing.T) {
	Convey("The worker status machine is forward-only", t, func() {
		So(StatusInitialized.canTransition(StatusStarting), ShouldBeTrue)
		So(StatusStarting.canTransition(StatusStarted), ShouldBeTrue)
		So(StatusStarted.canTransition(StatusStopping), ShouldBeTrue)
		So(StatusStarted.canTransition(StatusShuttingDown), ShouldBeTrue)
		So(StatusStopped.canTransition(StatusShuttingDown), ShouldBeTrue)

		So(StatusStarted.canTransition(StatusStarting), ShouldBeFalse)
		So(StatusStopped.canTransition(StatusStarted), ShouldBeFalse)
		So(StatusShuttedDown.canTransition(StatusStarting), ShouldBeFalse)

		Convey("Except that failure is reachable from anywhere", func() {
			So(StatusInitialized.canTransition(StatusFailed), ShouldBeTrue)
			So(StatusShuttedDown.canTransition(StatusFailed), ShouldBeTrue)
		})

		Convey("Only shutted down and failed are terminal", func() {
			So(StatusShuttedDown.Terminal(), ShouldBeTrue)
			So(StatusFailed.Terminal(), ShouldBeTrue)
			So(StatusStarted.Terminal(), ShouldBeFalse)
			So(StatusStopped.Terminal(), ShouldBeFalse)
		})
	})
}

func TestClassifyExit(t *testing.T) {
	Convey("Exit classification", t, func() {
		Convey("A zero exit during a handshake is normal", func() {
			So(classifyExit(StatusStopping, 0, ""), ShouldResemble, NormalExit{})
			So(classifyExit(StatusShuttingDown, 0, ""), ShouldResemble, NormalExit{})
			So(classifyExit(StatusShuttedDown, 0, ""), ShouldResemble, NormalExit{})
		})
		Convey("A zero exit while serving is abnormal", func() {
			So(classifyExit(StatusStarted, 0, ""), ShouldResemble, AbnormalExit{Code: 0})
		})
		Convey("A nonzero exit is always abnormal", func() {
			So(classifyExit(StatusShuttingDown, 3, ""), ShouldResemble, AbnormalExit{Code: 3})
		})
		Convey("A signal death names the signal", func() {
			So(classifyExit(StatusStarted, 0, "SIGKILL"),
				ShouldResemble, ExternalSignal{Signal: "SIGKILL"})
			So(classifyExit(StatusShuttingDown, 0, "SIGSEGV"),
				ShouldResemble, ExternalSignal{Signal: "SIGSEGV"})
		})
	})
}
