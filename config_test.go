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
	"runtime"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConfigDefaults(t *testing.T) {
	Convey("Zero config fields take documented defaults", t, func() {
		cfg := Config{Script: testScript(t)}.withDefaults()
		So(cfg.Count, ShouldEqual, runtime.NumCPU())
		So(cfg.Signals.Reload, ShouldEqual, "SIGHUP")
		So(cfg.Signals.Shutdown, ShouldEqual, "SIGTERM")
		So(cfg.SchedulingPolicy, ShouldEqual, SchedulingNone)
		So(cfg.RestartTimeout, ShouldEqual, DefaultRestartTimeout)
		So(cfg.StatusTimeout, ShouldEqual, DefaultStatusTimeout)

		Convey("And the configured signal names resolve", func() {
			So(cfg.ReloadSignal(), ShouldEqual, syscall.SIGHUP)
			So(cfg.ShutdownSignal(), ShouldEqual, syscall.SIGTERM)
		})

		Convey("Provided values survive", func() {
			cfg := Config{
				Script:        testScript(t),
				Count:         7,
				StatusTimeout: 3 * time.Second,
			}.withDefaults()
			So(cfg.Count, ShouldEqual, 7)
			So(cfg.StatusTimeout, ShouldEqual, 3*time.Second)
		})
	})
}

func TestConfigValidation(t *testing.T) {
	Convey("Configuration validation", t, func() {
		valid := func() Config {
			return testPoolConfig(t, 2)
		}

		rejects := func(cfg Config) {
			_, e := NewWithSpawner(cfg, newFakeSpawner())
			So(errors.Is(e, ErrInvalidConfiguration), ShouldBeTrue)
		}

		Convey("A valid config is accepted", func() {
			o, e := NewWithSpawner(valid(), newFakeSpawner())
			So(e, ShouldBeNil)
			So(o, ShouldNotBeNil)
		})

		Convey("The script is required", func() {
			cfg := valid()
			cfg.Script = ""
			rejects(cfg)
		})

		Convey("The script must exist", func() {
			cfg := valid()
			cfg.Script = "/no/such/worker.sh"
			rejects(cfg)
		})

		Convey("The script must be a regular file", func() {
			cfg := valid()
			cfg.Script = t.TempDir()
			rejects(cfg)
		})

		Convey("Timeouts must be positive", func() {
			cfg := valid()
			cfg.StatusTimeout = -time.Second
			rejects(cfg)

			cfg = valid()
			cfg.RestartTimeout = -time.Second
			rejects(cfg)
		})

		Convey("Signal names must resolve", func() {
			cfg := valid()
			cfg.Signals.Reload = "SIGBOGUS"
			rejects(cfg)
		})

		Convey("The scheduling policy is a closed enum", func() {
			cfg := valid()
			cfg.SchedulingPolicy = SchedulingPolicy("fanciest-first")
			rejects(cfg)
		})
	})
}

func TestWorkerEnv(t *testing.T) {
	Convey("The spawn environment carries the role markers", t, func() {
		cfg := Config{
			Script:           "app.sh",
			Env:              map[string]string{"APP_MODE": "test"},
			SchedulingPolicy: SchedulingRoundRobin,
		}
		env := WorkerEnv(&cfg)
		So(env, ShouldContain, "APP_MODE=test")
		So(env, ShouldContain, EnvWorkerMarker+"=1")
		So(env, ShouldContain, EnvSchedulingPolicy+"=round-robin")
	})
}
