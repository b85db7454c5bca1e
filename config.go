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
	"fmt"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// SchedulingPolicy selects how Send distributes opaque application
// messages across started workers.
type SchedulingPolicy string

const (
	// SchedulingNone broadcasts every message to all started workers.
	SchedulingNone SchedulingPolicy = "none"
	// SchedulingRoundRobin delivers each message to the next started
	// worker in rotation.
	SchedulingRoundRobin SchedulingPolicy = "round-robin"
)

// Signals names the OS signals the owning application maps to the
// rolling-reload and graceful-shutdown operations.  The names use the
// conventional "SIGHUP" form.
type Signals struct {
	Reload   string
	Shutdown string
}

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultRestartTimeout = 1000 * time.Millisecond
	DefaultStatusTimeout  = 1000 * time.Millisecond
	DefaultReloadSignal   = "SIGHUP"
	DefaultShutdownSignal = "SIGTERM"
)

// Config describes a worker pool.  The orchestrator owns the value;
// handles read it and never mutate it.
type Config struct {
	// Script is the path of the worker executable.  Required; must
	// resolve to an existing regular file.
	Script string

	// Count is the initial number of replicas.  Defaults to the
	// number of CPUs available.
	Count int

	// Env is the environment the workers are spawned with.  The IPC
	// role markers are appended by the orchestrator.
	Env map[string]string

	// Signals for the owning application's reload/shutdown mapping.
	Signals Signals

	// SchedulingPolicy for Send.  Defaults to SchedulingNone.
	SchedulingPolicy SchedulingPolicy

	// RestartTimeout bounds the startup handshake of a replacement
	// worker created by RestartWorkerByID.
	RestartTimeout time.Duration

	// StatusTimeout bounds every other handshake wait: start, stop
	// and graceful quit.
	StatusTimeout time.Duration
}

// withDefaults returns a copy of c with zero values replaced by the
// documented defaults.
func (c Config) withDefaults() Config {
	if c.Count == 0 {
		c.Count = runtime.NumCPU()
	}
	if c.Signals.Reload == "" {
		c.Signals.Reload = DefaultReloadSignal
	}
	if c.Signals.Shutdown == "" {
		c.Signals.Shutdown = DefaultShutdownSignal
	}
	if c.SchedulingPolicy == "" {
		c.SchedulingPolicy = SchedulingNone
	}
	if c.RestartTimeout == 0 {
		c.RestartTimeout = DefaultRestartTimeout
	}
	if c.StatusTimeout == 0 {
		c.StatusTimeout = DefaultStatusTimeout
	}
	return c
}

// validate checks the construction invariants.  Runs after defaults
// are applied.
func (c Config) validate() error {
	if c.Script == "" {
		return fmt.Errorf("%w: script is required", ErrInvalidConfiguration)
	}
	fi, err := os.Stat(c.Script)
	if err != nil {
		return fmt.Errorf("%w: script %q: %v", ErrInvalidConfiguration, c.Script, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: script %q is not a regular file", ErrInvalidConfiguration, c.Script)
	}
	if c.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidConfiguration, c.Count)
	}
	if c.RestartTimeout <= 0 {
		return fmt.Errorf("%w: restart timeout must be positive", ErrInvalidConfiguration)
	}
	if c.StatusTimeout <= 0 {
		return fmt.Errorf("%w: status timeout must be positive", ErrInvalidConfiguration)
	}
	for _, name := range []string{c.Signals.Reload, c.Signals.Shutdown} {
		if unix.SignalNum(name) == 0 {
			return fmt.Errorf("%w: unknown signal name %q", ErrInvalidConfiguration, name)
		}
	}
	switch c.SchedulingPolicy {
	case SchedulingNone, SchedulingRoundRobin:
	default:
		return fmt.Errorf("%w: unknown scheduling policy %q", ErrInvalidConfiguration, c.SchedulingPolicy)
	}
	return nil
}

// ReloadSignal resolves the configured reload signal name.
func (c Config) ReloadSignal() os.Signal {
	return unix.SignalNum(c.Signals.Reload)
}

// ShutdownSignal resolves the configured shutdown signal name.
func (c Config) ShutdownSignal() os.Signal {
	return unix.SignalNum(c.Signals.Shutdown)
}
