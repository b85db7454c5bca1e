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
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerInfo is a point-in-time snapshot of one worker handle.
type WorkerInfo struct {
	ID     string `json:"id"`
	Pid    int    `json:"pid"`
	Status Status `json:"status"`
}

// workerHooks are the upcalls a handle makes into its orchestrator.
// They run on the handle's event goroutine and must not block.
type workerHooks struct {
	onExit    func(w *Worker, reason ExitReason)
	onError   func(w *Worker, err error)
	onMessage func(w *Worker, payload json.RawMessage)
}

// Worker is the supervisor-side handle for one child process.  It
// owns the process exclusively: it spawns it, drives it through the
// lifecycle handshake, and classifies its termination.
//
// A handle's operations are safe for concurrent use with the event
// goroutine that consumes the process stream, but the lifecycle
// operations themselves (Start, Stop, Quit) are steps of a single
// orchestrator operation and are never overlapped by the caller.
type Worker struct {
	mx      sync.Mutex
	cfg     *Config
	spawner Spawner
	logger  *log.Logger
	hooks   workerHooks

	id      string // assigned when the process comes online
	pid     int
	status  Status
	proc    Process
	subs    map[chan Status]bool
	pending *statusWait
}

func newWorker(cfg *Config, spawner Spawner, logger *log.Logger, hooks workerHooks) *Worker {
	return &Worker{
		cfg:     cfg,
		spawner: spawner,
		logger:  logger,
		hooks:   hooks,
		status:  StatusInitialized,
		subs:    make(map[chan Status]bool),
	}
}

// ID returns the worker identity, or the empty string before the
// underlying process has been confirmed alive.
func (w *Worker) ID() string {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.id
}

// Status returns the current lifecycle status.  Never suspends.
func (w *Worker) Status() Status {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.status
}

// Info returns a consistent snapshot of the handle.
func (w *Worker) Info() WorkerInfo {
	w.mx.Lock()
	defer w.mx.Unlock()
	return WorkerInfo{ID: w.id, Pid: w.pid, Status: w.status}
}

// Start spawns the child and resolves only after observing the exact
// sequence starting, started.  Callable only from the initialized
// status.  A failed spawn cleans up before propagating; a child that
// dies or misreports before coming up fails the start with the
// deviation observed.
func (w *Worker) Start() error {
	return w.start(w.cfg.StatusTimeout)
}

func (w *Worker) start(timeout time.Duration) error {
	w.mx.Lock()
	if w.status != StatusInitialized {
		st := w.status
		w.mx.Unlock()
		return fmt.Errorf("%w: cannot start from %q", ErrUnexpectedWorkerState, st)
	}
	w.mx.Unlock()

	// Subscribe before spawning so the online transition cannot be
	// missed.
	sw := w.beginWait([]Status{StatusStarting, StatusStarted}, "", timeout)
	proc, err := w.spawner.Spawn(w.cfg.Script, WorkerEnv(w.cfg))
	if err != nil {
		sw.abort()
		return fmt.Errorf("worker start: %w", err)
	}
	w.mx.Lock()
	w.proc = proc
	w.mx.Unlock()
	go w.loop(proc)

	if err := sw.wait(); err != nil {
		return fmt.Errorf("worker start: %w", err)
	}
	return nil
}

// Stop sends the stop command and waits for the stopping, stopped
// acknowledgment sequence.  A handle with no live process resolves
// immediately.
func (w *Worker) Stop() error {
	proc := w.process()
	if proc == nil {
		return nil
	}
	sw := w.beginWait([]Status{StatusStopping, StatusStopped}, "", w.cfg.StatusTimeout)
	if err := proc.Send(CommandMessage{Command: CommandStop}); err != nil {
		sw.abort()
		return fmt.Errorf("worker %s stop: %w", w.ID(), err)
	}
	return sw.wait()
}

// Quit ends the worker.  With force set it issues an immediate kill
// and resolves without waiting for anything.  Otherwise it sends the
// quit command and waits for the shutting down, shutted down
// handshake.
func (w *Worker) Quit(force bool) error {
	proc := w.process()
	if proc == nil {
		return nil
	}
	if force {
		return proc.Kill()
	}
	sw := w.beginWait([]Status{StatusShuttingDown, StatusShuttedDown}, "", w.cfg.StatusTimeout)
	if err := proc.Send(CommandMessage{Command: CommandQuit}); err != nil {
		sw.abort()
		return fmt.Errorf("worker %s quit: %w", w.ID(), err)
	}
	return sw.wait()
}

// Send forwards an opaque application payload to the child.
func (w *Worker) Send(payload json.RawMessage) error {
	proc := w.process()
	if proc == nil {
		return fmt.Errorf("%w: worker has no live process", ErrUnexpectedWorkerState)
	}
	return proc.Send(AppMessage{Payload: payload})
}

func (w *Worker) process() Process {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.proc
}

// setStatus applies a forward transition and notifies subscribers.
// Returns false if the transition is not legal.
func (w *Worker) setStatus(to Status) bool {
	w.mx.Lock()
	if !w.status.canTransition(to) {
		w.mx.Unlock()
		return false
	}
	w.commitStatus(to)
	return true
}

// settleStatus records the terminal outcome of a vanished process.
// The exit event is authoritative, so the forward table does not
// apply here.
func (w *Worker) settleStatus(to Status) {
	w.mx.Lock()
	if w.status == to {
		w.mx.Unlock()
		return
	}
	w.commitStatus(to)
}

// commitStatus records the transition and notifies subscribers.
// Called with the lock held; releases it.
func (w *Worker) commitStatus(to Status) {
	from := w.status
	w.status = to
	id := w.id
	subs := make([]chan Status, 0, len(w.subs))
	for ch := range w.subs {
		subs = append(subs, ch)
	}
	w.mx.Unlock()

	w.logf("worker %s: %s -> %s", id, from, to)
	for _, ch := range subs {
		ch <- to
	}
}

// loop consumes the process event stream until the process is gone.
func (w *Worker) loop(proc Process) {
	for ev := range proc.Events() {
		switch ev := ev.(type) {
		case ProcessOnline:
			w.mx.Lock()
			w.id = uuid.NewString()
			w.pid = proc.Pid()
			w.mx.Unlock()
			w.setStatus(StatusStarting)
		case ProcessMessage:
			w.handleMessage(ev.Message)
		case ProcessError:
			w.fault(fmt.Errorf("worker %s: %w", w.ID(), ev.Err))
		case ProcessExit:
			w.handleExit(ev.Code, ev.Signal)
		}
	}
}

func (w *Worker) handleMessage(m Message) {
	switch m := m.(type) {
	case StatusMessage:
		if !w.setStatus(m.Status) {
			// A report that is not a legal forward transition is a
			// protocol violation.  Failing the handle makes any
			// pending assurance fail fast instead of timing out.
			w.fault(fmt.Errorf("%w: worker %s reported %q from %q",
				ErrProtocol, w.ID(), m.Status, w.Status()))
			w.setStatus(StatusFailed)
		}
	case AppMessage:
		if w.hooks.onMessage != nil {
			w.hooks.onMessage(w, m.Payload)
		}
	case CommandMessage:
		w.fault(fmt.Errorf("%w: worker %s sent command %q upstream",
			ErrProtocol, w.ID(), m.Command))
	}
}

// handleExit classifies the termination, settles the terminal status
// and releases the process reference.
func (w *Worker) handleExit(code int, signal string) {
	w.mx.Lock()
	st := w.status
	w.proc = nil
	w.mx.Unlock()

	reason := classifyExit(st, code, signal)
	switch reason.(type) {
	case NormalExit:
		w.settleStatus(StatusShuttedDown)
	default:
		w.setStatus(StatusFailed)
	}
	w.logf("worker %s: exited: %s", w.ID(), reason)
	if w.hooks.onExit != nil {
		w.hooks.onExit(w, reason)
	}
}

func (w *Worker) fault(err error) {
	w.logf("%v", err)
	if w.hooks.onError != nil {
		w.hooks.onError(w, err)
	}
}

func (w *Worker) logf(format string, v ...interface{}) {
	if w.logger != nil {
		w.logger.Printf(format, v...)
	}
}
