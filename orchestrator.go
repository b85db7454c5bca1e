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
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator owns an ordered collection of worker handles and
// composes per-handle operations into consistent group operations.
//
// All mutating operations are sequences of waits on child
// acknowledgments.  Overlapping invocations of two mutating
// operations on the same instance are a caller error and must be
// serialized by the owning application; read-only accessors are safe
// at any time.
type Orchestrator struct {
	mx      sync.Mutex // guards status, workers, scale, rrNext
	cfg     Config
	spawner Spawner
	journal *Journal
	tee     *teeWriter
	logger  *log.Logger

	status  OrchestratorStatus
	workers []*Worker // insertion order; scale-down removes from the front
	scale   int       // desired replica count
	rrNext  int

	submx       sync.Mutex
	subscribers map[*Subscription]bool
}

// New validates the configuration and builds an orchestrator with
// count initialized handles.  The orchestrator starts shut down;
// nothing is spawned until Start.
func New(cfg Config) (*Orchestrator, error) {
	return NewWithSpawner(cfg, nil)
}

// NewWithSpawner is New with a substitute process host capability.  A
// nil spawner selects the default OS process spawner.
func NewWithSpawner(cfg Config, spawner Spawner) (*Orchestrator, error) {
	if insideWorker() {
		return nil, fmt.Errorf("%w: cannot create an orchestrator", ErrWorkerContext)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:         cfg,
		journal:     NewJournal(),
		status:      OrchestratorShutDown,
		scale:       cfg.Count,
		subscribers: make(map[*Subscription]bool),
	}
	o.tee = &teeWriter{ws: []io.Writer{o.journal}}
	o.logger = log.New(o.tee, "", log.LstdFlags)
	if spawner == nil {
		spawner = NewExecSpawner(o.logger)
	}
	o.spawner = spawner
	o.workers = o.buildWorkers(cfg.Count)
	return o, nil
}

// Status returns the orchestrator's own lifecycle status.
func (o *Orchestrator) Status() OrchestratorStatus {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.status
}

// Scale returns the desired replica count, which may differ from the
// collection size while an operation is in flight.
func (o *Orchestrator) Scale() int {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.scale
}

// Config returns a copy of the effective configuration, with defaults
// applied.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// WorkersStatuses returns an ordered read-only snapshot of each
// handle's current status.  Never suspends.
func (o *Orchestrator) WorkersStatuses() []Status {
	o.mx.Lock()
	defer o.mx.Unlock()
	statuses := make([]Status, len(o.workers))
	for i, w := range o.workers {
		statuses[i] = w.Status()
	}
	return statuses
}

// Workers returns an ordered snapshot of the handles.
func (o *Orchestrator) Workers() []WorkerInfo {
	o.mx.Lock()
	defer o.mx.Unlock()
	infos := make([]WorkerInfo, len(o.workers))
	for i, w := range o.workers {
		infos[i] = w.Info()
	}
	return infos
}

// Start brings the whole pool up.  It resolves only once every
// handle has completed its startup handshake.  If any handle fails,
// already-started siblings are torn down before the error
// propagates, the collection is rebuilt fresh, and the orchestrator
// is left shut down; no retry is attempted.
func (o *Orchestrator) Start() error {
	o.mx.Lock()
	switch o.status {
	case OrchestratorShutDown, OrchestratorStopped:
	default:
		o.mx.Unlock()
		return ErrAlreadyStarted
	}
	wasStopped := o.status == OrchestratorStopped
	o.status = OrchestratorStarting
	old := o.snapshot()
	o.mx.Unlock()

	if wasStopped {
		// A stopped worker cannot re-run the startup handshake, so
		// the stopped pool is retired and replaced wholesale.  The
		// retirement escalates to a forced kill if cooperation times
		// out: Start must make progress.
		if err := o.quitBatch(old, false); err != nil {
			o.logf("retiring stopped workers: %v; escalating to kill", err)
			o.quitBatch(old, true)
		}
		o.mx.Lock()
		o.workers = o.buildWorkers(o.scale)
		o.mx.Unlock()
	} else if len(old) == 0 {
		// Reusable after a shutdown emptied the collection.
		o.mx.Lock()
		o.workers = o.buildWorkers(o.scale)
		o.mx.Unlock()
	}

	o.mx.Lock()
	ws := o.snapshot()
	o.mx.Unlock()
	if err := o.startBatch(ws); err != nil {
		o.quitBatch(ws, true)
		o.mx.Lock()
		o.workers = o.buildWorkers(o.scale)
		o.status = OrchestratorShutDown
		o.mx.Unlock()
		return fmt.Errorf("start: %w", err)
	}

	o.mx.Lock()
	o.status = OrchestratorStarted
	o.mx.Unlock()
	o.logf("started %d workers", len(ws))
	return nil
}

// Rescale changes the pool to size replicas and returns the signed
// delta applied.  Growing appends freshly started handles; shrinking
// removes the oldest-surviving handles first and gracefully kills
// them.
func (o *Orchestrator) Rescale(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidScale, size)
	}
	o.mx.Lock()
	if o.status != OrchestratorStarted {
		st := o.status
		o.mx.Unlock()
		return 0, fmt.Errorf("%w: rescale from %q", ErrInappropriateCondition, st)
	}
	cur := len(o.workers)
	o.scale = size
	delta := size - cur

	switch {
	case delta > 0:
		fresh := o.buildWorkers(delta)
		o.workers = append(o.workers, fresh...)
		o.mx.Unlock()
		if err := o.startBatch(fresh); err != nil {
			o.quitBatch(fresh, true)
			o.mx.Lock()
			o.removeWorkers(fresh)
			o.mx.Unlock()
			return 0, fmt.Errorf("rescale: %w", err)
		}
	case delta < 0:
		victims := o.snapshot()[:cur-size]
		o.mx.Unlock()
		// Victims stay in the collection until the quit resolves, so
		// a failed handshake leaves them reachable for escalation.
		if err := o.quitBatch(victims, false); err != nil {
			return 0, fmt.Errorf("rescale: %w", err)
		}
		o.mx.Lock()
		o.removeWorkers(victims)
		o.mx.Unlock()
	default:
		o.mx.Unlock()
	}
	o.logf("rescaled from %d to %d workers", cur, size)
	return delta, nil
}

// GracefulStop signals every handle to stop and waits for each to
// acknowledge.  Workers stay alive but stop serving.  On a handle
// failure the orchestrator is left stopping; the caller decides
// whether to escalate to HardShutdown.
func (o *Orchestrator) GracefulStop() error {
	o.mx.Lock()
	if o.status != OrchestratorStarted {
		st := o.status
		o.mx.Unlock()
		return fmt.Errorf("%w: stop from %q", ErrInappropriateCondition, st)
	}
	o.status = OrchestratorStopping
	ws := o.snapshot()
	o.mx.Unlock()

	if err := o.stopBatch(ws); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	o.mx.Lock()
	o.status = OrchestratorStopped
	o.mx.Unlock()
	o.logf("stopped %d workers", len(ws))
	return nil
}

// GracefulShutdown stops the pool if it is still serving, then
// gracefully kills every handle and empties the collection.
func (o *Orchestrator) GracefulShutdown() error {
	o.mx.Lock()
	st := o.status
	o.mx.Unlock()
	switch st {
	case OrchestratorStarted, OrchestratorStopped:
	default:
		return fmt.Errorf("%w: shutdown from %q", ErrInappropriateCondition, st)
	}

	if st == OrchestratorStarted {
		if err := o.GracefulStop(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	o.mx.Lock()
	ws := o.snapshot()
	o.mx.Unlock()
	if err := o.quitBatch(ws, false); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	o.mx.Lock()
	o.workers = nil
	o.status = OrchestratorShutDown
	o.mx.Unlock()
	o.logf("shut down")
	return nil
}

// HardShutdown force-kills every handle immediately: no handshake,
// no waiting for cooperation.  It completes in bounded time
// regardless of child responsiveness and is allowed from any status.
func (o *Orchestrator) HardShutdown() {
	o.mx.Lock()
	ws := o.snapshot()
	o.workers = nil
	o.status = OrchestratorShutDown
	o.mx.Unlock()

	for _, w := range ws {
		w.Quit(true)
	}
	o.logf("hard shut down")
}

// GracefulReload performs a rolling restart: a full replacement set
// is started first, then the old set is stopped and gracefully
// killed.  Old handles keep serving until every replacement has
// confirmed started, so there is no service interruption.  While
// replacements come up the collection temporarily holds both sets.
func (o *Orchestrator) GracefulReload() error {
	o.mx.Lock()
	if o.status != OrchestratorStarted {
		st := o.status
		o.mx.Unlock()
		return fmt.Errorf("%w: reload from %q", ErrInappropriateCondition, st)
	}
	old := o.snapshot()
	fresh := o.buildWorkers(o.scale)
	o.workers = append(o.workers, fresh...)
	o.mx.Unlock()

	if err := o.startBatch(fresh); err != nil {
		o.quitBatch(fresh, true)
		o.mx.Lock()
		o.removeWorkers(fresh)
		o.mx.Unlock()
		return fmt.Errorf("reload: %w", err)
	}

	// Replacements are serving; retire the old set.
	if err := o.stopBatch(old); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := o.quitBatch(old, false); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	o.mx.Lock()
	o.removeWorkers(old)
	o.mx.Unlock()
	o.logf("reloaded %d workers", len(fresh))
	return nil
}

// RestartWorkerByID hard-kills the handle with the given identity and
// replaces it, at the same collection position, with a freshly
// created and started handle.  The replacement's startup handshake is
// bounded by the restart timeout.  An unknown id is a no-op.
func (o *Orchestrator) RestartWorkerByID(id string) error {
	o.mx.Lock()
	idx := -1
	for i, w := range o.workers {
		if w.ID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mx.Unlock()
		return nil
	}
	victim := o.workers[idx]
	repl := o.newPoolWorker()
	o.workers[idx] = repl
	o.mx.Unlock()

	victim.Quit(true)
	if err := repl.start(o.cfg.RestartTimeout); err != nil {
		repl.Quit(true)
		o.mx.Lock()
		o.removeWorkers([]*Worker{repl})
		o.mx.Unlock()
		return fmt.Errorf("restart worker %s: %w", id, err)
	}
	o.logf("restarted worker %s as %s", id, repl.ID())
	return nil
}

// Send delivers an opaque application payload to started workers
// according to the configured scheduling policy: round-robin picks
// the next started worker in rotation, none broadcasts to all.
func (o *Orchestrator) Send(payload json.RawMessage) error {
	o.mx.Lock()
	started := make([]*Worker, 0, len(o.workers))
	for _, w := range o.workers {
		if w.Status() == StatusStarted {
			started = append(started, w)
		}
	}
	if len(started) == 0 {
		o.mx.Unlock()
		return fmt.Errorf("%w: no started workers", ErrInappropriateCondition)
	}
	if o.cfg.SchedulingPolicy == SchedulingRoundRobin {
		w := started[o.rrNext%len(started)]
		o.rrNext++
		o.mx.Unlock()
		return w.Send(payload)
	}
	o.mx.Unlock()
	for _, w := range started {
		if err := w.Send(payload); err != nil {
			return err
		}
	}
	return nil
}

// Log returns journal records newer than since, with the current
// journal id.
func (o *Orchestrator) Log(since int64) ([]JournalRecord, int64) {
	return o.journal.Records(since)
}

// WatchLog blocks until the journal changes or the expiration
// elapses.
func (o *Orchestrator) WatchLog(since int64, expire time.Duration) int64 {
	return o.journal.Watch(since, expire)
}

// SetLogWriter mirrors the orchestrator's log stream to w in addition
// to the journal.
func (o *Orchestrator) SetLogWriter(w io.Writer) {
	o.tee.add(w)
}

// snapshot copies the collection.  Call with the lock held.
func (o *Orchestrator) snapshot() []*Worker {
	return append([]*Worker{}, o.workers...)
}

func (o *Orchestrator) buildWorkers(n int) []*Worker {
	ws := make([]*Worker, n)
	for i := range ws {
		ws[i] = o.newPoolWorker()
	}
	return ws
}

func (o *Orchestrator) newPoolWorker() *Worker {
	return newWorker(&o.cfg, o.spawner, o.logger, workerHooks{
		onExit: func(w *Worker, reason ExitReason) {
			o.publish(WorkerExit{ID: w.ID(), Reason: reason})
		},
		onError: func(w *Worker, err error) {
			o.publish(Error{Err: err})
		},
		onMessage: func(w *Worker, payload json.RawMessage) {
			o.publish(WorkerMessage{ID: w.ID(), Payload: payload})
		},
	})
}

// removeWorkers drops the given handles from the collection, keeping
// order.  Call with the lock held.
func (o *Orchestrator) removeWorkers(rm []*Worker) {
	drop := make(map[*Worker]bool, len(rm))
	for _, w := range rm {
		drop[w] = true
	}
	kept := o.workers[:0]
	for _, w := range o.workers {
		if !drop[w] {
			kept = append(kept, w)
		}
	}
	o.workers = kept
}

func (o *Orchestrator) startBatch(ws []*Worker) error {
	var g errgroup.Group
	for _, w := range ws {
		w := w
		g.Go(w.Start)
	}
	return g.Wait()
}

func (o *Orchestrator) stopBatch(ws []*Worker) error {
	var g errgroup.Group
	for _, w := range ws {
		w := w
		g.Go(w.Stop)
	}
	return g.Wait()
}

func (o *Orchestrator) quitBatch(ws []*Worker, force bool) error {
	var g errgroup.Group
	for _, w := range ws {
		w := w
		g.Go(func() error { return w.Quit(force) })
	}
	return g.Wait()
}

func (o *Orchestrator) logf(format string, v ...interface{}) {
	o.logger.Printf(format, v...)
}
