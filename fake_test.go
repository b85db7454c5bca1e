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
	"os"
	"strings"
	"sync"
	"testing"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

// fakeSpawner hosts in-memory processes that speak the worker side of
// the IPC protocol.  The knobs inject the misbehaviors the real world
// supplies for free.
type fakeSpawner struct {
	mx        sync.Mutex
	procs     []*fakeProcess
	pid       int
	failAfter int  // refuse spawns once this many succeeded; -1 never
	holdStart bool // spawned processes wait for releaseStarts
	exitEarly bool // die with code 1 instead of reporting started
	badReport bool // report an illegal status instead of started
	ignore    bool // spawned processes ignore stop/quit commands
	dieOnStop bool // exit 0 mid-stop instead of reporting stopped
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{failAfter: -1}
}

func (s *fakeSpawner) Spawn(script string, env []string) (Process, error) {
	s.mx.Lock()
	if s.failAfter >= 0 && len(s.procs) >= s.failAfter {
		s.mx.Unlock()
		return nil, errors.New("spawn refused")
	}
	s.pid++
	p := &fakeProcess{
		pid:       s.pid,
		env:       env,
		hold:      s.holdStart,
		ignore:    s.ignore,
		dieOnStop: s.dieOnStop,
		events:    make(chan ProcessEvent, 32),
	}
	s.procs = append(s.procs, p)
	exitEarly, badReport := s.exitEarly, s.badReport
	s.mx.Unlock()

	p.emit(ProcessOnline{})
	switch {
	case exitEarly:
		p.exit(1, "")
	case badReport:
		p.report(StatusStopped)
	case !p.holding():
		p.report(StatusStarted)
	}
	return p, nil
}

func (s *fakeSpawner) setHold(hold bool) {
	s.mx.Lock()
	s.holdStart = hold
	s.mx.Unlock()
}

// releaseStarts lets every held process report started.
func (s *fakeSpawner) releaseStarts() {
	s.mx.Lock()
	procs := append([]*fakeProcess{}, s.procs...)
	s.mx.Unlock()
	for _, p := range procs {
		if p.release() {
			p.report(StatusStarted)
		}
	}
}

func (s *fakeSpawner) spawned() []*fakeProcess {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]*fakeProcess{}, s.procs...)
}

func (s *fakeSpawner) killedCount() int {
	n := 0
	for _, p := range s.spawned() {
		if p.wasKilled() {
			n++
		}
	}
	return n
}

type fakeProcess struct {
	pid    int
	env    []string
	events chan ProcessEvent

	mx        sync.Mutex
	hold      bool
	ignore    bool
	dieOnStop bool
	exited    bool
	killed    bool
	app       []string // opaque payloads received
}

func (p *fakeProcess) Pid() int {
	return p.pid
}

func (p *fakeProcess) Events() <-chan ProcessEvent {
	return p.events
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mx.Lock()
	p.killed = true
	p.mx.Unlock()
	p.exit(0, "SIGKILL")
	return nil
}

func (p *fakeProcess) Send(m Message) error {
	p.mx.Lock()
	if p.exited {
		p.mx.Unlock()
		return errors.New("process is gone")
	}
	if am, ok := m.(AppMessage); ok {
		p.app = append(p.app, string(am.Payload))
		p.mx.Unlock()
		return nil
	}
	cm, ok := m.(CommandMessage)
	ignore, dieOnStop := p.ignore, p.dieOnStop
	p.mx.Unlock()
	if !ok || ignore {
		return nil
	}
	switch cm.Command {
	case CommandStop:
		p.report(StatusStopping)
		if dieOnStop {
			p.exit(0, "")
			return nil
		}
		p.report(StatusStopped)
	case CommandQuit:
		p.report(StatusShuttingDown)
		p.report(StatusShuttedDown)
		p.exit(0, "")
	}
	return nil
}

func (p *fakeProcess) report(st Status) {
	p.emit(ProcessMessage{Message: StatusMessage{Status: st}})
}

func (p *fakeProcess) emit(ev ProcessEvent) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.exited {
		return
	}
	p.events <- ev
}

// exit delivers the final event and closes the stream.  Idempotent.
func (p *fakeProcess) exit(code int, signal string) {
	p.mx.Lock()
	if p.exited {
		p.mx.Unlock()
		return
	}
	p.exited = true
	p.events <- ProcessExit{Code: code, Signal: signal}
	close(p.events)
	p.mx.Unlock()
}

func (p *fakeProcess) holding() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.hold
}

// release clears the hold flag, reporting whether it was set.
func (p *fakeProcess) release() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.hold {
		return false
	}
	p.hold = false
	return true
}

func (p *fakeProcess) wasKilled() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.killed
}

func (p *fakeProcess) payloads() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string{}, p.app...)
}
