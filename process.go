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
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Environment markers and file descriptor positions that define the
// worker side of the IPC contract.  The child package consumes them.
const (
	// EnvWorkerMarker is set in every spawned worker's environment.
	// Its presence distinguishes the worker role from the
	// orchestrator role.
	EnvWorkerMarker = "DROVER_WORKER"

	// EnvSchedulingPolicy exposes the configured scheduling policy to
	// the hosted application.
	EnvSchedulingPolicy = "DROVER_SCHEDULING_POLICY"

	// CommandFD is the descriptor the child reads commands from.
	CommandFD = 3

	// StatusFD is the descriptor the child writes status reports and
	// application messages to.
	StatusFD = 4
)

// ProcessEvent is one event emitted by a spawned process.  It is a
// closed union: ProcessOnline, ProcessMessage, ProcessError or
// ProcessExit.
type ProcessEvent interface {
	isProcessEvent()
}

// ProcessOnline is emitted once, when the OS has accepted the spawn
// and the IPC channel is wired up.
type ProcessOnline struct{}

// ProcessMessage is an inbound IPC message from the child.
type ProcessMessage struct {
	Message Message
}

// ProcessError is a runtime fault on the channel or the process that
// is not a termination.
type ProcessError struct {
	Err error
}

// ProcessExit is emitted exactly once, last, when the process has
// terminated.  Signal is empty for plain exits; Code is meaningless
// when Signal is set.
type ProcessExit struct {
	Code   int
	Signal string
}

func (ProcessOnline) isProcessEvent()  {}
func (ProcessMessage) isProcessEvent() {}
func (ProcessError) isProcessEvent()   {}
func (ProcessExit) isProcessEvent()    {}

// Process is a live child process as seen by a worker handle.  The
// handle owns it exclusively and releases it on termination.
type Process interface {
	// Pid of the underlying OS process.
	Pid() int

	// Send delivers a message over the IPC channel.  The error is
	// the delivery acknowledgment.
	Send(m Message) error

	// Signal sends an OS signal.
	Signal(sig os.Signal) error

	// Kill force-terminates the process.  It never waits.
	Kill() error

	// Events is the ordered event stream.  It is closed after the
	// ProcessExit event has been delivered.
	Events() <-chan ProcessEvent
}

// Spawner is the process host capability consumed by worker handles.
// The default implementation forks OS processes; tests substitute
// their own.
type Spawner interface {
	Spawn(script string, env []string) (Process, error)
}

// execSpawner spawns real OS processes with two anonymous pipes: the
// child reads commands on CommandFD and writes status on StatusFD.
// Child stdout/stderr are captured line-wise into the logger.
type execSpawner struct {
	logger *log.Logger
}

// NewExecSpawner returns the OS-process Spawner used by default.
// Captured child output and spawn diagnostics go to logger.
func NewExecSpawner(logger *log.Logger) Spawner {
	return &execSpawner{logger: logger}
}

func (s *execSpawner) Spawn(script string, env []string) (Process, error) {
	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", script, err)
	}
	statR, statW, err := os.Pipe()
	if err != nil {
		cmdR.Close()
		cmdW.Close()
		return nil, fmt.Errorf("spawn %s: %w", script, err)
	}

	cmd := exec.Command(script)
	cmd.Env = env
	// ExtraFiles[0] becomes fd 3 in the child, ExtraFiles[1] fd 4.
	cmd.ExtraFiles = []*os.File{cmdR, statW}

	p := &execProcess{
		cmd:    cmd,
		cmdW:   cmdW,
		statR:  statR,
		enc:    NewMessageEncoder(cmdW),
		logger: s.logger,
		events: make(chan ProcessEvent, 32),
	}

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		go p.captureOutput(stdout, "stdout> ")
	}
	stderr, err := cmd.StderrPipe()
	if err == nil {
		go p.captureOutput(stderr, "stderr> ")
	}

	if err := cmd.Start(); err != nil {
		// Release every pipe end before propagating; a failed spawn
		// must not leak descriptors.
		cmdR.Close()
		cmdW.Close()
		statR.Close()
		statW.Close()
		return nil, fmt.Errorf("spawn %s: %w", script, err)
	}
	// The child holds its own copies now.
	cmdR.Close()
	statW.Close()

	p.events <- ProcessOnline{}
	readerDone := make(chan struct{})
	go p.readStatus(readerDone)
	go p.wait(readerDone)
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	cmdW   *os.File
	statR  *os.File
	enc    *MessageEncoder
	logger *log.Logger
	events chan ProcessEvent
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Send(m Message) error {
	return p.enc.Encode(m)
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Events() <-chan ProcessEvent {
	return p.events
}

func (p *execProcess) captureOutput(r io.ReadCloser, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			p.logger.Printf("[%d] %s%s", p.Pid(), prefix, strings.TrimRight(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}

// readStatus decodes the child's status stream until EOF.  Malformed
// traffic is surfaced as ProcessError events; the boundary never
// drops a message silently.
func (p *execProcess) readStatus(done chan<- struct{}) {
	defer close(done)
	dec := NewMessageDecoder(p.statR)
	for {
		m, err := dec.Decode()
		if err != nil {
			if err != io.EOF {
				p.events <- ProcessError{Err: err}
			}
			return
		}
		p.events <- ProcessMessage{Message: m}
	}
}

// wait reaps the process.  The status reader is drained first so the
// exit event is always the last one delivered.
func (p *execProcess) wait(readerDone <-chan struct{}) {
	err := p.cmd.Wait()
	<-readerDone
	p.statR.Close()
	p.cmdW.Close()

	var ev ProcessExit
	if ps := p.cmd.ProcessState; ps == nil {
		// Wait itself failed; report it before the exit event.
		p.events <- ProcessError{Err: err}
		ev.Code = -1
	} else if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		ev.Signal = unix.SignalName(ws.Signal())
	} else {
		ev.Code = ps.ExitCode()
	}
	p.events <- ev
	close(p.events)
}

// WorkerEnv builds the spawn environment for a worker from the
// configured mapping plus the IPC role markers.
func WorkerEnv(cfg *Config) []string {
	env := make([]string, 0, len(cfg.Env)+2)
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		EnvWorkerMarker+"=1",
		EnvSchedulingPolicy+"="+string(cfg.SchedulingPolicy))
	return env
}

// insideWorker reports whether the current process was spawned as a
// drover worker.
func insideWorker() bool {
	return os.Getenv(EnvWorkerMarker) != ""
}
