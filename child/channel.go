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

// Package child implements the worker-process side of the drover IPC
// protocol.  The hosted application creates one Channel, registers
// its stop/quit handlers, acknowledges lifecycle transitions through
// the Mark operations and then runs the channel until the process is
// asked to go away.
package child

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LCMApps/drover"
)

// Channel is the child-side counterpart of a worker handle.  It
// receives lifecycle commands, notifies the hosted application, and
// reports status transitions upstream.
//
// Lifecycle control flows exclusively through the command/status
// protocol: the channel ignores the default OS termination signals so
// that ambient signal delivery cannot race the handshake.
type Channel struct {
	mx     sync.Mutex
	status drover.Status
	enc    *drover.MessageEncoder
	dec    *drover.MessageDecoder

	onStop    func()
	onQuit    func()
	onMessage func(json.RawMessage)
}

// NewChannel wires a Channel to the IPC descriptors this process was
// spawned with.  It fails with an invalid-context error when the
// process is not a drover worker.
func NewChannel() (*Channel, error) {
	if os.Getenv(drover.EnvWorkerMarker) == "" {
		return nil, fmt.Errorf("%w: no worker marker in environment", drover.ErrNotWorkerContext)
	}
	in := os.NewFile(drover.CommandFD, "drover-commands")
	out := os.NewFile(drover.StatusFD, "drover-status")
	if in == nil || out == nil {
		return nil, fmt.Errorf("%w: IPC descriptors missing", drover.ErrNotWorkerContext)
	}
	signal.Ignore(os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	return NewChannelFrom(in, out), nil
}

// NewChannelFrom builds a Channel over explicit endpoints.  Used by
// tests and by applications embedding the protocol over their own
// transport; NewChannel is the production entry point.
func NewChannelFrom(in io.Reader, out io.Writer) *Channel {
	return &Channel{
		status: drover.StatusInitialized,
		enc:    drover.NewMessageEncoder(out),
		dec:    drover.NewMessageDecoder(in),
	}
}

// OnStop registers the handler invoked when the orchestrator asks the
// worker to stop.  The application must release its own resources
// (stop accepting new work) and then acknowledge with MarkStopped.
// Register before Run.
func (c *Channel) OnStop(fn func()) {
	c.onStop = fn
}

// OnQuit registers the handler invoked when the orchestrator asks the
// worker to go away.  The application must finish teardown and then
// acknowledge with MarkShutdown, after which it normally exits with
// code zero.  Register before Run.
func (c *Channel) OnQuit(fn func()) {
	c.onQuit = fn
}

// OnMessage registers the handler for opaque application payloads.
// Register before Run.
func (c *Channel) OnMessage(fn func(json.RawMessage)) {
	c.onMessage = fn
}

// Status returns the channel's local lifecycle status.
func (c *Channel) Status() drover.Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}

// MarkStarted reports that the hosted application is functionally
// ready.  Idempotent: only the call that actually changes the local
// status sends a report upstream.
func (c *Channel) MarkStarted() error {
	return c.mark(drover.StatusStarted, drover.StatusInitialized)
}

// MarkStopped acknowledges a stop command once the application has
// released its resources.  Idempotent.
func (c *Channel) MarkStopped() error {
	return c.mark(drover.StatusStopped, drover.StatusStopping)
}

// MarkShutdown acknowledges a quit command once teardown is done.
// Idempotent.
func (c *Channel) MarkShutdown() error {
	return c.mark(drover.StatusShuttedDown, drover.StatusShuttingDown)
}

// mark moves the local status to target if the current status is one
// of from, and reports the transition upstream.  Any other current
// status leaves the channel untouched.
func (c *Channel) mark(target drover.Status, from ...drover.Status) error {
	c.mx.Lock()
	moved := false
	for _, f := range from {
		if c.status == f {
			c.status = target
			moved = true
			break
		}
	}
	c.mx.Unlock()
	if !moved {
		return nil
	}
	return c.report(target)
}

func (c *Channel) report(st drover.Status) error {
	return c.enc.Encode(drover.StatusMessage{Status: st})
}

// Send forwards an opaque application payload upstream.
func (c *Channel) Send(payload json.RawMessage) error {
	return c.enc.Encode(drover.AppMessage{Payload: payload})
}

// Run consumes commands until the channel closes.  It returns nil on
// an orderly end of stream (the orchestrator went away) and an error
// on a protocol violation.  Handlers run on their own goroutines so a
// slow teardown cannot block a subsequent command.
func (c *Channel) Run() error {
	for {
		m, err := c.dec.Decode()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch m := m.(type) {
		case drover.CommandMessage:
			if err := c.handleCommand(m.Command); err != nil {
				return err
			}
		case drover.AppMessage:
			if c.onMessage != nil {
				go c.onMessage(m.Payload)
			}
		case drover.StatusMessage:
			return fmt.Errorf("%w: status report received downstream", drover.ErrProtocol)
		}
	}
}

// handleCommand applies the command transition, acknowledges it
// upstream and then notifies the hosted application.  The
// application's own acknowledgment (MarkStopped, MarkShutdown)
// follows once it has released its resources.
func (c *Channel) handleCommand(cmd drover.Command) error {
	var (
		next drover.Status
		fn   func()
	)
	switch cmd {
	case drover.CommandStop:
		next, fn = drover.StatusStopping, c.onStop
	case drover.CommandQuit:
		next, fn = drover.StatusShuttingDown, c.onQuit
	default:
		return fmt.Errorf("%w: unknown command %q", drover.ErrProtocol, cmd)
	}

	c.mx.Lock()
	if c.status == next {
		// Repeated command; already acknowledged.
		c.mx.Unlock()
		return nil
	}
	c.status = next
	c.mx.Unlock()

	if err := c.report(next); err != nil {
		return err
	}
	if fn != nil {
		go fn()
	}
	return nil
}
