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

import "encoding/json"

// Event is a notification published by an orchestrator to its
// subscribers.  It is a closed union: WorkerExit, WorkerMessage or
// Error.
type Event interface {
	isEvent()
}

// WorkerExit reports the classified termination of a worker.  Restart
// policy on failures is the owning application's decision; the id can
// be fed straight into RestartWorkerByID.
type WorkerExit struct {
	ID     string
	Reason ExitReason
}

// WorkerMessage is an opaque application payload a worker sent
// upstream, forwarded verbatim.
type WorkerMessage struct {
	ID      string
	Payload json.RawMessage
}

// Error reports a runtime fault of a single worker or its channel.
// Faults surface here instead of failing orchestrator operations, so
// one misbehaving child cannot take down the supervisor.
type Error struct {
	Err error
}

func (WorkerExit) isEvent()    {}
func (WorkerMessage) isEvent() {}
func (Error) isEvent()         {}

const subscriptionBuffer = 64

// Subscription is one listener registration on an orchestrator.
// Events arrive on C.  A subscriber that falls more than the buffer
// behind loses the oldest unconsumed events.
type Subscription struct {
	C <-chan Event

	o *Orchestrator
	c chan Event
}

// Close cancels the registration and releases the channel.
func (s *Subscription) Close() {
	s.o.unsubscribe(s)
}

// Subscribe registers a listener for orchestrator events.  Each
// subscription is independent; there is no process-wide bus.
func (o *Orchestrator) Subscribe() *Subscription {
	c := make(chan Event, subscriptionBuffer)
	s := &Subscription{C: c, c: c, o: o}
	o.submx.Lock()
	o.subscribers[s] = true
	o.submx.Unlock()
	return s
}

func (o *Orchestrator) unsubscribe(s *Subscription) {
	o.submx.Lock()
	if o.subscribers[s] {
		delete(o.subscribers, s)
		close(s.c)
	}
	o.submx.Unlock()
}

// publish fans an event out to every subscriber without ever
// blocking the publishing goroutine.
func (o *Orchestrator) publish(ev Event) {
	o.submx.Lock()
	defer o.submx.Unlock()
	for s := range o.subscribers {
		for {
			select {
			case s.c <- ev:
			default:
				// Full: drop the oldest and retry.
				select {
				case <-s.c:
				default:
				}
				continue
			}
			break
		}
	}
}
