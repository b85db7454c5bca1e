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

// Status is the lifecycle status of a single worker handle.  A handle
// only ever moves forward along the transitions encoded in
// forwardTransitions, with one exception: StatusFailed is reachable
// from any status when the child terminates unexpectedly.
type Status string

const (
	StatusInitialized  Status = "initialized"
	StatusStarting     Status = "starting"
	StatusStarted      Status = "started"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusShuttingDown Status = "shutting_down"
	StatusShuttedDown  Status = "shutted_down"
	StatusFailed       Status = "failed"
)

// forwardTransitions lists, per status, the statuses legally reachable
// from it.  StatusFailed is implicitly reachable from everywhere and
// is therefore not listed.
var forwardTransitions = map[Status][]Status{
	StatusInitialized:  {StatusStarting},
	StatusStarting:     {StatusStarted},
	StatusStarted:      {StatusStopping, StatusShuttingDown},
	StatusStopping:     {StatusStopped},
	StatusStopped:      {StatusShuttingDown},
	StatusShuttingDown: {StatusShuttedDown},
	StatusShuttedDown:  {},
	StatusFailed:       {},
}

// valid reports whether s is one of the known worker statuses.
func (s Status) valid() bool {
	_, ok := forwardTransitions[s]
	return ok
}

// Terminal reports whether a handle in this status is done: the
// underlying process is gone and no further transition will happen.
func (s Status) Terminal() bool {
	return s == StatusShuttedDown || s == StatusFailed
}

// canTransition reports whether moving from s to next respects the
// forward-only state machine.
func (s Status) canTransition(next Status) bool {
	if next == StatusFailed {
		return true
	}
	for _, t := range forwardTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// OrchestratorStatus is the lifecycle status of the orchestrator
// itself.  It starts and ends life in OrchestratorShutDown, which is
// reusable: a shut down orchestrator can be started again.
type OrchestratorStatus string

const (
	OrchestratorShutDown OrchestratorStatus = "shut_down"
	OrchestratorStarting OrchestratorStatus = "starting"
	OrchestratorStarted  OrchestratorStatus = "started"
	OrchestratorStopping OrchestratorStatus = "stopping"
	OrchestratorStopped  OrchestratorStatus = "stopped"
)

func (s OrchestratorStatus) String() string {
	return string(s)
}
