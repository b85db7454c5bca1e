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

import "fmt"

// ExitReason describes why a worker process terminated.  Exactly one
// reason is produced per termination.  It is a closed union:
// NormalExit, AbnormalExit or ExternalSignal.
type ExitReason interface {
	isExitReason()
	String() string
}

// NormalExit is a clean zero exit during a stop or quit handshake.
type NormalExit struct {
	Code int
}

// AbnormalExit is an exit the handle did not ask for, or an exit with
// a nonzero code.
type AbnormalExit struct {
	Code int
}

// ExternalSignal is a death by a signal the orchestrator did not send
// as part of a handshake.  Signal carries the OS-level name, e.g.
// "SIGKILL".
type ExternalSignal struct {
	Signal string
}

func (NormalExit) isExitReason()     {}
func (AbnormalExit) isExitReason()   {}
func (ExternalSignal) isExitReason() {}

func (r NormalExit) String() string {
	return fmt.Sprintf("normal exit (code %d)", r.Code)
}

func (r AbnormalExit) String() string {
	return fmt.Sprintf("abnormal exit (code %d)", r.Code)
}

func (r ExternalSignal) String() string {
	return fmt.Sprintf("terminated by signal %s", r.Signal)
}

// classifyExit maps a child termination event to its reason.  Pure.
//
// A zero exit while the handle is stopping or shutting down is the
// expected end of a handshake.  StatusShuttedDown is included in the
// expected set because the child's final status report may outrun the
// exit event; a worker observed in that status died cooperatively by
// definition.  Everything else failed: by external signal when the OS
// reports one, abnormally otherwise.
func classifyExit(status Status, code int, signal string) ExitReason {
	expected := status == StatusStopping ||
		status == StatusShuttingDown ||
		status == StatusShuttedDown
	if expected && code == 0 && signal == "" {
		return NormalExit{Code: code}
	}
	if signal != "" {
		return ExternalSignal{Signal: signal}
	}
	return AbnormalExit{Code: code}
}
