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
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is returned by New when the supplied
	// configuration violates a validation rule.  The returned error
	// wraps this sentinel with the offending detail.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrWorkerContext is returned when the orchestrator API is used
	// inside a worker process.
	ErrWorkerContext = errors.New("not available inside a worker process")

	// ErrNotWorkerContext is returned by the child package when its
	// API is used outside a worker process.
	ErrNotWorkerContext = errors.New("requires a worker process")

	// ErrAlreadyStarted is returned by Start when the orchestrator is
	// already running.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrInappropriateCondition is returned by lifecycle operations
	// invoked while the orchestrator is in a status that forbids them.
	ErrInappropriateCondition = errors.New("operation not allowed in current orchestrator status")

	// ErrInvalidScale is returned by Rescale for a non-positive size.
	ErrInvalidScale = errors.New("scale size must be positive")

	// ErrUnexpectedWorkerState is returned by worker operations
	// invoked from a status that forbids them.
	ErrUnexpectedWorkerState = errors.New("operation not allowed in current worker status")

	// ErrProtocol is the base of all IPC boundary rejections: an
	// unknown message tag, an unsupported wire version, or a status
	// report that is not a legal forward transition.
	ErrProtocol = errors.New("protocol violation")
)

// StatusError reports a status-sequence mismatch: a handle published a
// status that deviates from the next expected value of a pending wait.
type StatusError struct {
	Expected Status
	Actual   Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected worker status %q, expected %q", e.Actual, e.Expected)
}

// TimeoutError reports that an expected status was not observed within
// the configured bound.  The handle is left at its last observed
// status; escalation to a forced kill is the caller's decision.
type TimeoutError struct {
	Expected Status
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker did not reach status %q within %v", e.Expected, e.After)
}
