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

// Package drover supervises a pool of identical child application
// processes on a single host.  An Orchestrator owns a collection of
// worker handles and drives group operations across them: synchronized
// startup, live rescaling, zero-downtime rolling reload, graceful or
// hard shutdown, and restart of a single worker by identity.
//
// Each handle owns exactly one OS process and talks to it over a
// private IPC channel.  The child side of that channel is implemented
// by the child package; the hosted application running inside the
// worker cooperates with the lifecycle handshake by acknowledging
// stop and quit commands through it.  Terminations are classified
// into normal exits, abnormal exits, and deaths by external signal,
// and are surfaced to the owning application through per-instance
// subscriptions.  Restart policy is deliberately left to the owning
// application.
//
// Drover is not a distributed scheduler and does not load balance at
// the network level; it manages processes on the host it runs on,
// much like a process supervisor embedded in an application
// deployment.
package drover
