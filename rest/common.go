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

package rest

import "github.com/LCMApps/drover"

const mimeJson = "application/json; charset=UTF-8"

var ok struct{}

// OrchestratorInfo is the top-level status document.
type OrchestratorInfo struct {
	Status  drover.OrchestratorStatus `json:"status"`
	Scale   int                       `json:"scale"`
	Workers int                       `json:"workers"`
}

// RescaleRequest is the body of POST /rescale.
type RescaleRequest struct {
	Size int `json:"size"`
}

// RescaleResult reports the signed delta a rescale applied.
type RescaleResult struct {
	Delta int `json:"delta"`
}

// Error is the JSON error document.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
