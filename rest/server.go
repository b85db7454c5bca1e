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

// Package rest exposes an Orchestrator over HTTP and provides the
// matching client.  The handler implements http.Handler, so it can be
// mounted inside an existing server.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/LCMApps/drover"
)

// Handler wraps an Orchestrator, adding http.Handler functionality.
//
// The lifecycle endpoints mutate the orchestrator; per the
// orchestrator's concurrency contract they must not be invoked
// concurrently with each other.  The handler does not serialize them
// itself.
type Handler struct {
	o *drover.Orchestrator
	r *mux.Router
}

func NewHandler(o *drover.Orchestrator) *Handler {
	r := mux.NewRouter()
	h := &Handler{o: o, r: r}
	r.HandleFunc("/orchestrator", h.getOrchestrator).Methods("GET")
	r.HandleFunc("/workers", h.listWorkers).Methods("GET")
	r.HandleFunc("/workers/{id}/restart", h.restartWorker).Methods("POST")
	r.HandleFunc("/rescale", h.rescale).Methods("POST")
	r.HandleFunc("/reload", h.reload).Methods("POST")
	r.HandleFunc("/stop", h.stop).Methods("POST")
	r.HandleFunc("/shutdown", h.shutdown).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	b, e := json.Marshal(v)
	if e != nil {
		http.Error(w, e.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeJson)
	w.Write(b)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Code: statusFor(err), Message: err.Error()}
	}
	b, _ := json.Marshal(e)
	w.Header().Set("Content-Type", mimeJson)
	w.WriteHeader(e.Code)
	w.Write(b)
}

// statusFor maps the drover error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var timeout *drover.TimeoutError
	switch {
	case errors.Is(err, drover.ErrInvalidScale):
		return http.StatusBadRequest
	case errors.Is(err, drover.ErrInappropriateCondition),
		errors.Is(err, drover.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) getOrchestrator(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, &OrchestratorInfo{
		Status:  h.o.Status(),
		Scale:   h.o.Scale(),
		Workers: len(h.o.Workers()),
	})
}

func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.o.Workers())
}

func (h *Handler) restartWorker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.o.RestartWorkerByID(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) rescale(w http.ResponseWriter, r *http.Request) {
	var req RescaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	delta, err := h.o.Rescale(req.Size)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJson(w, &RescaleResult{Delta: delta})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.o.GracefulReload(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.o.GracefulStop(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) shutdown(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mode") == "hard" {
		h.o.HardShutdown()
		h.writeJson(w, ok)
		return
	}
	if err := h.o.GracefulShutdown(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, &Error{Code: http.StatusBadRequest, Message: "bad since value"})
			return
		}
		since = v
	}
	recs, id := h.o.Log(since)
	w.Header().Set("Etag", strconv.FormatInt(id, 10))
	h.writeJson(w, recs)
}
