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

// Command droverd runs a worker pool described by a JSON manifest and
// exposes it over the REST API.  The configured reload and shutdown
// signals drive rolling reload and graceful shutdown of the pool.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/LCMApps/drover"
	"github.com/LCMApps/drover/rest"
)

var addr string = "127.0.0.1:8322"
var manifest string = "drover.json"

type poolManifest struct {
	Script           string            `json:"script"`
	Count            int               `json:"count"`
	Env              map[string]string `json:"env"`
	Signals          drover.Signals    `json:"signals"`
	SchedulingPolicy string            `json:"schedulingPolicy"`
	RestartTimeoutMs int               `json:"restartTimeout"`
	StatusTimeoutMs  int               `json:"statusTimeout"`
}

func loadManifest(path string) (drover.Config, error) {
	var m poolManifest
	f, err := os.Open(path)
	if err != nil {
		return drover.Config{}, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return drover.Config{}, err
	}
	cfg := drover.Config{
		Script:           m.Script,
		Count:            m.Count,
		Env:              m.Env,
		Signals:          m.Signals,
		SchedulingPolicy: drover.SchedulingPolicy(m.SchedulingPolicy),
		RestartTimeout:   time.Duration(m.RestartTimeoutMs) * time.Millisecond,
		StatusTimeout:    time.Duration(m.StatusTimeoutMs) * time.Millisecond,
	}
	return cfg, nil
}

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&manifest, "c", manifest, "pool manifest (JSON)")
	flag.Parse()

	cfg, err := loadManifest(manifest)
	if err != nil {
		log.Fatalf("Failed to load manifest %s: %v", manifest, err)
	}

	o, err := drover.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}
	o.SetLogWriter(os.Stderr)

	if err := o.Start(); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	sub := o.Subscribe()
	defer sub.Close()
	go func() {
		for ev := range sub.C {
			switch e := ev.(type) {
			case drover.WorkerExit:
				log.Printf("Worker %s exited: %s", e.ID, e.Reason)
			case drover.Error:
				log.Printf("Worker pool error: %v", e.Err)
			}
		}
	}()

	// The manifest validated, so both signal names resolve.
	reload := o.Config().ReloadSignal()
	shutdown := o.Config().ShutdownSignal()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, reload, shutdown, os.Interrupt)

	go func() {
		log.Fatal(http.ListenAndServe(addr, rest.NewHandler(o)))
	}()

	for s := range sigs {
		if s == reload {
			if err := o.GracefulReload(); err != nil {
				log.Printf("Reload failed: %v", err)
			}
			continue
		}
		// Shutdown cleanly if the children cooperate, forcibly
		// otherwise.
		if err := o.GracefulShutdown(); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			o.HardShutdown()
			os.Exit(1)
		}
		os.Exit(0)
	}
}
