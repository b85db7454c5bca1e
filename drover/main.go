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

// Command drover implements a client application that communicates to
// droverd.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the daemon address, default is
//			  http://127.0.0.1:8322
//
// Subcommands are
//
//	status              - show the orchestrator status
//	workers             - list workers with pid and state
//	rescale <size>      - resize the pool to <size> replicas
//	reload              - rolling restart of the whole pool
//	restart <id>        - replace the worker with the given id
//	stop                - gracefully stop all workers
//	shutdown [-hard]    - shut the pool down
//	log                 - print the orchestrator journal
//	panel               - live status panel
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/LCMApps/drover/rest"
)

var addr string = "http://127.0.0.1:8322"

func usage() {
	log.Fatalf("Usage: %s [-a <address>] <subcommand>", os.Args[0])
}

func main() {
	flag.StringVar(&addr, "a", addr, "droverd address")
	flag.Parse()

	client := rest.NewClient(nil, addr)

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"panel"}
	}

	switch args[0] {
	case "status":
		if len(args) != 1 {
			usage()
		}
		info, e := client.Orchestrator()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("Status:   %s\n", info.Status)
		fmt.Printf("Scale:    %d\n", info.Scale)
		fmt.Printf("Workers:  %d\n", info.Workers)

	case "workers":
		if len(args) != 1 {
			usage()
		}
		infos, e := client.Workers()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, w := range infos {
			fmt.Printf("%-36s %8d %s\n", w.ID, w.Pid, w.Status)
		}

	case "rescale":
		if len(args) != 2 {
			usage()
		}
		size, e := strconv.Atoi(args[1])
		if e != nil {
			usage()
		}
		delta, e := client.Rescale(size)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		fmt.Printf("%+d\n", delta)

	case "reload":
		if len(args) != 1 {
			usage()
		}
		if e := client.Reload(); e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "restart":
		if len(args) != 2 {
			usage()
		}
		if e := client.RestartWorker(args[1]); e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "stop":
		if len(args) != 1 {
			usage()
		}
		if e := client.Stop(); e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "shutdown":
		hard := false
		switch {
		case len(args) == 1:
		case len(args) == 2 && args[1] == "-hard":
			hard = true
		default:
			usage()
		}
		if e := client.Shutdown(hard); e != nil {
			log.Fatalf("Failed: %v", e)
		}

	case "log":
		if len(args) != 1 {
			usage()
		}
		recs, e := client.Log(0)
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, r := range recs {
			fmt.Printf("%s %s\n", r.Time.Format("2006-01-02 15:04:05"), r.Text)
		}

	case "panel":
		doPanel(client, addr)

	default:
		usage()
	}
}
