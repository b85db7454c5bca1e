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

package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gdamore/tcell"

	"github.com/LCMApps/drover"
	"github.com/LCMApps/drover/rest"
)

/*
   The panel has the following appearance:

    Server: http://127.0.0.1:8322  Status: started  Scale: 4

    6f3a...-id                        4121  started
    91cc...-id                        4122  started
    ...

    [Q]uit
*/

type panelState struct {
	status  drover.OrchestratorStatus
	scale   int
	workers []drover.WorkerInfo
	err     error
}

func fetchPanel(client *rest.Client) panelState {
	st := panelState{}
	info, err := client.Orchestrator()
	if err != nil {
		st.err = err
		return st
	}
	st.status = info.Status
	st.scale = info.Scale
	st.workers, st.err = client.Workers()
	return st
}

func statusStyle(s drover.Status) tcell.Style {
	switch s {
	case drover.StatusStarted:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case drover.StatusFailed:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	}
}

func putString(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

func drawPanel(s tcell.Screen, addr string, st panelState) {
	s.Clear()
	bold := tcell.StyleDefault.Bold(true)
	if st.err != nil {
		putString(s, 0, 0, tcell.StyleDefault.Foreground(tcell.ColorRed),
			fmt.Sprintf("Server: %s  unreachable: %v", addr, st.err))
		s.Show()
		return
	}
	putString(s, 0, 0, bold, fmt.Sprintf("Server: %s  Status: %s  Scale: %d",
		addr, st.status, st.scale))
	for i, w := range st.workers {
		line := fmt.Sprintf("%-36s %8d  %s", w.ID, w.Pid, w.Status)
		putString(s, 0, i+2, statusStyle(w.Status), line)
	}
	_, h := s.Size()
	putString(s, 0, h-1, bold, "[Q]uit")
	s.Show()
}

func doPanel(client *rest.Client, addr string) {
	s, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("Failed to open screen: %v", err)
	}
	if err := s.Init(); err != nil {
		log.Fatalf("Failed to init screen: %v", err)
	}
	defer s.Fini()

	events := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := s.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	st := fetchPanel(client)
	drawPanel(s, addr, st)
	for {
		select {
		case <-ticker.C:
			st = fetchPanel(client)
			drawPanel(s, addr, st)
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				s.Sync()
				drawPanel(s, addr, st)
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape:
					return
				case ev.Key() == tcell.KeyRune &&
					(ev.Rune() == 'q' || ev.Rune() == 'Q'):
					return
				}
			}
		}
	}
}
