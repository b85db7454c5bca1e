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
	"io"
	"strings"
	"sync"
	"time"
)

// MaxJournalRecords bounds the in-memory journal ring.
const MaxJournalRecords = 1000

// JournalRecord is one captured log line.  Ids increase monotonically
// and are unique within a journal instance, which makes them usable
// as etags for REST consumers.
type JournalRecord struct {
	ID   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Journal is a bounded in-memory ring of log records with a
// change-watch.  The orchestrator and its workers write into it; the
// REST surface reads from it.
type Journal struct {
	mx      sync.Mutex
	records []JournalRecord
	num     int
	max     int
	id      int64
	cvs     map[*sync.Cond]bool
}

// NewJournal returns an empty journal.  The origin id is the current
// timestamp in nanoseconds so that clients caching across a restart
// of the orchestrator are forced to invalidate.
func NewJournal() *Journal {
	return &Journal{
		records: make([]JournalRecord, MaxJournalRecords),
		max:     MaxJournalRecords,
		id:      time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
}

// Write implements io.Writer for use behind a log.Logger.  Input is
// newline-delimited text, one record per line.
func (j *Journal) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	j.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		idx := j.num % j.max
		j.id++
		j.records[idx] = JournalRecord{ID: j.id, Time: time.Now(), Text: line}
		j.num++
	}
	for cv := range j.cvs {
		cv.Broadcast()
	}
	j.mx.Unlock()
	return len(b), nil
}

// Records returns the retained records newer than since, together
// with the current id.  If nothing changed since, it returns nil and
// since unchanged.
func (j *Journal) Records(since int64) ([]JournalRecord, int64) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.id == since {
		return nil, since
	}
	cnt := j.num
	if cnt > j.max {
		cnt = j.max
	}
	recs := make([]JournalRecord, 0, cnt)
	index := j.num - cnt
	for i := 0; i < cnt; i++ {
		r := j.records[index%j.max]
		if r.ID > since {
			recs = append(recs, r)
		}
		index++
	}
	return recs, j.id
}

// Watch blocks until the journal id differs from since, or until the
// expiration elapses.  It returns the id current at wakeup.  A zero
// expiration polls.
func (j *Journal) Watch(since int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&j.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			j.mx.Lock()
			expired = true
			cv.Broadcast()
			j.mx.Unlock()
		})
	} else {
		expired = true
	}

	j.mx.Lock()
	j.cvs[cv] = true
	for j.id == since && !expired {
		cv.Wait()
	}
	delete(j.cvs, cv)
	id := j.id
	j.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return id
}

// teeWriter fans a log stream out to the journal plus any writers the
// owning application registers.
type teeWriter struct {
	mx sync.Mutex
	ws []io.Writer
}

func (t *teeWriter) Write(b []byte) (int, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	for _, w := range t.ws {
		w.Write(b)
	}
	return len(b), nil
}

func (t *teeWriter) add(w io.Writer) {
	t.mx.Lock()
	defer t.mx.Unlock()
	for _, x := range t.ws {
		if x == w {
			return
		}
	}
	t.ws = append(t.ws, w)
}
