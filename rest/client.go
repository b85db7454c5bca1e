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

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LCMApps/drover"
)

// Client talks to a Handler.  Timeout bounds each request; the
// default leaves room for the graceful handshakes behind the
// lifecycle endpoints.
type Client struct {
	base    string
	client  *http.Client
	Timeout time.Duration
}

// NewClient returns a client for the handler mounted at base, e.g.
// "http://127.0.0.1:8322".  A nil http.Client selects the default.
func NewClient(hc *http.Client, base string) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: base, client: hc, Timeout: 30 * time.Second}
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.Timeout)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	ctx, cancel := c.ctx()
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", mimeJson)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		e := &Error{}
		if json.Unmarshal(b, e) == nil && e.Message != "" {
			return e
		}
		return fmt.Errorf("server error: %s", res.Status)
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

// Orchestrator fetches the top-level status document.
func (c *Client) Orchestrator() (*OrchestratorInfo, error) {
	info := &OrchestratorInfo{}
	if err := c.do("GET", "/orchestrator", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Workers fetches the ordered worker snapshot.
func (c *Client) Workers() ([]drover.WorkerInfo, error) {
	var infos []drover.WorkerInfo
	if err := c.do("GET", "/workers", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Rescale asks for size replicas and returns the applied delta.
func (c *Client) Rescale(size int) (int, error) {
	res := &RescaleResult{}
	if err := c.do("POST", "/rescale", &RescaleRequest{Size: size}, res); err != nil {
		return 0, err
	}
	return res.Delta, nil
}

// Reload triggers a rolling restart of the whole pool.
func (c *Client) Reload() error {
	return c.do("POST", "/reload", nil, nil)
}

// Stop gracefully stops the pool without killing it.
func (c *Client) Stop() error {
	return c.do("POST", "/stop", nil, nil)
}

// Shutdown terminates the pool, gracefully unless hard is set.
func (c *Client) Shutdown(hard bool) error {
	path := "/shutdown"
	if hard {
		path += "?mode=hard"
	}
	return c.do("POST", path, nil, nil)
}

// RestartWorker replaces the worker with the given identity.
func (c *Client) RestartWorker(id string) error {
	return c.do("POST", "/workers/"+url.PathEscape(id)+"/restart", nil, nil)
}

// Log fetches journal records newer than since.
func (c *Client) Log(since int64) ([]drover.JournalRecord, error) {
	var recs []drover.JournalRecord
	path := "/log?since=" + strconv.FormatInt(since, 10)
	if err := c.do("GET", path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
