// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/commitqueue/internal/common"
)

// pushBuffer is the maximum number of packets waiting to be pushed.
const pushBuffer = 1000

// AsyncPush posts packets to the dashboard's /receiver endpoint from a
// background goroutine.
type AsyncPush struct {
	url      string
	password string
	hc       *http.Client
	interval time.Duration

	queue chan Packet
	done  chan struct{}
	once  sync.Once
}

// NewAsyncPush starts pushing to dashboardURL every interval.
//
// The goroutine stops when Close is called.
func NewAsyncPush(ctx context.Context, dashboardURL, password string, hc *http.Client, interval time.Duration) *AsyncPush {
	p := &AsyncPush{
		url:      strings.TrimSuffix(dashboardURL, "/"),
		password: password,
		hc:       hc,
		interval: interval,
		queue:    make(chan Packet, pushBuffer),
		done:     make(chan struct{}),
	}
	go p.loop(ctx)
	return p
}

// URL implements Sink.
func (p *AsyncPush) URL() string { return p.url }

// Send implements Sink.
//
// Packets are dropped when the buffer is full.
func (p *AsyncPush) Send(ctx context.Context, pkt Packet) {
	if pkt.Timestamp.IsZero() {
		pkt.Timestamp = clock.Now(ctx).UTC()
	}
	select {
	case p.queue <- pkt:
	default:
		logging.Warningf(ctx, "status push buffer full, dropping %q event for issue %d", pkt.Verification, pkt.Issue)
	}
}

// Close implements Sink.
func (p *AsyncPush) Close(ctx context.Context) {
	p.once.Do(func() { close(p.queue) })
	<-p.done
}

func (p *AsyncPush) loop(ctx context.Context) {
	defer close(p.done)
	var pending []Packet
	tick := clock.After(ctx, p.interval)
	for {
		select {
		case pkt, ok := <-p.queue:
			if !ok {
				p.flush(context.WithoutCancel(ctx), pending)
				return
			}
			pending = append(pending, pkt)
		case res := <-tick:
			if res.Err != nil {
				// Context is done, only wait for Close.
				tick = nil
				continue
			}
			pending = p.flush(ctx, pending)
			tick = clock.After(ctx, p.interval)
		}
	}
}

// flush pushes packets and returns the ones that must be sent again.
func (p *AsyncPush) flush(ctx context.Context, pkts []Packet) []Packet {
	if len(pkts) == 0 {
		return nil
	}
	if err := p.push(ctx, pkts); err != nil {
		logging.Errorf(ctx, "failed to push %d status packets: %s", len(pkts), err)
		if len(pkts) >= pushBuffer {
			return nil
		}
		return pkts
	}
	return nil
}

func (p *AsyncPush) push(ctx context.Context, pkts []Packet) error {
	data, err := json.Marshal(pkts)
	if err != nil {
		return errors.Annotate(err, "encoding packets").Err()
	}
	_, err = common.PostForm(ctx, p.hc, "status_push", p.url+"/receiver", url.Values{
		"p":        {string(data)},
		"password": {p.password},
	}, nil)
	return err
}

// Store appends packets as JSON lines to a local file instead of pushing
// them. Used in dry-run mode.
type Store struct {
	path string
	m    sync.Mutex
}

// NewStore returns a Store appending to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// URL implements Sink.
func (s *Store) URL() string { return "" }

// Send implements Sink.
func (s *Store) Send(ctx context.Context, pkt Packet) {
	if pkt.Timestamp.IsZero() {
		pkt.Timestamp = clock.Now(ctx).UTC()
	}
	if err := s.append(pkt); err != nil {
		logging.Errorf(ctx, "failed to store status packet: %s", err)
	}
}

func (s *Store) append(pkt Packet) error {
	data, err := json.Marshal(pkt)
	if err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close implements Sink.
func (s *Store) Close(context.Context) {}
