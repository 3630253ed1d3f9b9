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

// Package status reports commit queue events to a status dashboard.
package status

import (
	"context"
	"sync"
	"time"
)

// Verification names of events emitted by the pending manager.
const (
	Initial = "initial"
	Abort   = "abort"
	Commit  = "commit"
)

// Packet is one event about a pending commit.
type Packet struct {
	Timestamp    time.Time      `json:"timestamp"`
	Issue        int64          `json:"issue"`
	Patchset     int64          `json:"patchset"`
	Owner        string         `json:"owner"`
	Verification string         `json:"verification"`
	Payload      map[string]any `json:"payload"`
}

// Sink receives events. Sending never fails from the caller's point of view.
type Sink interface {
	// URL is the dashboard URL, or "" if there is no dashboard.
	URL() string
	// Send queues a packet.
	Send(ctx context.Context, p Packet)
	// Close flushes queued packets.
	Close(ctx context.Context)
}

// Noop discards everything.
type Noop struct{}

func (Noop) URL() string                  { return "" }
func (Noop) Send(context.Context, Packet) {}
func (Noop) Close(context.Context)        {}

// Memory keeps every packet in memory.
type Memory struct {
	// DashboardURL is returned by URL.
	DashboardURL string

	m       sync.Mutex
	packets []Packet
}

// URL implements Sink.
func (s *Memory) URL() string { return s.DashboardURL }

// Send implements Sink.
func (s *Memory) Send(ctx context.Context, p Packet) {
	s.m.Lock()
	defer s.m.Unlock()
	s.packets = append(s.packets, p)
}

// Close implements Sink.
func (s *Memory) Close(context.Context) {}

// Packets returns the received packets and resets the record.
func (s *Memory) Packets() []Packet {
	s.m.Lock()
	defer s.m.Unlock()
	out := s.packets
	s.packets = nil
	return out
}

// Verifications returns the verification names of received packets, in
// order, without resetting the record.
func (s *Memory) Verifications() []string {
	s.m.Lock()
	defer s.m.Unlock()
	out := make([]string, len(s.packets))
	for i, p := range s.packets {
		out[i] = p.Verification
	}
	return out
}
