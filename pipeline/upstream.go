// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import "sync/atomic"

// UpstreamContext tracks which input ports of an operator replica still have running upstream operators. It
// is written by whoever observes an upstream operator completing and read by the replica's runner.
type UpstreamContext struct {
	version atomic.Int64
	closed  []atomic.Bool
}

func NewUpstreamContext(portCount int) *UpstreamContext {
	return &UpstreamContext{closed: make([]atomic.Bool, portCount)}
}

func (u *UpstreamContext) PortCount() int {
	return len(u.closed)
}

// Close marks the port closed. Closing a closed port is a no-op.
func (u *UpstreamContext) Close(portIndex int) {
	if !u.closed[portIndex].Swap(true) {
		u.version.Add(1)
	}
}

func (u *UpstreamContext) IsOpen(portIndex int) bool {
	return !u.closed[portIndex].Load()
}

// Version is incremented every time a port is closed.
func (u *UpstreamContext) Version() int64 {
	return u.version.Load()
}

// Statuses returns the open flag of each port.
func (u *UpstreamContext) Statuses() []bool {
	statuses := make([]bool, len(u.closed))
	for i := range u.closed {
		statuses[i] = !u.closed[i].Load()
	}
	return statuses
}

// AllClosed is false for operators without input ports.
func (u *UpstreamContext) AllClosed() bool {
	if len(u.closed) == 0 {
		return false
	}
	for i := range u.closed {
		if !u.closed[i].Load() {
			return false
		}
	}
	return true
}

// Copy returns a new context with the same statuses.
func (u *UpstreamContext) Copy() *UpstreamContext {
	c := NewUpstreamContext(len(u.closed))
	for i := range u.closed {
		if u.closed[i].Load() {
			c.Close(i)
		}
	}
	return c
}
