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

package tuplequeue

import (
	"sync"
	"time"

	"github.com/spirit-labs/streamflow/tuple"
)

// TupleQueue is the FIFO buffer of one input port of an operator replica.
type TupleQueue interface {
	// Offer appends the tuples regardless of capacity.
	Offer(tuples []*tuple.Tuple)
	// TryOffer appends as many tuples as capacity allows, waiting up to timeout for room, and returns how many
	// were appended.
	TryOffer(tuples []*tuple.Tuple, timeout time.Duration) int
	// ForceOffer appends the tuples bypassing back-pressure. Only pipeline transformations use it, to move
	// tuples which were already admitted to another queue.
	ForceOffer(tuples []*tuple.Tuple)
	// PollExact returns exactly n tuples if at least n are buffered, otherwise nil leaving the queue unchanged.
	PollExact(n int) []*tuple.Tuple
	// PollAtLeast returns between n and limit tuples if at least n are buffered, otherwise nil leaving the
	// queue unchanged.
	PollAtLeast(n int, limit int) []*tuple.Tuple
	// AwaitMinimumSize waits up to timeout until at least n tuples are buffered.
	AwaitMinimumSize(n int, timeout time.Duration) bool
	Size() int
	IsEmpty() bool
	Clear()
	EnableCapacityCheck()
	DisableCapacityCheck()
	IsCapacityCheckEnabled() bool
	IsOverloaded() bool
	Capacity() int
}

// buffer is a slice backed FIFO which compacts once the consumed prefix dominates.
type buffer struct {
	items []*tuple.Tuple
	head  int
}

func newBuffer(initialCapacity int) buffer {
	return buffer{items: make([]*tuple.Tuple, 0, initialCapacity)}
}

func (b *buffer) size() int {
	return len(b.items) - b.head
}

func (b *buffer) add(tuples []*tuple.Tuple) {
	if b.head > 0 && b.head >= len(b.items)/2 {
		n := copy(b.items, b.items[b.head:])
		for i := n; i < len(b.items); i++ {
			b.items[i] = nil
		}
		b.items = b.items[:n]
		b.head = 0
	}
	b.items = append(b.items, tuples...)
}

func (b *buffer) take(n int) []*tuple.Tuple {
	out := make([]*tuple.Tuple, n)
	copy(out, b.items[b.head:b.head+n])
	for i := b.head; i < b.head+n; i++ {
		b.items[i] = nil
	}
	b.head += n
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
	}
	return out
}

func (b *buffer) clear() {
	for i := b.head; i < len(b.items); i++ {
		b.items[i] = nil
	}
	b.items = b.items[:0]
	b.head = 0
}

// pollCount returns how many tuples to poll for a poll of at least n and at most limit, or 0 if the poll
// cannot be satisfied.
func pollCount(size int, n int, limit int) int {
	if n < 1 {
		n = 1
	}
	if size < n {
		return 0
	}
	if size < limit {
		return size
	}
	return limit
}

// monitor is a lock plus a broadcast channel. Waiters take the current channel under the lock and wait for
// it to be closed, which happens on every state change while someone is waiting.
type monitor struct {
	lock    sync.Mutex
	changed chan struct{}
	waiters int
}

func newMonitor() *monitor {
	return &monitor{changed: make(chan struct{})}
}

// signal must be called with the lock held.
func (m *monitor) signal() {
	if m.waiters > 0 {
		close(m.changed)
		m.changed = make(chan struct{})
	}
}

// await waits until cond holds or timeout elapses and returns the final value of cond. cond is evaluated
// with the lock held.
func (m *monitor) await(cond func() bool, timeout time.Duration) bool {
	m.lock.Lock()
	if cond() {
		m.lock.Unlock()
		return true
	}
	if timeout <= 0 {
		m.lock.Unlock()
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		ch := m.changed
		m.waiters++
		m.lock.Unlock()
		timedOut := false
		select {
		case <-ch:
		case <-timer.C:
			timedOut = true
		}
		m.lock.Lock()
		m.waiters--
		ok := cond()
		if ok || timedOut {
			m.lock.Unlock()
			return ok
		}
	}
}
