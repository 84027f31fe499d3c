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
	"time"

	"github.com/spirit-labs/streamflow/tuple"
)

// MultiThreadedTupleQueue sits on a pipeline boundary, where the producer runs on another goroutine than
// the consumer. Producers wake waiting pollers and pollers wake producers waiting for capacity.
type MultiThreadedTupleQueue struct {
	mon           *monitor
	buf           buffer
	capacity      int
	capacityCheck bool
}

func NewMultiThreadedTupleQueue(initialCapacity int, capacity int) *MultiThreadedTupleQueue {
	return newMultiThreadedTupleQueue(newMonitor(), initialCapacity, capacity)
}

// newMultiThreadedTupleQueue creates a queue guarded by a monitor which may be shared with the other ports
// of the same operator queue.
func newMultiThreadedTupleQueue(mon *monitor, initialCapacity int, capacity int) *MultiThreadedTupleQueue {
	return &MultiThreadedTupleQueue{mon: mon, buf: newBuffer(initialCapacity), capacity: capacity}
}

func (m *MultiThreadedTupleQueue) Offer(tuples []*tuple.Tuple) {
	if len(tuples) == 0 {
		return
	}
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	m.buf.add(tuples)
	m.mon.signal()
}

func (m *MultiThreadedTupleQueue) TryOffer(tuples []*tuple.Tuple, timeout time.Duration) int {
	if len(tuples) == 0 {
		return 0
	}
	offered := 0
	m.mon.await(func() bool {
		free := len(tuples) - offered
		if m.capacityCheck {
			if room := m.capacity - m.buf.size(); room < free {
				free = room
			}
		}
		if free > 0 {
			m.buf.add(tuples[offered : offered+free])
			offered += free
			m.mon.signal()
		}
		return offered == len(tuples)
	}, timeout)
	return offered
}

func (m *MultiThreadedTupleQueue) ForceOffer(tuples []*tuple.Tuple) {
	m.Offer(tuples)
}

func (m *MultiThreadedTupleQueue) PollExact(n int) []*tuple.Tuple {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	if n < 1 || m.buf.size() < n {
		return nil
	}
	out := m.buf.take(n)
	m.mon.signal()
	return out
}

func (m *MultiThreadedTupleQueue) PollAtLeast(n int, limit int) []*tuple.Tuple {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	count := pollCount(m.buf.size(), n, limit)
	if count == 0 {
		return nil
	}
	out := m.buf.take(count)
	m.mon.signal()
	return out
}

func (m *MultiThreadedTupleQueue) AwaitMinimumSize(n int, timeout time.Duration) bool {
	return m.mon.await(func() bool {
		return m.buf.size() >= n
	}, timeout)
}

func (m *MultiThreadedTupleQueue) Size() int {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	return m.buf.size()
}

func (m *MultiThreadedTupleQueue) IsEmpty() bool {
	return m.Size() == 0
}

func (m *MultiThreadedTupleQueue) Clear() {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	m.buf.clear()
	m.mon.signal()
}

func (m *MultiThreadedTupleQueue) EnableCapacityCheck() {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	m.capacityCheck = true
}

// DisableCapacityCheck also releases producers blocked waiting for capacity.
func (m *MultiThreadedTupleQueue) DisableCapacityCheck() {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	m.capacityCheck = false
	m.mon.signal()
}

func (m *MultiThreadedTupleQueue) IsCapacityCheckEnabled() bool {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	return m.capacityCheck
}

func (m *MultiThreadedTupleQueue) IsOverloaded() bool {
	m.mon.lock.Lock()
	defer m.mon.lock.Unlock()
	return m.capacityCheck && m.buf.size() >= m.capacity
}

func (m *MultiThreadedTupleQueue) Capacity() int {
	return m.capacity
}
