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

// SingleThreadedTupleQueue is used by ports which are only ever touched by the worker of one pipeline
// replica, so it does no locking and never waits.
type SingleThreadedTupleQueue struct {
	buf           buffer
	capacity      int
	capacityCheck bool
}

func NewSingleThreadedTupleQueue(initialCapacity int, capacity int) *SingleThreadedTupleQueue {
	return &SingleThreadedTupleQueue{buf: newBuffer(initialCapacity), capacity: capacity}
}

func (s *SingleThreadedTupleQueue) Offer(tuples []*tuple.Tuple) {
	s.buf.add(tuples)
}

func (s *SingleThreadedTupleQueue) TryOffer(tuples []*tuple.Tuple, _ time.Duration) int {
	n := len(tuples)
	if s.capacityCheck {
		free := s.capacity - s.buf.size()
		if free <= 0 {
			return 0
		}
		if free < n {
			n = free
		}
	}
	s.buf.add(tuples[:n])
	return n
}

func (s *SingleThreadedTupleQueue) ForceOffer(tuples []*tuple.Tuple) {
	s.buf.add(tuples)
}

func (s *SingleThreadedTupleQueue) PollExact(n int) []*tuple.Tuple {
	if n < 1 || s.buf.size() < n {
		return nil
	}
	return s.buf.take(n)
}

func (s *SingleThreadedTupleQueue) PollAtLeast(n int, limit int) []*tuple.Tuple {
	count := pollCount(s.buf.size(), n, limit)
	if count == 0 {
		return nil
	}
	return s.buf.take(count)
}

func (s *SingleThreadedTupleQueue) AwaitMinimumSize(n int, _ time.Duration) bool {
	return s.buf.size() >= n
}

func (s *SingleThreadedTupleQueue) Size() int {
	return s.buf.size()
}

func (s *SingleThreadedTupleQueue) IsEmpty() bool {
	return s.buf.size() == 0
}

func (s *SingleThreadedTupleQueue) Clear() {
	s.buf.clear()
}

func (s *SingleThreadedTupleQueue) EnableCapacityCheck() {
	s.capacityCheck = true
}

func (s *SingleThreadedTupleQueue) DisableCapacityCheck() {
	s.capacityCheck = false
}

func (s *SingleThreadedTupleQueue) IsCapacityCheckEnabled() bool {
	return s.capacityCheck
}

func (s *SingleThreadedTupleQueue) IsOverloaded() bool {
	return s.capacityCheck && s.buf.size() >= s.capacity
}

func (s *SingleThreadedTupleQueue) Capacity() int {
	return s.capacity
}
