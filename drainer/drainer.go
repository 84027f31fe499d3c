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

package drainer

import (
	"fmt"
	"time"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// GreedyDrainer takes up to maxBatchSize tuples from every port without any minimum. It never reports the
// scheduling condition as satisfied.
type GreedyDrainer struct {
	portCount    int
	maxBatchSize int
}

func NewGreedyDrainer(portCount int, maxBatchSize int) *GreedyDrainer {
	return &GreedyDrainer{portCount: portCount, maxBatchSize: maxBatchSize}
}

func (g *GreedyDrainer) Drain(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	checkPortCount(g.portCount, queues)
	empty := true
	for _, q := range queues {
		if !q.IsEmpty() {
			empty = false
			break
		}
	}
	if empty {
		return false
	}
	tuples := supplier.Supply(key)
	for portIndex, q := range queues {
		if polled := q.PollAtLeast(1, g.maxBatchSize); polled != nil {
			tuples.AddAll(portIndex, polled)
		}
	}
	return false
}

func (g *GreedyDrainer) Reset() {
}

func checkPortCount(portCount int, queues []tuplequeue.TupleQueue) {
	if len(queues) != portCount {
		panic(fmt.Sprintf("drainer configured for %d ports got %d queues", portCount, len(queues)))
	}
}

// pollCounts returns the tuple count a port must hold and the maximum count to poll from it.
func pollCounts(byCount operator.TupleAvailabilityByCount, count int, maxBatchSize int) (int, int) {
	if byCount == operator.Exact {
		return count, count
	}
	limit := maxBatchSize
	if limit < count {
		limit = count
	}
	return count, limit
}

func poll(q tuplequeue.TupleQueue, byCount operator.TupleAvailabilityByCount, toCheck int, toPoll int) []*tuple.Tuple {
	if byCount == operator.Exact {
		return q.PollExact(toCheck)
	}
	return q.PollAtLeast(toCheck, toPoll)
}

// SinglePortDrainer drains the only port of an operator once it holds tupleCountToCheck tuples. The blocking
// variant waits up to the drain timeout for them.
type SinglePortDrainer struct {
	maxBatchSize      int
	blocking          bool
	timeout           time.Duration
	byCount           operator.TupleAvailabilityByCount
	tupleCountToCheck int
	tupleCountToPoll  int
}

func NewNonBlockingSinglePortDrainer(maxBatchSize int) *SinglePortDrainer {
	return &SinglePortDrainer{maxBatchSize: maxBatchSize}
}

func NewBlockingSinglePortDrainer(maxBatchSize int, timeout time.Duration) *SinglePortDrainer {
	return &SinglePortDrainer{maxBatchSize: maxBatchSize, blocking: true, timeout: timeout}
}

func (s *SinglePortDrainer) SetParameters(byCount operator.TupleAvailabilityByCount, tupleCount int) {
	if tupleCount < 1 {
		panic(fmt.Sprintf("invalid tuple count %d for single port drainer", tupleCount))
	}
	s.byCount = byCount
	s.tupleCountToCheck, s.tupleCountToPoll = pollCounts(byCount, tupleCount, s.maxBatchSize)
}

func (s *SinglePortDrainer) Drain(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	checkPortCount(1, queues)
	if s.tupleCountToCheck == 0 {
		panic("single port drainer is not configured")
	}
	q := queues[0]
	if s.blocking {
		if !q.AwaitMinimumSize(s.tupleCountToCheck, s.timeout) {
			return false
		}
	} else if q.Size() < s.tupleCountToCheck {
		return false
	}
	polled := poll(q, s.byCount, s.tupleCountToCheck, s.tupleCountToPoll)
	if polled == nil {
		return false
	}
	supplier.Supply(key).AddAll(0, polled)
	return true
}

func (s *SinglePortDrainer) Reset() {
	s.byCount = operator.Exact
	s.tupleCountToCheck = 0
	s.tupleCountToPoll = 0
}

// MultiPortDrainer drains an operator with several input ports. A conjunctive drainer consumes nothing unless
// every port with a positive tuple count is satisfied. A disjunctive drainer consumes only the satisfied
// ports.
type MultiPortDrainer struct {
	portCount    int
	maxBatchSize int
	conjunctive  bool
	blocking     bool
	timeout      time.Duration
	byCount      operator.TupleAvailabilityByCount
	counts       []int
	configured   bool
}

func NewNonBlockingMultiPortConjunctiveDrainer(portCount int, maxBatchSize int) *MultiPortDrainer {
	return newMultiPortDrainer(portCount, maxBatchSize, true, false, 0)
}

func NewBlockingMultiPortConjunctiveDrainer(portCount int, maxBatchSize int, timeout time.Duration) *MultiPortDrainer {
	return newMultiPortDrainer(portCount, maxBatchSize, true, true, timeout)
}

func NewNonBlockingMultiPortDisjunctiveDrainer(portCount int, maxBatchSize int) *MultiPortDrainer {
	return newMultiPortDrainer(portCount, maxBatchSize, false, false, 0)
}

func NewBlockingMultiPortDisjunctiveDrainer(portCount int, maxBatchSize int, timeout time.Duration) *MultiPortDrainer {
	return newMultiPortDrainer(portCount, maxBatchSize, false, true, timeout)
}

func newMultiPortDrainer(portCount int, maxBatchSize int, conjunctive bool, blocking bool, timeout time.Duration) *MultiPortDrainer {
	return &MultiPortDrainer{
		portCount:    portCount,
		maxBatchSize: maxBatchSize,
		conjunctive:  conjunctive,
		blocking:     blocking,
		timeout:      timeout,
		counts:       make([]int, portCount),
	}
}

func (m *MultiPortDrainer) SetParameters(byCount operator.TupleAvailabilityByCount, counts []int) error {
	if len(counts) != m.portCount {
		return errors.NewInvalidConfigurationError(fmt.Sprintf("drainer configured for %d ports got %d tuple counts",
			m.portCount, len(counts)))
	}
	if !m.conjunctive && byCount == operator.AtLeastButSameOnAllPorts {
		return errors.NewInvalidConfigurationError(fmt.Sprintf("%s cannot be used with %s", byCount, operator.AnyPort))
	}
	positive := false
	for _, count := range counts {
		if count < 0 {
			return errors.NewInvalidConfigurationError(fmt.Sprintf("negative tuple count in %v", counts))
		}
		if count > 0 {
			positive = true
		}
	}
	if !positive {
		return errors.NewInvalidConfigurationError(fmt.Sprintf("no positive tuple count in %v", counts))
	}
	m.byCount = byCount
	copy(m.counts, counts)
	m.configured = true
	return nil
}

func (m *MultiPortDrainer) Drain(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	checkPortCount(m.portCount, queues)
	if !m.configured {
		panic("multi port drainer is not configured")
	}
	if m.blocking {
		byPort := operator.AnyPort
		if m.conjunctive {
			byPort = operator.AllPorts
		}
		if !tuplequeue.AwaitCounts(queues, m.counts, byPort, m.timeout) {
			return false
		}
	}
	if m.conjunctive {
		return m.drainAll(key, queues, supplier)
	}
	return m.drainSatisfied(key, queues, supplier)
}

func (m *MultiPortDrainer) drainAll(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	sameCount := m.maxBatchSize
	for portIndex, count := range m.counts {
		if count == 0 {
			continue
		}
		size := queues[portIndex].Size()
		if size < count {
			return false
		}
		if size < sameCount {
			sameCount = size
		}
	}
	var tuples *tuple.Tuples
	for portIndex, count := range m.counts {
		if count == 0 {
			continue
		}
		var polled []*tuple.Tuple
		if m.byCount == operator.AtLeastButSameOnAllPorts {
			polled = queues[portIndex].PollExact(max(sameCount, count))
		} else {
			toCheck, toPoll := pollCounts(m.byCount, count, m.maxBatchSize)
			polled = poll(queues[portIndex], m.byCount, toCheck, toPoll)
		}
		if tuples == nil {
			tuples = supplier.Supply(key)
		}
		tuples.AddAll(portIndex, polled)
	}
	return true
}

func (m *MultiPortDrainer) drainSatisfied(key tuple.PartitionKey, queues []tuplequeue.TupleQueue, supplier tuplequeue.TuplesSupplier) bool {
	var tuples *tuple.Tuples
	for portIndex, count := range m.counts {
		if count == 0 || queues[portIndex].Size() < count {
			continue
		}
		toCheck, toPoll := pollCounts(m.byCount, count, m.maxBatchSize)
		polled := poll(queues[portIndex], m.byCount, toCheck, toPoll)
		if polled == nil {
			continue
		}
		if tuples == nil {
			tuples = supplier.Supply(key)
		}
		tuples.AddAll(portIndex, polled)
	}
	return tuples != nil
}

func (m *MultiPortDrainer) Reset() {
	m.byCount = operator.Exact
	for i := range m.counts {
		m.counts[i] = 0
	}
	m.configured = false
}
