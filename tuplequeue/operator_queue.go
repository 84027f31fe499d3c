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
	"fmt"
	"time"

	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

type ThreadingPreference int

const (
	SingleThreaded ThreadingPreference = iota
	MultiThreaded
)

func (t ThreadingPreference) String() string {
	if t == SingleThreaded {
		return "SINGLE_THREADED"
	}
	return "MULTI_THREADED"
}

// TuplesSupplier supplies the Tuples a drainer moves the tuples of one partition key into.
type TuplesSupplier interface {
	Supply(key tuple.PartitionKey) *tuple.Tuples
}

// Drainer decides whether and how many tuples to take from the port queues of an operator.
type Drainer interface {
	// Drain moves tuples from queues into a Tuples obtained from supplier, and returns true if the scheduling
	// condition the drainer was configured with has been satisfied.
	Drain(key tuple.PartitionKey, queues []TupleQueue, supplier TuplesSupplier) bool
	// Reset clears the parameters the drainer was configured with.
	Reset()
}

// OperatorTupleQueue holds the input port queues of an operator replica.
type OperatorTupleQueue interface {
	OperatorID() string
	PortCount() int
	ThreadingPreference() ThreadingPreference
	Offer(portIndex int, tuples []*tuple.Tuple)
	// TryOffer returns the number of tuples accepted before timeout.
	TryOffer(portIndex int, tuples []*tuple.Tuple, timeout time.Duration) int
	ForceOffer(portIndex int, tuples []*tuple.Tuple)
	// Drain returns true if the drainer's scheduling condition was satisfied, which means draining again
	// straight away is likely to be worthwhile.
	Drain(drainer Drainer, supplier TuplesSupplier) bool
	// SetTupleCounts sets the availability AwaitTuples waits for.
	SetTupleCounts(counts []int, byPort operator.TupleAvailabilityByPort)
	// AwaitTuples waits up to timeout for the tuple counts to become available.
	AwaitTuples(timeout time.Duration) bool
	EnableCapacityCheck(portIndex int)
	DisableCapacityCheck(portIndex int)
	IsCapacityCheckEnabled(portIndex int) bool
	IsOverloaded() bool
	Size(portIndex int) int
	IsEmpty() bool
	// RemoveAll removes and returns every buffered tuple, by port.
	RemoveAll() [][]*tuple.Tuple
	Clear()
}

// DefaultOperatorTupleQueue has one TupleQueue per port. Multi threaded instances share one monitor
// between ports so a consumer can wait on a condition spanning ports.
type DefaultOperatorTupleQueue struct {
	operatorID  string
	threading   ThreadingPreference
	queues      []TupleQueue
	mon         *monitor
	tupleCounts []int
	byPort      operator.TupleAvailabilityByPort
}

func NewDefaultOperatorTupleQueue(operatorID string, portCount int, threading ThreadingPreference,
	initialCapacity int, capacity int) *DefaultOperatorTupleQueue {
	q := &DefaultOperatorTupleQueue{
		operatorID:  operatorID,
		threading:   threading,
		queues:      make([]TupleQueue, portCount),
		tupleCounts: make([]int, portCount),
		byPort:      operator.AnyPort,
	}
	if threading == MultiThreaded {
		q.mon = newMonitor()
	}
	for i := range q.queues {
		if threading == MultiThreaded {
			q.queues[i] = newMultiThreadedTupleQueue(q.mon, initialCapacity, capacity)
		} else {
			q.queues[i] = NewSingleThreadedTupleQueue(initialCapacity, capacity)
		}
		q.tupleCounts[i] = 1
	}
	return q
}

func (d *DefaultOperatorTupleQueue) OperatorID() string {
	return d.operatorID
}

func (d *DefaultOperatorTupleQueue) PortCount() int {
	return len(d.queues)
}

func (d *DefaultOperatorTupleQueue) ThreadingPreference() ThreadingPreference {
	return d.threading
}

func (d *DefaultOperatorTupleQueue) Offer(portIndex int, tuples []*tuple.Tuple) {
	d.queues[portIndex].Offer(tuples)
}

func (d *DefaultOperatorTupleQueue) TryOffer(portIndex int, tuples []*tuple.Tuple, timeout time.Duration) int {
	return d.queues[portIndex].TryOffer(tuples, timeout)
}

func (d *DefaultOperatorTupleQueue) ForceOffer(portIndex int, tuples []*tuple.Tuple) {
	d.queues[portIndex].ForceOffer(tuples)
}

func (d *DefaultOperatorTupleQueue) Drain(drainer Drainer, supplier TuplesSupplier) bool {
	return drainer.Drain(tuple.NoKey, d.queues, supplier)
}

func (d *DefaultOperatorTupleQueue) SetTupleCounts(counts []int, byPort operator.TupleAvailabilityByPort) {
	if len(counts) != len(d.queues) {
		panic(fmt.Sprintf("queue of operator %s has %d ports but %d tuple counts given", d.operatorID, len(d.queues), len(counts)))
	}
	if d.mon != nil {
		d.mon.lock.Lock()
		defer d.mon.lock.Unlock()
	}
	copy(d.tupleCounts, counts)
	d.byPort = byPort
}

func (d *DefaultOperatorTupleQueue) AwaitTuples(timeout time.Duration) bool {
	if len(d.queues) == 0 {
		return false
	}
	if d.mon == nil {
		return d.tupleCountsAvailable(func(q TupleQueue) int { return q.Size() })
	}
	return d.mon.await(func() bool {
		// the lock is held so read the buffers directly
		return d.tupleCountsAvailable(func(q TupleQueue) int { return q.(*MultiThreadedTupleQueue).buf.size() })
	}, timeout)
}

func (d *DefaultOperatorTupleQueue) tupleCountsAvailable(sizeOf func(TupleQueue) int) bool {
	return countsAvailable(d.tupleCounts, d.byPort, func(portIndex int) int {
		return sizeOf(d.queues[portIndex])
	})
}

// countsAvailable reports whether the sizes satisfy counts. Ports with a zero count are ignored.
func countsAvailable(counts []int, byPort operator.TupleAvailabilityByPort, sizeOf func(portIndex int) int) bool {
	satisfied := 0
	required := 0
	for i, count := range counts {
		if count <= 0 {
			continue
		}
		required++
		if sizeOf(i) >= count {
			if byPort == operator.AnyPort {
				return true
			}
			satisfied++
		}
	}
	return required > 0 && satisfied == required
}

func (d *DefaultOperatorTupleQueue) EnableCapacityCheck(portIndex int) {
	d.queues[portIndex].EnableCapacityCheck()
}

func (d *DefaultOperatorTupleQueue) DisableCapacityCheck(portIndex int) {
	d.queues[portIndex].DisableCapacityCheck()
}

func (d *DefaultOperatorTupleQueue) IsCapacityCheckEnabled(portIndex int) bool {
	return d.queues[portIndex].IsCapacityCheckEnabled()
}

func (d *DefaultOperatorTupleQueue) IsOverloaded() bool {
	for _, q := range d.queues {
		if q.IsOverloaded() {
			return true
		}
	}
	return false
}

func (d *DefaultOperatorTupleQueue) Size(portIndex int) int {
	return d.queues[portIndex].Size()
}

func (d *DefaultOperatorTupleQueue) IsEmpty() bool {
	for _, q := range d.queues {
		if !q.IsEmpty() {
			return false
		}
	}
	return true
}

func (d *DefaultOperatorTupleQueue) RemoveAll() [][]*tuple.Tuple {
	all := make([][]*tuple.Tuple, len(d.queues))
	for i, q := range d.queues {
		size := q.Size()
		if size > 0 {
			all[i] = q.PollAtLeast(1, size)
		}
	}
	return all
}

func (d *DefaultOperatorTupleQueue) Clear() {
	for _, q := range d.queues {
		q.Clear()
	}
}

// Queues exposes the port queues, for tests and transformations.
func (d *DefaultOperatorTupleQueue) Queues() []TupleQueue {
	return d.queues
}
