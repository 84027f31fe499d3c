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
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/tuple"
)

type keyQueue struct {
	key       tuple.PartitionKey
	queues    []TupleQueue
	drainable bool
}

func (k *keyQueue) isEmpty() bool {
	for _, q := range k.queues {
		if !q.IsEmpty() {
			return false
		}
	}
	return true
}

// PartitionedOperatorTupleQueue buffers the tuples of each partition key owned by one replica of a
// partitioned stateful operator in its own set of single-threaded port queues. It is only accessed by the
// goroutine running the replica.
type PartitionedOperatorTupleQueue struct {
	operatorID      string
	portCount       int
	replicaIndex    int
	distribution    *partition.Distribution
	extractor       partition.KeyExtractor
	initialCapacity int
	capacity        int
	maxDrainKeys    int
	keyQueues       map[string]*keyQueue
	// keys with buffered tuples in drain order
	drainable     []*keyQueue
	portSizes     []int
	capacityCheck []bool
	tupleCounts   []int
	byPort        operator.TupleAvailabilityByPort
}

func NewPartitionedOperatorTupleQueue(operatorID string, portCount int, replicaIndex int,
	distribution *partition.Distribution, extractor partition.KeyExtractor, initialCapacity int, capacity int,
	maxDrainKeys int) *PartitionedOperatorTupleQueue {
	if replicaIndex < 0 || replicaIndex >= distribution.ReplicaCount() {
		panic(fmt.Sprintf("invalid replica index %d for partitioned queue of operator %s with %d replicas",
			replicaIndex, operatorID, distribution.ReplicaCount()))
	}
	tupleCounts := make([]int, portCount)
	for i := range tupleCounts {
		tupleCounts[i] = 1
	}
	return &PartitionedOperatorTupleQueue{
		operatorID:      operatorID,
		portCount:       portCount,
		replicaIndex:    replicaIndex,
		distribution:    distribution,
		extractor:       extractor,
		initialCapacity: initialCapacity,
		capacity:        capacity,
		maxDrainKeys:    maxDrainKeys,
		keyQueues:       map[string]*keyQueue{},
		portSizes:       make([]int, portCount),
		capacityCheck:   make([]bool, portCount),
		tupleCounts:     tupleCounts,
		byPort:          operator.AnyPort,
	}
}

func (p *PartitionedOperatorTupleQueue) OperatorID() string {
	return p.operatorID
}

func (p *PartitionedOperatorTupleQueue) PortCount() int {
	return p.portCount
}

func (p *PartitionedOperatorTupleQueue) ReplicaIndex() int {
	return p.replicaIndex
}

func (p *PartitionedOperatorTupleQueue) Distribution() *partition.Distribution {
	return p.distribution
}

func (p *PartitionedOperatorTupleQueue) ThreadingPreference() ThreadingPreference {
	return SingleThreaded
}

func (p *PartitionedOperatorTupleQueue) Offer(portIndex int, tuples []*tuple.Tuple) {
	for _, t := range tuples {
		p.keyQueueOf(t).queues[portIndex].Offer([]*tuple.Tuple{t})
	}
	p.portSizes[portIndex] += len(tuples)
}

func (p *PartitionedOperatorTupleQueue) TryOffer(portIndex int, tuples []*tuple.Tuple, _ time.Duration) int {
	n := len(tuples)
	if p.capacityCheck[portIndex] {
		free := p.capacity - p.portSizes[portIndex]
		if free <= 0 {
			return 0
		}
		if free < n {
			n = free
		}
	}
	p.Offer(portIndex, tuples[:n])
	return n
}

func (p *PartitionedOperatorTupleQueue) ForceOffer(portIndex int, tuples []*tuple.Tuple) {
	p.Offer(portIndex, tuples)
}

func (p *PartitionedOperatorTupleQueue) keyQueueOf(t *tuple.Tuple) *keyQueue {
	key, ok := t.PartitionKey()
	if !ok {
		key = p.extractor.Extract(t)
		// operators after the head may drop the partition fields
		t.AttachPartitionKey(key)
	}
	kq, ok := p.keyQueues[key.Key()]
	if !ok {
		partitionID := partition.ID(key.Hash(), p.distribution.PartitionCount())
		if owner := p.distribution.ReplicaIndex(partitionID); owner != p.replicaIndex {
			panic(fmt.Sprintf("partitioned queue of operator %s replica %d received tuple %s of partition %d owned by replica %d",
				p.operatorID, p.replicaIndex, t, partitionID, owner))
		}
		kq = &keyQueue{key: key, queues: make([]TupleQueue, p.portCount)}
		for i := range kq.queues {
			kq.queues[i] = NewSingleThreadedTupleQueue(p.initialCapacity, p.capacity)
		}
		p.keyQueues[key.Key()] = kq
	}
	if !kq.drainable {
		kq.drainable = true
		p.drainable = append(p.drainable, kq)
	}
	return kq
}

// Drain offers the queues of up to maxDrainKeys partition keys to the drainer, in round robin order. Keys
// which still have buffered tuples move to the back of the drain order.
func (p *PartitionedOperatorTupleQueue) Drain(drainer Drainer, supplier TuplesSupplier) bool {
	n := len(p.drainable)
	if n == 0 {
		return false
	}
	if n > p.maxDrainKeys {
		n = p.maxDrainKeys
	}
	visited := p.drainable[:n]
	remaining := make([]*keyQueue, 0, len(p.drainable))
	remaining = append(remaining, p.drainable[n:]...)
	satisfied := false
	for _, kq := range visited {
		before := p.queueSizes(kq)
		if drainer.Drain(kq.key, kq.queues, supplier) {
			satisfied = true
		}
		for i, q := range kq.queues {
			p.portSizes[i] -= before[i] - q.Size()
		}
		if kq.isEmpty() {
			kq.drainable = false
			delete(p.keyQueues, kq.key.Key())
		} else {
			remaining = append(remaining, kq)
		}
	}
	p.drainable = remaining
	return satisfied
}

func (p *PartitionedOperatorTupleQueue) queueSizes(kq *keyQueue) []int {
	sizes := make([]int, len(kq.queues))
	for i, q := range kq.queues {
		sizes[i] = q.Size()
	}
	return sizes
}

func (p *PartitionedOperatorTupleQueue) SetTupleCounts(counts []int, byPort operator.TupleAvailabilityByPort) {
	if len(counts) != p.portCount {
		panic(fmt.Sprintf("queue of operator %s has %d ports but %d tuple counts given", p.operatorID, p.portCount, len(counts)))
	}
	copy(p.tupleCounts, counts)
	p.byPort = byPort
}

// AwaitTuples does not wait, the queue is only filled by its own runner.
func (p *PartitionedOperatorTupleQueue) AwaitTuples(time.Duration) bool {
	for _, kq := range p.drainable {
		if countsAvailable(p.tupleCounts, p.byPort, func(portIndex int) int {
			return kq.queues[portIndex].Size()
		}) {
			return true
		}
	}
	return false
}

func (p *PartitionedOperatorTupleQueue) EnableCapacityCheck(portIndex int) {
	p.capacityCheck[portIndex] = true
}

func (p *PartitionedOperatorTupleQueue) DisableCapacityCheck(portIndex int) {
	p.capacityCheck[portIndex] = false
}

func (p *PartitionedOperatorTupleQueue) IsCapacityCheckEnabled(portIndex int) bool {
	return p.capacityCheck[portIndex]
}

func (p *PartitionedOperatorTupleQueue) IsOverloaded() bool {
	for i, size := range p.portSizes {
		if p.capacityCheck[i] && size >= p.capacity {
			return true
		}
	}
	return false
}

func (p *PartitionedOperatorTupleQueue) Size(portIndex int) int {
	return p.portSizes[portIndex]
}

func (p *PartitionedOperatorTupleQueue) IsEmpty() bool {
	return len(p.drainable) == 0
}

// KeyCount returns the number of partition keys with buffered tuples.
func (p *PartitionedOperatorTupleQueue) KeyCount() int {
	return len(p.drainable)
}

func (p *PartitionedOperatorTupleQueue) RemoveAll() [][]*tuple.Tuple {
	all := make([][]*tuple.Tuple, p.portCount)
	for _, kq := range p.drainable {
		for i, q := range kq.queues {
			if size := q.Size(); size > 0 {
				all[i] = append(all[i], q.PollAtLeast(1, size)...)
			}
		}
	}
	p.Clear()
	return all
}

func (p *PartitionedOperatorTupleQueue) Clear() {
	p.keyQueues = map[string]*keyQueue{}
	p.drainable = nil
	for i := range p.portSizes {
		p.portSizes[i] = 0
	}
}
