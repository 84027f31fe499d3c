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

import (
	"fmt"
	"time"

	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// DownstreamSender forwards the output of the last operator of a pipeline replica.
type DownstreamSender interface {
	Send(output *tuple.Tuples)
}

// Interrupter tells a sender blocked on back-pressure to stop waiting. Tuples which could not be offered
// within capacity are then offered regardless of it.
type Interrupter interface {
	Interrupted() bool
}

// RegionEntry holds the queues tuples sent to a region are offered to, one per replica. Tuples sent to a
// partitioned region are routed to the replica owning their partition.
type RegionEntry struct {
	RegionID     int
	Queues       []tuplequeue.OperatorTupleQueue
	Distribution *partition.Distribution
	Extractor    partition.KeyExtractor
}

func (e *RegionEntry) IsPartitioned() bool {
	return e.Distribution != nil
}

// Router resolves the entry of a region at send time, so that senders follow the region through rebalances.
type Router interface {
	Entry(regionID int) (*RegionEntry, bool)
}

// PortMapping maps an output port of the sending operator to an input port of the receiving one.
type PortMapping struct {
	FromPort int
	ToPort   int
}

type nopSender struct{}

func (nopSender) Send(*tuple.Tuples) {}

// NopSender is the sender of pipelines whose last operator has no downstream operators.
var NopSender DownstreamSender = nopSender{}

// QueueSender sends to a fixed queue. It is used between pipelines of the same region replica.
type QueueSender struct {
	queue       tuplequeue.OperatorTupleQueue
	mappings    []PortMapping
	timeout     time.Duration
	interrupter Interrupter
}

func NewQueueSender(queue tuplequeue.OperatorTupleQueue, mappings []PortMapping, timeout time.Duration) *QueueSender {
	return &QueueSender{queue: queue, mappings: mappings, timeout: timeout}
}

func (q *QueueSender) Queue() tuplequeue.OperatorTupleQueue {
	return q.queue
}

func (q *QueueSender) setInterrupter(interrupter Interrupter) {
	q.interrupter = interrupter
}

func (q *QueueSender) Send(output *tuple.Tuples) {
	for _, m := range q.mappings {
		offer(q.queue, m.ToPort, output.Get(m.FromPort), q.timeout, q.interrupter)
	}
}

// Destination is a connection from the last operator of a region to the first operator of another region.
type Destination struct {
	RegionID int
	PortMapping
}

// RoutedSender sends to the entries of downstream regions resolved through a Router.
type RoutedSender struct {
	destinations []Destination
	router       Router
	timeout      time.Duration
	interrupter  Interrupter
	byReplica    [][]*tuple.Tuple
	// shared is true if the same tuples can be sent to more than one region
	shared bool
}

func NewRoutedSender(destinations []Destination, router Router, timeout time.Duration) *RoutedSender {
	return &RoutedSender{destinations: destinations, router: router, timeout: timeout, shared: len(destinations) > 1}
}

func (r *RoutedSender) Destinations() []Destination {
	return r.destinations
}

func (r *RoutedSender) setInterrupter(interrupter Interrupter) {
	r.interrupter = interrupter
}

func (r *RoutedSender) Send(output *tuple.Tuples) {
	for _, d := range r.destinations {
		tuples := output.Get(d.FromPort)
		if len(tuples) == 0 {
			continue
		}
		entry, ok := r.router.Entry(d.RegionID)
		if !ok {
			panic(fmt.Sprintf("no route to region %d", d.RegionID))
		}
		if !entry.IsPartitioned() {
			offer(entry.Queues[0], d.ToPort, tuples, r.timeout, r.interrupter)
			continue
		}
		r.sendPartitioned(entry, d.ToPort, tuples)
	}
}

func (r *RoutedSender) sendPartitioned(entry *RegionEntry, toPort int, tuples []*tuple.Tuple) {
	replicaCount := entry.Distribution.ReplicaCount()
	if len(r.byReplica) < replicaCount {
		r.byReplica = make([][]*tuple.Tuple, replicaCount)
	}
	for _, t := range tuples {
		// a key attached upstream belongs to another region's partitioning
		key := entry.Extractor.Extract(t)
		if attached, ok := t.PartitionKey(); !ok || attached != key {
			if r.shared {
				t = t.Copy()
			}
			t.AttachPartitionKey(key)
		}
		replicaIndex := entry.Distribution.ReplicaIndex(partition.ID(key.Hash(), entry.Distribution.PartitionCount()))
		r.byReplica[replicaIndex] = append(r.byReplica[replicaIndex], t)
	}
	for i := 0; i < replicaCount; i++ {
		if len(r.byReplica[i]) > 0 {
			offer(entry.Queues[i], toPort, r.byReplica[i], r.timeout, r.interrupter)
		}
		clear(r.byReplica[i])
		r.byReplica[i] = r.byReplica[i][:0]
	}
}

// offer offers tuples within the capacity of the queue, retrying until all are accepted. If the interrupter
// fires while waiting the remaining tuples are offered unconditionally.
func offer(queue tuplequeue.OperatorTupleQueue, portIndex int, tuples []*tuple.Tuple, timeout time.Duration,
	interrupter Interrupter) {
	for len(tuples) > 0 {
		n := queue.TryOffer(portIndex, tuples, timeout)
		tuples = tuples[n:]
		if len(tuples) > 0 && interrupter != nil && interrupter.Interrupted() {
			if log.DebugEnabled {
				log.Debugf("offering %d tuples to %s over capacity after interrupt", len(tuples), queue.OperatorID())
			}
			queue.Offer(portIndex, tuples)
			return
		}
	}
}
