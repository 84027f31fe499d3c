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
	"testing"
	"time"

	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
	"github.com/stretchr/testify/require"
)

type testRouter map[int]*RegionEntry

func (r testRouter) Entry(regionID int) (*RegionEntry, bool) {
	e, ok := r[regionID]
	return e, ok
}

type alwaysInterrupted struct{}

func (alwaysInterrupted) Interrupted() bool {
	return true
}

func outputOf(portCount int, port int, tuples []*tuple.Tuple) *tuple.Tuples {
	output := tuple.NewTuples(portCount)
	output.AddAll(port, tuples)
	return output
}

func TestQueueSenderMapsPorts(t *testing.T) {
	queue := tuplequeue.NewDefaultOperatorTupleQueue("op", 2, tuplequeue.MultiThreaded, 16, 1024)
	sender := NewQueueSender(queue, []PortMapping{{FromPort: 0, ToPort: 1}}, time.Millisecond)
	sender.Send(outputOf(1, 0, testutils.CreateTuples(0, 3)))
	require.Equal(t, 0, queue.Size(0))
	require.Equal(t, 3, queue.Size(1))
}

func TestSenderOffersOverCapacityWhenInterrupted(t *testing.T) {
	queue := tuplequeue.NewDefaultOperatorTupleQueue("op", 1, tuplequeue.MultiThreaded, 2, 4)
	queue.EnableCapacityCheck(0)
	sender := NewQueueSender(queue, []PortMapping{{}}, time.Millisecond)
	sender.setInterrupter(alwaysInterrupted{})
	sender.Send(outputOf(1, 0, testutils.CreateTuples(0, 10)))
	require.Equal(t, 10, queue.Size(0))
	require.True(t, queue.IsOverloaded())
}

func TestRoutedSenderRoutesByPartition(t *testing.T) {
	service := partition.NewInMemoryService(8)
	distribution, err := service.GetOrCreatePartitionDistribution(2, 3)
	require.NoError(t, err)
	cache, err := partition.NewHashCache(100)
	require.NoError(t, err)
	extractor := partition.NewFieldsKeyExtractor([]string{"k"}, cache)
	queues := make([]tuplequeue.OperatorTupleQueue, 3)
	for i := range queues {
		queues[i] = tuplequeue.NewDefaultOperatorTupleQueue("p", 1, tuplequeue.MultiThreaded, 16, 1024)
	}
	single := tuplequeue.NewDefaultOperatorTupleQueue("s", 1, tuplequeue.MultiThreaded, 16, 1024)
	router := testRouter{
		2: {RegionID: 2, Queues: queues, Distribution: distribution, Extractor: extractor},
		3: {RegionID: 3, Queues: []tuplequeue.OperatorTupleQueue{single}},
	}
	sender := NewRoutedSender([]Destination{{RegionID: 2}, {RegionID: 3}}, router, time.Millisecond)

	tuples := make([]*tuple.Tuple, 50)
	for i := range tuples {
		tuples[i] = tuple.Of("k", i%17, "id", i)
	}
	sender.Send(outputOf(1, 0, tuples))

	total := 0
	for replicaIndex, q := range queues {
		for _, tup := range q.RemoveAll()[0] {
			partitionID := partition.PartitionIDOf(tup, extractor, distribution.PartitionCount())
			require.Equal(t, replicaIndex, distribution.ReplicaIndex(partitionID))
			total++
		}
	}
	require.Equal(t, 50, total)
	require.Equal(t, 50, single.Size(0))
}

func TestRoutedSenderAttachesKeyOfDestination(t *testing.T) {
	service := partition.NewInMemoryService(8)
	distribution, err := service.GetOrCreatePartitionDistribution(2, 2)
	require.NoError(t, err)
	cache, err := partition.NewHashCache(100)
	require.NoError(t, err)
	extractor := partition.NewFieldsKeyExtractor([]string{"k"}, cache)
	newEntry := func(regionID int) *RegionEntry {
		queues := make([]tuplequeue.OperatorTupleQueue, 2)
		for i := range queues {
			queues[i] = tuplequeue.NewDefaultOperatorTupleQueue("p", 1, tuplequeue.MultiThreaded, 16, 1024)
		}
		return &RegionEntry{RegionID: regionID, Queues: queues, Distribution: distribution, Extractor: extractor}
	}
	received := func(entry *RegionEntry) []*tuple.Tuple {
		var all []*tuple.Tuple
		for _, q := range entry.Queues {
			all = append(all, q.RemoveAll()[0]...)
		}
		return all
	}
	stale := tuple.NewPartitionKey("stale", 5)

	entry := newEntry(2)
	sender := NewRoutedSender([]Destination{{RegionID: 2}}, testRouter{2: entry}, time.Millisecond)
	tup := tuple.Of("k", "a")
	tup.AttachPartitionKey(stale)
	sender.Send(outputOf(1, 0, []*tuple.Tuple{tup}))
	sent := received(entry)
	require.Len(t, sent, 1)
	require.Same(t, tup, sent[0])
	key, ok := sent[0].PartitionKey()
	require.True(t, ok)
	require.Equal(t, extractor.Extract(tup), key)

	// tuples sent to several regions are copied before their key is replaced
	first, second := newEntry(2), newEntry(3)
	sender = NewRoutedSender([]Destination{{RegionID: 2}, {RegionID: 3}}, testRouter{2: first, 3: second},
		time.Millisecond)
	tup = tuple.Of("k", "b")
	tup.AttachPartitionKey(stale)
	sender.Send(outputOf(1, 0, []*tuple.Tuple{tup}))
	key, _ = tup.PartitionKey()
	require.Equal(t, stale, key)
	for _, e := range []*RegionEntry{first, second} {
		sent = received(e)
		require.Len(t, sent, 1)
		require.NotSame(t, tup, sent[0])
		key, _ = sent[0].PartitionKey()
		require.Equal(t, extractor.Extract(tup), key)
	}
}

func TestRoutedSenderPanicsWithoutRoute(t *testing.T) {
	sender := NewRoutedSender([]Destination{{RegionID: 9}}, testRouter{}, time.Millisecond)
	require.Panics(t, func() {
		sender.Send(outputOf(1, 0, testutils.CreateTuples(0, 1)))
	})
	// nothing to send, no route needed
	sender.Send(tuple.NewTuples(1))
}
