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

package region

import (
	"testing"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/stretchr/testify/require"
)

func TestRebalanceUpMigratesStateAndTuples(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 2))
	r := f.createRegion(t, 1, 2, 0)
	feed(r, keyedTuples(0, 20))
	invokeAll(r, 2)
	require.Equal(t, 20, f.partitionedCount(t, "p0"))
	feed(r, keyedTuples(20, 20))
	reused := recording(r, 0, 1, 0)

	rebalanced, err := f.manager.RebalanceRegion(r, 4)
	require.NoError(t, err)
	require.Equal(t, 4, rebalanced.ReplicaCount())
	require.Equal(t, 1, rebalanced.ExecPlan().Version())
	require.Equal(t, 4, rebalanced.Distribution().ReplicaCount())
	require.Len(t, rebalanced.Entry().Queues, 4)
	require.Same(t, reused, recording(rebalanced, 0, 1, 0))
	for replicaIndex := 2; replicaIndex < 4; replicaIndex++ {
		op := recording(rebalanced, 0, replicaIndex, 0)
		require.True(t, op.IsInitialised())
		require.Equal(t, replicaIndex, op.ReplicaIndex())
	}

	contexts, ok := f.kvStores.PartitionedContexts("p0")
	require.True(t, ok)
	require.Len(t, contexts, 4)
	for partitionID := 0; partitionID < testPartitionCount; partitionID++ {
		owner := rebalanced.Distribution().ReplicaIndex(partitionID)
		require.True(t, contexts[owner].Owns(partitionID))
	}
	require.Equal(t, 20, f.partitionedCount(t, "p0"))

	invokeAll(rebalanced, 3)
	require.Equal(t, 40, f.partitionedCount(t, "p0"))
	require.Equal(t, 40, f.partitionedCount(t, "p1"))
	require.Equal(t, 40, receivedByLast(rebalanced))
}

func TestRebalanceDownRedistributesTuples(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 2))
	r := f.createRegion(t, 1, 4, 0, 1)
	feed(r, keyedTuples(0, 30))
	for _, p := range r.PipelineReplicas(0) {
		p.Invoke()
	}
	require.Equal(t, 30, f.partitionedCount(t, "p0"))
	require.Equal(t, 0, f.partitionedCount(t, "p1"))

	rebalanced, err := f.manager.RebalanceRegion(r, 1)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, rebalanced.ExecPlan().PipelineStartIndices())
	require.Equal(t, 30, rebalanced.PipelineReplica(1, 0).EntryQueue().Size(0))
	invokeAll(rebalanced, 2)
	require.Equal(t, 30, f.partitionedCount(t, "p1"))
	require.Equal(t, 30, receivedByLast(rebalanced))
}

func TestRebalanceKeepsHeadUpstreamStatus(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 1))
	r := f.createRegion(t, 1, 1, 0)
	rebalanced, err := f.manager.RebalanceRegion(r, 2)
	require.NoError(t, err)
	for _, upstream := range rebalanced.HeadUpstreamContexts() {
		require.True(t, upstream.IsOpen(0))
	}
	require.NotSame(t, r.HeadUpstreamContexts()[0], rebalanced.HeadUpstreamContexts()[0])
}

func TestInvalidRebalance(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 1))
	r := f.createRegion(t, 1, 2, 0)
	for _, count := range []int{0, 2, testPartitionCount + 1} {
		_, err := f.manager.RebalanceRegion(r, count)
		require.True(t, errors.HasCode(err, errors.InvalidTransformation), "replica count %d", count)
	}
	require.Equal(t, 2, r.Distribution().ReplicaCount())

	stateless := newRegionFixture(t, statelessChain(t))
	_, err := stateless.manager.RebalanceRegion(stateless.createRegion(t, 1, 1, 0), 2)
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
}

func TestRebalanceRejectsCompletedRegion(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 1))
	r := f.createRegion(t, 1, 2, 0)
	for _, upstream := range r.HeadUpstreamContexts() {
		upstream.Close(0)
	}
	invokeAll(r, 1)
	require.True(t, r.HasCompletedOperators())
	_, err := f.manager.RebalanceRegion(r, 3)
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
}

func TestRedistributedTuplesReachPartitionOwners(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 1))
	r := f.createRegion(t, 1, 1, 0)
	tuples := keyedTuples(0, 10)
	feed(r, tuples)
	rebalanced, err := f.manager.RebalanceRegion(r, 3)
	require.NoError(t, err)
	entry := rebalanced.Entry()
	total := 0
	for replicaIndex, queue := range entry.Queues {
		total += queue.Size(0)
		for _, port := range queue.RemoveAll() {
			for _, tup := range port {
				partitionID := partition.PartitionIDOf(tup, entry.Extractor, testPartitionCount)
				require.Equal(t, replicaIndex, entry.Distribution.ReplicaIndex(partitionID))
			}
		}
	}
	require.Equal(t, len(tuples), total)
}

func TestRebalanceDoesNotReportClosedPortTwice(t *testing.T) {
	b := flow.NewFlowDefBuilder()
	b.Add(sourceDef(t, "s0")).Add(sourceDef(t, "s1"))
	b.Add(buildDef(t, flow.NewOperatorDefBuilder("p0", operator.PartitionedStateful, testutils.RecordingFactory(nil, nil)).
		SetInputPortCount(2).SetPartitionFieldNames("key")))
	b.Connect("s0", 0, "p0", 0).Connect("s1", 0, "p0", 1)
	fl, err := b.Build()
	require.NoError(t, err)
	f := newRegionFixture(t, fl)
	regionID := -1
	for _, def := range f.defs {
		if def.First().ID() == "p0" {
			regionID = def.ID()
		}
	}
	require.NotEqual(t, -1, regionID)

	r := f.createRegion(t, regionID, 2, 0)
	for _, upstream := range r.HeadUpstreamContexts() {
		upstream.Close(1)
	}
	invokeAll(r, 1)
	require.False(t, r.HasCompletedOperators())

	rebalanced, err := f.manager.RebalanceRegion(r, 3)
	require.NoError(t, err)
	for _, upstream := range rebalanced.HeadUpstreamContexts() {
		require.True(t, upstream.IsOpen(0))
		require.False(t, upstream.IsOpen(1))
	}
	feed(rebalanced, keyedTuples(0, 30))
	invokeAll(rebalanced, 2)

	received := 0
	for replicaIndex := 0; replicaIndex < 3; replicaIndex++ {
		op := recording(rebalanced, 0, replicaIndex, 0)
		for _, invocation := range op.Invocations() {
			require.Equal(t, operator.Success, invocation.Reason)
			received += invocation.TupleCount()
		}
	}
	require.Equal(t, 30, received)
}
