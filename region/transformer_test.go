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
	"slices"
	"testing"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/operators"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
	"github.com/stretchr/testify/require"
)

func TestMergePipelinesMovesBufferedTuples(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0, 2, 4)
	first := r.PipelineReplica(0, 0)
	a := recording(r, 0, 0, 0)

	feed(r, testutils.CreateTuples(0, 10))
	first.Invoke()
	require.Equal(t, 10, r.PipelineReplica(1, 0).EntryQueue().Size(0))
	r.PipelineReplica(2, 0).EntryQueue().Offer(0, testutils.CreateTuples(100, 3))

	merged, err := f.manager.MergePipelines(r, []int{0, 2, 4})
	require.NoError(t, err)
	require.Equal(t, []int{0}, merged.ExecPlan().PipelineStartIndices())
	require.Equal(t, 1, merged.ExecPlan().Version())
	require.Equal(t, 1, merged.PipelineCount())

	p := merged.PipelineReplica(0, 0)
	require.Equal(t, 5, p.OperatorCount())
	require.Equal(t, first.ID(), p.ID())
	require.Same(t, first.SelfQueue(), p.SelfQueue())
	require.Same(t, first.Meter(), p.Meter())
	require.Same(t, first.Head(), p.Head())
	require.Same(t, a, recording(merged, 0, 0, 0))
	require.Equal(t, pipeline.NopSender, p.Sender())
	for _, op := range p.Operators()[1:] {
		require.Equal(t, tuplequeue.SingleThreaded, op.Queue().ThreadingPreference())
		require.False(t, op.DrainerPool().IsBlocking())
	}

	p.Invoke()
	e := recording(merged, 0, 0, 4)
	require.Equal(t, []int{100, 101, 102, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, testutils.IDs(e.Received(0)))
	require.Equal(t, 10, recording(merged, 0, 0, 2).ReceivedCount())
}

func TestMergeTwoOfThreePipelines(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0, 2, 4)
	last := r.PipelineReplica(2, 0)

	merged, err := f.manager.MergePipelines(r, []int{2, 0})
	require.NoError(t, err)
	require.Equal(t, []int{0, 4}, merged.ExecPlan().PipelineStartIndices())
	require.Same(t, last, merged.PipelineReplica(1, 0))
	sender, ok := merged.PipelineReplica(0, 0).Sender().(*pipeline.QueueSender)
	require.True(t, ok)
	require.Same(t, last.EntryQueue(), sender.Queue())

	feed(merged, testutils.CreateTuples(0, 4))
	invokeAll(merged, 2)
	require.Equal(t, []int{0, 1, 2, 3}, testutils.IDs(recording(merged, 1, 0, 0).Received(0)))
}

func TestSplitPipelineMovesBufferedTuples(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0)
	original := r.PipelineReplica(0, 0)
	original.Operator(2).Queue().Offer(0, testutils.CreateTuples(50, 3))
	feed(r, testutils.CreateTuples(0, 10))

	split, err := f.manager.SplitPipeline(r, []int{0, 2, 4})
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 4}, split.ExecPlan().PipelineStartIndices())
	require.Equal(t, 1, split.ExecPlan().Version())
	require.Equal(t, 3, split.PipelineCount())

	p0 := split.PipelineReplica(0, 0)
	require.Equal(t, original.ID(), p0.ID())
	require.Same(t, original.Head(), p0.Head())
	require.Same(t, original.Meter(), p0.Meter())
	p1 := split.PipelineReplica(1, 0)
	require.Equal(t, "c", p1.Head().OperatorID())
	require.Equal(t, 2, p1.ID().PipelineStartIndex)
	require.Equal(t, tuplequeue.MultiThreaded, p1.Head().Queue().ThreadingPreference())
	require.True(t, p1.Head().DrainerPool().IsBlocking())
	require.Equal(t, 3, p1.EntryQueue().Size(0))
	sender, ok := p0.Sender().(*pipeline.QueueSender)
	require.True(t, ok)
	require.Same(t, p1.EntryQueue(), sender.Queue())
	require.Equal(t, pipeline.NopSender, split.PipelineReplica(2, 0).Sender())

	invokeAll(split, 1)
	e := recording(split, 2, 0, 0)
	require.Equal(t, []int{50, 51, 52, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, testutils.IDs(e.Received(0)))
}

func TestSplitThenMergeRestoresSinglePipeline(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0)
	split, err := f.manager.SplitPipeline(r, []int{0, 3})
	require.NoError(t, err)
	merged, err := f.manager.MergePipelines(split, []int{0, 3})
	require.NoError(t, err)
	require.Equal(t, []int{0}, merged.ExecPlan().PipelineStartIndices())
	require.Equal(t, 2, merged.ExecPlan().Version())

	feed(merged, testutils.CreateTuples(0, 6))
	invokeAll(merged, 1)
	require.Equal(t, 6, receivedByLast(merged))
}

func TestMergeThenSplitDeliversEveryTupleOnce(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0, 2, 4)
	feed(r, testutils.CreateTuples(0, 10))
	r.PipelineReplica(0, 0).Invoke()
	feed(r, testutils.CreateTuples(10, 5))
	r.PipelineReplica(2, 0).EntryQueue().Offer(0, testutils.CreateTuples(100, 3))

	merged, err := f.manager.MergePipelines(r, []int{0, 2, 4})
	require.NoError(t, err)
	feed(merged, testutils.CreateTuples(20, 5))
	split, err := f.manager.SplitPipeline(merged, []int{0, 2, 4})
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 4}, split.ExecPlan().PipelineStartIndices())
	require.Equal(t, 2, split.ExecPlan().Version())

	invokeAll(split, 3)
	var expected []int
	for _, ids := range [][2]int{{0, 15}, {20, 25}, {100, 103}} {
		for id := ids[0]; id < ids[1]; id++ {
			expected = append(expected, id)
		}
	}
	received := testutils.IDs(recording(split, 2, 0, 0).Received(0))
	slices.Sort(received)
	require.Equal(t, expected, received)
	// c and d saw every tuple except those already buffered for e
	require.Equal(t, 20, recording(split, 1, 0, 0).ReceivedCount())
	require.Equal(t, 20, recording(split, 1, 0, 1).ReceivedCount())
}

func TestSplitAfterOperatorDroppingPartitionField(t *testing.T) {
	drop := buildDef(t, flow.NewOperatorDefBuilder("drop", operator.Stateless,
		operators.MapperFactory(func(t *tuple.Tuple) *tuple.Tuple {
			c := t.Copy()
			c.Remove("key")
			return c
		})))
	f := newRegionFixture(t, chain(t, sourceDef(t, "src"), partitionedDef(t, "p0", "key"), drop,
		statelessDef(t, "a")))
	require.Equal(t, []string{"p0", "drop", "a"}, f.defs[1].OperatorIDs())
	r := f.createRegion(t, 1, 2, 0)

	split, err := f.manager.SplitPipeline(r, []int{0, 2})
	require.NoError(t, err)
	feed(split, keyedTuples(0, 20))
	require.NotPanics(t, func() {
		invokeAll(split, 3)
	})
	require.Equal(t, 20, receivedByLast(split))
	for _, p := range split.PipelineReplicas(1) {
		for _, tup := range p.Head().Operator().(*testutils.RecordingOperator).Received(0) {
			require.False(t, tup.Contains("key"))
			_, ok := tup.PartitionKey()
			require.True(t, ok)
		}
	}
}

func TestMergePartitionedPipelinesKeepsState(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 3))
	r := f.createRegion(t, 1, 2, 0, 1, 2)
	feed(r, keyedTuples(0, 20))
	for _, p := range r.PipelineReplicas(0) {
		p.Invoke()
	}
	require.Equal(t, 20, f.partitionedCount(t, "p0"))

	merged, err := f.manager.MergePipelines(r, []int{0, 1, 2})
	require.NoError(t, err)
	for replicaIndex := 0; replicaIndex < 2; replicaIndex++ {
		p := merged.PipelineReplica(0, replicaIndex)
		old := r.PipelineReplica(1, replicaIndex)
		require.Same(t, old.Head().Queue(), p.Operator(1).Queue())
		require.Same(t, old.Head().KVContext(), p.Operator(1).KVContext())
	}
	invokeAll(merged, 3)
	require.Equal(t, 20, f.partitionedCount(t, "p0"))
	require.Equal(t, 20, f.partitionedCount(t, "p1"))
	require.Equal(t, 20, f.partitionedCount(t, "p2"))
	require.Equal(t, 20, receivedByLast(merged))
}

func TestSplitPartitionedPipeline(t *testing.T) {
	f := newRegionFixture(t, partitionedChain(t, 3))
	r := f.createRegion(t, 1, 2, 0)
	feed(r, keyedTuples(0, 20))
	invokeAll(r, 1)
	require.Equal(t, 20, f.partitionedCount(t, "p2"))
	feed(r, keyedTuples(20, 20))

	split, err := f.manager.SplitPipeline(r, []int{0, 1, 2})
	require.NoError(t, err)
	for _, p := range split.AllPipelineReplicas() {
		require.IsType(t, &tuplequeue.PartitionedOperatorTupleQueue{}, p.Head().Queue())
		require.Same(t, p.SelfQueue(), p.EntryQueue())
	}
	invokeAll(split, 3)
	require.Equal(t, 40, f.partitionedCount(t, "p0"))
	require.Equal(t, 40, f.partitionedCount(t, "p1"))
	require.Equal(t, 40, f.partitionedCount(t, "p2"))
	require.Equal(t, 40, receivedByLast(split))
}

func TestInvalidPipelineTransformations(t *testing.T) {
	f := newRegionFixture(t, statelessChain(t))
	r := f.createRegion(t, 1, 1, 0, 2)
	_, err := f.manager.MergePipelines(r, []int{0})
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	_, err = f.manager.MergePipelines(r, []int{0, 1})
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	_, err = f.manager.SplitPipeline(r, []int{1, 2})
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	_, err = f.manager.SplitPipeline(r, []int{0, 2})
	require.True(t, errors.HasCode(err, errors.InvalidTransformation))
	require.Equal(t, []int{0, 2}, r.ExecPlan().PipelineStartIndices())
}
