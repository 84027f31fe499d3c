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

	"github.com/spirit-labs/streamflow/drainer"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// CheckPipelineStartIndicesToMerge returns true if indices name at least two pipelines of the plan which follow
// each other.
func CheckPipelineStartIndicesToMerge(plan *ExecPlan, indices []int) bool {
	if len(indices) < 2 {
		return false
	}
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	starts := plan.PipelineStartIndices()
	first, ok := plan.PipelineIndex(sorted[0])
	if !ok {
		return false
	}
	for i, index := range sorted {
		if first+i >= len(starts) || starts[first+i] != index {
			return false
		}
	}
	return true
}

// CheckPipelineStartIndicesToSplit returns true if indices, in increasing order, are the start index of a pipeline
// followed by operator indices inside that pipeline where new pipelines start.
func CheckPipelineStartIndicesToSplit(plan *ExecPlan, indices []int) bool {
	if len(indices) < 2 || !plan.IsPipelineStartIndex(indices[0]) {
		return false
	}
	end := plan.PipelineEndIndex(indices[0])
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] || indices[i] >= end {
			return false
		}
	}
	return true
}

// MergePipelines merges the pipelines starting at indices into one pipeline in each replica. The merged pipeline
// keeps the id, head queue and self queue of the first pipeline and the sender of the last one. The heads of the
// other pipelines become ordinary operators: their buffered tuples, including those waiting in their self queues,
// are moved into single threaded queues, or stay in their partitioned queue if they are partitioned stateful.
// Pipelines of the region runners must not be running.
func (m *Manager) MergePipelines(r *Region, indices []int) (*Region, error) {
	if !CheckPipelineStartIndicesToMerge(r.plan, indices) {
		return nil, errors.NewInvalidTransformationErrorf("cannot merge pipelines %v of %s", indices, r.plan)
	}
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	first, _ := r.plan.PipelineIndex(sorted[0])
	last := first + len(sorted) - 1
	replicas := make([][]*pipeline.PipelineReplica, 0, r.PipelineCount()-len(sorted)+1)
	replicas = append(replicas, r.replicas[:first]...)
	merged := make([]*pipeline.PipelineReplica, r.ReplicaCount())
	for replicaIndex := range merged {
		pipelines := make([]*pipeline.PipelineReplica, 0, len(sorted))
		for i := first; i <= last; i++ {
			pipelines = append(pipelines, r.replicas[i][replicaIndex])
		}
		merged[replicaIndex] = m.mergeReplicas(r, pipelines)
	}
	replicas = append(replicas, merged)
	replicas = append(replicas, r.replicas[last+1:]...)

	var starts []int
	for _, start := range r.plan.PipelineStartIndices() {
		if start == sorted[0] || !slices.Contains(sorted, start) {
			starts = append(starts, start)
		}
	}
	result := r.withPipelines(r.plan.withPipelineStartIndices(starts), replicas)
	regionLog.Infof("merged pipelines %v of region %d, pipelines are now %v", sorted, r.ID(), starts)
	return result, nil
}

func (m *Manager) mergeReplicas(r *Region, pipelines []*pipeline.PipelineReplica) *pipeline.PipelineReplica {
	first := pipelines[0]
	meter := first.Meter()
	var ops []*pipeline.OperatorReplica
	for k, p := range pipelines {
		for i, op := range p.Operators() {
			lastOfPipeline := i == p.OperatorCount()-1
			lastOfMerged := k == len(pipelines)-1 && lastOfPipeline
			supplier := op.OutputSupplier()
			if lastOfPipeline && !lastOfMerged {
				supplier = tuple.NewCachedSupplier(op.OperatorDef().OutputPortCount())
			}
			switch {
			case k == 0 && !lastOfPipeline:
				ops = append(ops, op)
			case k > 0 && i == 0:
				queue, pool := m.demoteHead(r, p)
				ops = append(ops, op.Duplicate(meter, queue, pool, supplier))
			default:
				ops = append(ops, op.Duplicate(meter, op.Queue(), op.DrainerPool(), supplier))
			}
		}
	}
	return pipeline.NewPipelineReplica(first.ID(), ops, first.SelfQueue(), meter, pipelines[len(pipelines)-1].Sender(),
		m.cfg.MaxDrainBatchSize)
}

// demoteHead returns the queue and pool of the head of p once it is no longer a pipeline head.
func (m *Manager) demoteHead(r *Region, p *pipeline.PipelineReplica) (tuplequeue.OperatorTupleQueue, drainer.Pool) {
	head := p.Head()
	def := head.OperatorDef()
	var queue tuplequeue.OperatorTupleQueue
	var pool drainer.Pool
	if r.distribution != nil && def.Type() == operator.PartitionedStateful {
		queue, pool = head.Queue(), head.DrainerPool()
	} else {
		queue = m.queues.CreateDefaultQueue(def.ID(), def.InputPortCount(), tuplequeue.SingleThreaded)
		pool = m.nonBlockingPool(def)
		tuplequeue.MoveTuples(head.Queue(), queue)
	}
	tuplequeue.MoveTuples(p.SelfQueue(), queue)
	return queue, pool
}

// SplitPipeline splits the pipeline starting at indices[0] into pipelines starting at each of indices, in each
// replica. The first part keeps the id, head and self queue of the split pipeline and the last part its sender.
// Heads of the new pipelines get a multi threaded queue and a blocking pool, or a partitioned queue and a self
// queue in partitioned regions, and their buffered tuples are moved there. Pipelines of the region runners must
// not be running.
func (m *Manager) SplitPipeline(r *Region, indices []int) (*Region, error) {
	if !CheckPipelineStartIndicesToSplit(r.plan, indices) {
		return nil, errors.NewInvalidTransformationErrorf("cannot split pipeline with indices %v of %s", indices, r.plan)
	}
	pipelineIndex, _ := r.plan.PipelineIndex(indices[0])
	parts := make([][]*pipeline.PipelineReplica, len(indices))
	for i := range parts {
		parts[i] = make([]*pipeline.PipelineReplica, r.ReplicaCount())
	}
	for replicaIndex := 0; replicaIndex < r.ReplicaCount(); replicaIndex++ {
		for i, p := range m.splitReplica(r, r.replicas[pipelineIndex][replicaIndex], indices) {
			parts[i][replicaIndex] = p
		}
	}
	replicas := make([][]*pipeline.PipelineReplica, 0, r.PipelineCount()+len(indices)-1)
	replicas = append(replicas, r.replicas[:pipelineIndex]...)
	replicas = append(replicas, parts...)
	replicas = append(replicas, r.replicas[pipelineIndex+1:]...)

	starts := append(r.plan.PipelineStartIndices(), indices[1:]...)
	slices.Sort(starts)
	split := r.withPipelines(r.plan.withPipelineStartIndices(starts), replicas)
	regionLog.Infof("split pipeline %d of region %d at %v, pipelines are now %v", indices[0], r.ID(), indices[1:], starts)
	return split, nil
}

func (m *Manager) splitReplica(r *Region, p *pipeline.PipelineReplica, indices []int) []*pipeline.PipelineReplica {
	start := indices[0]
	end := start + p.OperatorCount()
	parts := make([]*pipeline.PipelineReplica, len(indices))
	var next tuplequeue.OperatorTupleQueue
	for k := len(indices) - 1; k >= 0; k-- {
		partStart, partEnd := indices[k], end
		if k < len(indices)-1 {
			partEnd = indices[k+1]
		}
		head := p.Operator(partStart - start).OperatorDef()
		id, meter, self := p.ID(), p.Meter(), p.SelfQueue()
		if k > 0 {
			id = pipeline.NewPipelineReplicaID(r.ID(), partStart, p.ID().ReplicaIndex)
			meter = m.newMeter(id, head)
			self = m.createSelfQueue(r, head)
		}
		ops := make([]*pipeline.OperatorReplica, 0, partEnd-partStart)
		for i := partStart; i < partEnd; i++ {
			op := p.Operator(i - start)
			lastOfPart := i == partEnd-1
			supplier := op.OutputSupplier()
			if lastOfPart && k < len(indices)-1 {
				supplier = tuple.NewNonCachedSupplier(op.OperatorDef().OutputPortCount())
			}
			switch {
			case k == 0 && !lastOfPart:
				ops = append(ops, op)
			case k > 0 && i == partStart:
				queue, pool := m.promoteToHead(r, op, p.ID().ReplicaIndex)
				ops = append(ops, op.Duplicate(meter, queue, pool, supplier))
			default:
				ops = append(ops, op.Duplicate(meter, op.Queue(), op.DrainerPool(), supplier))
			}
		}
		sender := p.Sender()
		if k < len(indices)-1 {
			sender = m.createQueueSender(r, next, partEnd)
		}
		parts[k] = pipeline.NewPipelineReplica(id, ops, self, meter, sender, m.cfg.MaxDrainBatchSize)
		next = parts[k].EntryQueue()
	}
	return parts
}

// promoteToHead returns the queue and pool of op once it is the head of a pipeline.
func (m *Manager) promoteToHead(r *Region, op *pipeline.OperatorReplica, replicaIndex int) (tuplequeue.OperatorTupleQueue, drainer.Pool) {
	def := op.OperatorDef()
	if r.distribution != nil {
		if def.Type() == operator.PartitionedStateful {
			return op.Queue(), op.DrainerPool()
		}
		queue := m.createPartitionedQueue(r, def, replicaIndex)
		tuplequeue.MoveTuples(op.Queue(), queue)
		return queue, m.nonBlockingPool(def)
	}
	queue := m.queues.CreateDefaultQueue(def.ID(), def.InputPortCount(), tuplequeue.MultiThreaded)
	tuplequeue.MoveTuples(op.Queue(), queue)
	return queue, m.blockingPool(def)
}
