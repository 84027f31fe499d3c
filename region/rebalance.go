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
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/kvstore"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/tuple"
)

// RebalanceRegion changes the replica count of a partitioned stateful region. Operator instances of the
// replicas which are kept are reused with their current scheduling strategies, added replicas get new
// instances. Partitions whose owner changes are migrated with their kv stores, and buffered tuples are handed to
// the replica owning their partition. Runners of the region, and of the regions sending to it, must not be
// running.
func (m *Manager) RebalanceRegion(r *Region, newReplicaCount int) (*Region, error) {
	def := r.Def()
	if !def.IsPartitioned() {
		return nil, errors.NewInvalidTransformationErrorf("%s region %d cannot be rebalanced", def.Type(), def.ID())
	}
	if newReplicaCount < 1 || newReplicaCount > m.partitions.PartitionCount() {
		return nil, errors.NewInvalidTransformationErrorf("region %d cannot have %d replicas", def.ID(), newReplicaCount)
	}
	if newReplicaCount == r.ReplicaCount() {
		return nil, errors.NewInvalidTransformationErrorf("region %d already has %d replicas", def.ID(), newReplicaCount)
	}
	if r.HasCompletedOperators() {
		return nil, errors.NewInvalidTransformationErrorf("region %d has completed operators", def.ID())
	}
	operators, err := rebalancedOperators(r, newReplicaCount)
	if err != nil {
		return nil, err
	}
	next, err := m.partitions.RebalancePartitionDistribution(def.ID(), newReplicaCount)
	if err != nil {
		return nil, err
	}

	kv := make(kvContexts, def.OperatorCount())
	for i, op := range def.Operators() {
		kv[i] = make([]kvstore.Context, newReplicaCount)
		if op.Type() == operator.PartitionedStateful {
			for replicaIndex, ctx := range m.kvStores.RebalancePartitionedContexts(op.ID(), r.distribution, next) {
				kv[i][replicaIndex] = ctx
			}
		}
	}
	heads := make([]*pipeline.UpstreamContext, newReplicaCount)
	for i := range heads {
		heads[i] = r.PipelineReplica(0, 0).Head().UpstreamContext().Copy()
	}
	rebalanced := &Region{
		plan:         r.plan.withReplicaCount(newReplicaCount),
		flow:         r.flow,
		links:        r.links,
		distribution: next,
		extractor:    r.extractor,
		destinations: r.destinations,
		router:       r.router,
	}
	rebalanced.replicas = m.buildReplicas(rebalanced, kv, heads, operators)
	moved := redistributeTuples(r, rebalanced)
	regionLog.Infof("rebalanced region %d from %d to %d replicas, %d buffered tuples redistributed", def.ID(),
		r.ReplicaCount(), newReplicaCount, moved)
	return rebalanced, nil
}

// rebalancedOperators returns the operator instances of the rebalanced region, by operator index and replica
// index. Instances of added replicas are created and initialised here so that a failing operator leaves the
// region untouched. Kept instances carry the upstream version they have seen. Added head instances take the one of
// the head whose upstream context is copied, so that ports closed before the rebalance are not reported twice.
func rebalancedOperators(r *Region, replicaCount int) ([][]initialisedOperator, error) {
	def := r.Def()
	headVersion := r.PipelineReplica(0, 0).Head().LastUpstreamVersion()
	operators := make([][]initialisedOperator, def.OperatorCount())
	for i := range operators {
		operators[i] = make([]initialisedOperator, replicaCount)
	}
	for replicaIndex := 0; replicaIndex < replicaCount; replicaIndex++ {
		if replicaIndex < r.ReplicaCount() {
			for _, p := range r.replicas {
				for _, op := range p[replicaIndex].Operators() {
					operators[op.Index()][replicaIndex] = initialisedOperator{op: op.Operator(),
						strategy: op.SchedulingStrategy(), upstreamVersion: op.LastUpstreamVersion()}
				}
			}
			continue
		}
		for i, opDef := range def.Operators() {
			op := opDef.CreateOperator()
			strategy, err := pipeline.InitOperator(opDef, op, replicaIndex)
			if err != nil {
				return nil, err
			}
			operators[i][replicaIndex] = initialisedOperator{op: op, strategy: strategy}
			if i == 0 {
				operators[i][replicaIndex].upstreamVersion = headVersion
			}
		}
	}
	return operators, nil
}

// redistributeTuples moves the tuples buffered in the queues of the old region to the same queues of the
// replicas owning their partitions in the new region. It returns the number of tuples moved.
func redistributeTuples(from *Region, to *Region) int {
	moved := 0
	byReplica := make([][]*tuple.Tuple, to.ReplicaCount())
	route := func(tuples []*tuple.Tuple, offer func(replicaIndex int, tuples []*tuple.Tuple)) {
		for _, t := range tuples {
			partitionID := partition.PartitionIDOf(t, to.extractor, to.distribution.PartitionCount())
			replicaIndex := to.distribution.ReplicaIndex(partitionID)
			byReplica[replicaIndex] = append(byReplica[replicaIndex], t)
		}
		for i, routed := range byReplica {
			if len(routed) > 0 {
				offer(i, routed)
				moved += len(routed)
			}
			byReplica[i] = nil
		}
	}
	for pipelineIndex, replicas := range from.replicas {
		for _, p := range replicas {
			for portIndex, tuples := range p.SelfQueue().RemoveAll() {
				route(tuples, func(replicaIndex int, routed []*tuple.Tuple) {
					to.replicas[pipelineIndex][replicaIndex].SelfQueue().ForceOffer(portIndex, routed)
				})
			}
			for opIndex, op := range p.Operators() {
				for portIndex, tuples := range op.Queue().RemoveAll() {
					route(tuples, func(replicaIndex int, routed []*tuple.Tuple) {
						to.replicas[pipelineIndex][replicaIndex].Operator(opIndex).Queue().ForceOffer(portIndex, routed)
					})
				}
			}
		}
	}
	return moved
}
