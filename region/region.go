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
	"fmt"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// Region is the runtime of a region: for every pipeline of its exec plan, one pipeline replica per region
// replica. A region is never modified once created, transformations create a new one.
type Region struct {
	plan         *ExecPlan
	flow         *flow.FlowDef
	links        []flow.Connection
	replicas     [][]*pipeline.PipelineReplica
	distribution *partition.Distribution
	extractor    partition.KeyExtractor
	destinations []pipeline.Destination
	router       pipeline.Router
}

func (r *Region) ID() int {
	return r.plan.RegionID()
}

func (r *Region) Def() *RegionDef {
	return r.plan.RegionDef()
}

func (r *Region) ExecPlan() *ExecPlan {
	return r.plan
}

func (r *Region) ReplicaCount() int {
	return r.plan.ReplicaCount()
}

func (r *Region) PipelineCount() int {
	return len(r.replicas)
}

// PipelineReplicas returns the replicas of the pipeline at pipelineIndex, in replica order.
func (r *Region) PipelineReplicas(pipelineIndex int) []*pipeline.PipelineReplica {
	return r.replicas[pipelineIndex]
}

func (r *Region) PipelineReplica(pipelineIndex int, replicaIndex int) *pipeline.PipelineReplica {
	return r.replicas[pipelineIndex][replicaIndex]
}

// AllPipelineReplicas returns every pipeline replica, pipeline by pipeline.
func (r *Region) AllPipelineReplicas() []*pipeline.PipelineReplica {
	var all []*pipeline.PipelineReplica
	for _, replicas := range r.replicas {
		all = append(all, replicas...)
	}
	return all
}

// Distribution is nil unless the region is partitioned.
func (r *Region) Distribution() *partition.Distribution {
	return r.distribution
}

func (r *Region) Extractor() partition.KeyExtractor {
	return r.extractor
}

func (r *Region) Destinations() []pipeline.Destination {
	return r.destinations
}

// Entry returns the queues other regions send to.
func (r *Region) Entry() *pipeline.RegionEntry {
	queues := make([]tuplequeue.OperatorTupleQueue, r.ReplicaCount())
	for i, p := range r.replicas[0] {
		queues[i] = p.EntryQueue()
	}
	return &pipeline.RegionEntry{RegionID: r.ID(), Queues: queues, Distribution: r.distribution, Extractor: r.extractor}
}

// HeadUpstreamContexts returns the upstream contexts of the first operator of each replica.
func (r *Region) HeadUpstreamContexts() []*pipeline.UpstreamContext {
	contexts := make([]*pipeline.UpstreamContext, r.ReplicaCount())
	for i, p := range r.replicas[0] {
		contexts[i] = p.Head().UpstreamContext()
	}
	return contexts
}

// IsCompleted is true once every replica of the last operator has completed.
func (r *Region) IsCompleted() bool {
	for _, p := range r.replicas[len(r.replicas)-1] {
		if !p.Last().IsCompleted() {
			return false
		}
	}
	return true
}

// HasCompletedOperators is true if any operator replica of the region has completed.
func (r *Region) HasCompletedOperators() bool {
	for _, p := range r.AllPipelineReplicas() {
		for _, op := range p.Operators() {
			if op.IsCompleted() {
				return true
			}
		}
	}
	return false
}

func (r *Region) String() string {
	return fmt.Sprintf("Region{%s}", r.plan)
}

func (r *Region) withPipelines(plan *ExecPlan, replicas [][]*pipeline.PipelineReplica) *Region {
	return &Region{
		plan:         plan,
		flow:         r.flow,
		links:        r.links,
		replicas:     replicas,
		distribution: r.distribution,
		extractor:    r.extractor,
		destinations: r.destinations,
		router:       r.router,
	}
}

// regionLinks returns the connection between each pair of consecutive operators of a region.
func regionLinks(f *flow.FlowDef, def *RegionDef) ([]flow.Connection, error) {
	links := make([]flow.Connection, def.OperatorCount()-1)
	for i := 0; i < def.OperatorCount()-1; i++ {
		from, to := def.Operator(i).ID(), def.Operator(i+1).ID()
		found := false
		for _, c := range f.OutboundConnections(from) {
			if c.To.OperatorID == to {
				if found {
					return nil, errors.NewInvalidFlowErrorf("operators %s and %s of region %d have more than one connection", from,
						to, def.ID())
				}
				links[i] = c
				found = true
			}
		}
		if !found {
			return nil, errors.NewInvalidFlowErrorf("operators %s and %s of region %d are not connected", from, to, def.ID())
		}
	}
	return links, nil
}

// Destinations returns the connections from the last operator of a region to the regions it feeds.
func Destinations(f *flow.FlowDef, def *RegionDef, regionOf func(operatorID string) int) []pipeline.Destination {
	var destinations []pipeline.Destination
	for _, c := range f.OutboundConnections(def.Last().ID()) {
		destinations = append(destinations, pipeline.Destination{
			RegionID:    regionOf(c.To.OperatorID),
			PortMapping: pipeline.PortMapping{FromPort: c.From.PortIndex, ToPort: c.To.PortIndex},
		})
	}
	return destinations
}
