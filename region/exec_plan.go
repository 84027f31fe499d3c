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

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
)

// ExecPlan tells how a region is run: with how many replicas and cut into which pipelines. A pipeline is
// identified by the index of its first operator in the region. Plans are immutable, a transformation produces a
// new plan with the next flow version.
type ExecPlan struct {
	def          *RegionDef
	replicaCount int
	startIndices *treeset.Set
	version      int
}

// NewExecPlan validates and creates a plan with version 0.
func NewExecPlan(def *RegionDef, replicaCount int, pipelineStartIndices []int) (*ExecPlan, error) {
	if replicaCount < 1 {
		return nil, errors.NewInvalidConfigurationError(fmt.Sprintf("region %d replica count must be > 0", def.ID()))
	}
	if replicaCount > 1 && !def.IsPartitioned() {
		return nil, errors.NewInvalidConfigurationError(fmt.Sprintf("%s region %d cannot have %d replicas",
			def.Type(), def.ID(), replicaCount))
	}
	if len(pipelineStartIndices) == 0 || pipelineStartIndices[0] != 0 {
		return nil, errors.NewInvalidConfigurationError(fmt.Sprintf(
			"pipeline start indices %v of region %d must start with 0", pipelineStartIndices, def.ID()))
	}
	for i, index := range pipelineStartIndices {
		if index >= def.OperatorCount() {
			return nil, errors.NewInvalidConfigurationError(fmt.Sprintf(
				"pipeline start index %d of region %d is out of range", index, def.ID()))
		}
		if i > 0 && index <= pipelineStartIndices[i-1] {
			return nil, errors.NewInvalidConfigurationError(fmt.Sprintf(
				"pipeline start indices %v of region %d must be strictly increasing", pipelineStartIndices, def.ID()))
		}
	}
	return &ExecPlan{def: def, replicaCount: replicaCount, startIndices: newIndexSet(pipelineStartIndices)}, nil
}

// NewDefaultExecPlan runs the region as a single pipeline.
func NewDefaultExecPlan(def *RegionDef, replicaCount int) (*ExecPlan, error) {
	return NewExecPlan(def, replicaCount, []int{0})
}

func newIndexSet(indices []int) *treeset.Set {
	set := treeset.NewWithIntComparator()
	for _, index := range indices {
		set.Add(index)
	}
	return set
}

func (e *ExecPlan) RegionDef() *RegionDef {
	return e.def
}

func (e *ExecPlan) RegionID() int {
	return e.def.ID()
}

func (e *ExecPlan) ReplicaCount() int {
	return e.replicaCount
}

func (e *ExecPlan) Version() int {
	return e.version
}

func (e *ExecPlan) PipelineCount() int {
	return e.startIndices.Size()
}

func (e *ExecPlan) PipelineStartIndices() []int {
	values := e.startIndices.Values()
	indices := make([]int, len(values))
	for i, v := range values {
		indices[i] = v.(int)
	}
	return indices
}

func (e *ExecPlan) IsPipelineStartIndex(index int) bool {
	return e.startIndices.Contains(index)
}

// PipelineIndex returns the position of the pipeline starting at startIndex.
func (e *ExecPlan) PipelineIndex(startIndex int) (int, bool) {
	index := e.startIndices.Values()
	for i, v := range index {
		if v.(int) == startIndex {
			return i, true
		}
	}
	return -1, false
}

// PipelineEndIndex returns the index after the last operator of the pipeline starting at startIndex.
func (e *ExecPlan) PipelineEndIndex(startIndex int) int {
	it := e.startIndices.Iterator()
	for it.Next() {
		if it.Value().(int) > startIndex {
			return it.Value().(int)
		}
	}
	return e.def.OperatorCount()
}

// PipelineOperators returns the operators of the pipeline starting at startIndex.
func (e *ExecPlan) PipelineOperators(startIndex int) []*flow.OperatorDef {
	return e.def.Operators()[startIndex:e.PipelineEndIndex(startIndex)]
}

// withPipelineStartIndices returns a plan with the next version and the given start indices.
func (e *ExecPlan) withPipelineStartIndices(indices []int) *ExecPlan {
	return &ExecPlan{def: e.def, replicaCount: e.replicaCount, startIndices: newIndexSet(indices), version: e.version + 1}
}

// withReplicaCount returns a plan with the next version and the given replica count.
func (e *ExecPlan) withReplicaCount(replicaCount int) *ExecPlan {
	return &ExecPlan{def: e.def, replicaCount: replicaCount, startIndices: e.startIndices, version: e.version + 1}
}

func (e *ExecPlan) String() string {
	return fmt.Sprintf("ExecPlan{region=%d, replicas=%d, pipelines=%v, version=%d}", e.def.ID(), e.replicaCount,
		e.PipelineStartIndices(), e.version)
}
