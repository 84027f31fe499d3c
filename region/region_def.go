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
	"strings"

	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
)

// RegionDef is a run of operators of a flow which share the same state locality. Operators of a
// PARTITIONED_STATEFUL region all have the same partition fields and a STATEFUL region has exactly one operator.
type RegionDef struct {
	id                  int
	regionType          operator.Type
	partitionFieldNames []string
	operators           []*flow.OperatorDef
}

func NewRegionDef(id int, regionType operator.Type, partitionFieldNames []string, operators []*flow.OperatorDef) *RegionDef {
	if len(operators) == 0 {
		panic(fmt.Sprintf("region %d has no operators", id))
	}
	if regionType == operator.Stateful && len(operators) != 1 {
		panic(fmt.Sprintf("stateful region %d has %d operators", id, len(operators)))
	}
	if (regionType == operator.PartitionedStateful) != (len(partitionFieldNames) > 0) {
		panic(fmt.Sprintf("region %d of type %s has partition fields %v", id, regionType, partitionFieldNames))
	}
	return &RegionDef{
		id:                  id,
		regionType:          regionType,
		partitionFieldNames: append([]string(nil), partitionFieldNames...),
		operators:           append([]*flow.OperatorDef(nil), operators...),
	}
}

func (r *RegionDef) ID() int {
	return r.id
}

func (r *RegionDef) Type() operator.Type {
	return r.regionType
}

func (r *RegionDef) IsPartitioned() bool {
	return r.regionType == operator.PartitionedStateful
}

func (r *RegionDef) PartitionFieldNames() []string {
	return r.partitionFieldNames
}

func (r *RegionDef) Operators() []*flow.OperatorDef {
	return r.operators
}

func (r *RegionDef) Operator(index int) *flow.OperatorDef {
	return r.operators[index]
}

func (r *RegionDef) OperatorCount() int {
	return len(r.operators)
}

func (r *RegionDef) First() *flow.OperatorDef {
	return r.operators[0]
}

func (r *RegionDef) Last() *flow.OperatorDef {
	return r.operators[len(r.operators)-1]
}

// OperatorIDs returns the ids of the operators in region order.
func (r *RegionDef) OperatorIDs() []string {
	ids := make([]string, len(r.operators))
	for i, op := range r.operators {
		ids[i] = op.ID()
	}
	return ids
}

func (r *RegionDef) String() string {
	return fmt.Sprintf("RegionDef{id=%d, type=%s, partitionFields=%v, operators=[%s]}", r.id, r.regionType,
		r.partitionFieldNames, strings.Join(r.OperatorIDs(), ", "))
}
