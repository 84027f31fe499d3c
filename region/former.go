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
	"slices"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
)

// FormRegions splits the operators of a flow into regions. The flow is first cut into operator sequences:
// chains starting at an operator with no input ports or with several upstream operators, which continue while
// the current operator has a single downstream operator fed only by it. Each sequence is then cut into regions
// by operator type. Region ids are assigned from 0 in the order regions are formed.
func FormRegions(f *flow.FlowDef) []*RegionDef {
	var regions []*RegionDef
	for _, sequence := range operatorSequences(f) {
		regions = append(regions, regionsOfSequence(sequence, len(regions))...)
	}
	return regions
}

func operatorSequences(f *flow.FlowDef) [][]*flow.OperatorDef {
	var sequences [][]*flow.OperatorDef
	processed := map[string]struct{}{}
	starts := linkedhashset.New()
	for _, op := range f.OperatorsWithNoInputPorts() {
		starts.Add(op.ID())
	}
	for !starts.Empty() {
		id := starts.Values()[0].(string)
		starts.Remove(id)
		processed[id] = struct{}{}
		op, _ := f.Operator(id)
		regionLog.Debugf("starting operator sequence with %s", id)
		var sequence []*flow.OperatorDef
		for {
			sequence = append(sequence, op)
			downstream := f.DownstreamOperators(op.ID())
			if next := singleDownstream(f, downstream); next != nil {
				op = next
				continue
			}
			for _, d := range downstream {
				if _, ok := processed[d.ID()]; !ok {
					starts.Add(d.ID())
				}
			}
			break
		}
		sequences = append(sequences, sequence)
	}
	return sequences
}

func singleDownstream(f *flow.FlowDef, downstream []*flow.OperatorDef) *flow.OperatorDef {
	if len(downstream) != 1 {
		return nil
	}
	if len(f.InboundConnections(downstream[0].ID())) != 1 {
		return nil
	}
	return downstream[0]
}

type openRegion struct {
	regionType      operator.Type
	partitionFields []string
	operators       []*flow.OperatorDef
}

func regionsOfSequence(sequence []*flow.OperatorDef, nextID int) []*RegionDef {
	var regions []*RegionDef
	var open *openRegion
	flush := func() {
		if open != nil && len(open.operators) > 0 {
			regions = append(regions, NewRegionDef(nextID+len(regions), open.regionType, open.partitionFields,
				open.operators))
		}
		open = nil
	}
	for _, op := range sequence {
		switch op.Type() {
		case operator.Stateful:
			flush()
			regions = append(regions, NewRegionDef(nextID+len(regions), operator.Stateful, nil,
				[]*flow.OperatorDef{op}))
		case operator.Stateless:
			if open == nil {
				open = &openRegion{regionType: operator.Stateless}
			}
			open.operators = append(open.operators, op)
		case operator.PartitionedStateful:
			fields := op.PartitionFieldNames()
			switch {
			case open == nil:
				open = &openRegion{regionType: operator.PartitionedStateful, partitionFields: fields,
					operators: []*flow.OperatorDef{op}}
			case open.regionType == operator.PartitionedStateful && slices.Equal(open.partitionFields, fields):
				open.operators = append(open.operators, op)
			case open.regionType == operator.PartitionedStateful:
				flush()
				open = &openRegion{regionType: operator.PartitionedStateful, partitionFields: fields,
					operators: []*flow.OperatorDef{op}}
			default:
				pulled := pullPartitionable(open, fields)
				flush()
				open = &openRegion{regionType: operator.PartitionedStateful, partitionFields: fields,
					operators: append(pulled, op)}
			}
		default:
			panic(fmt.Sprintf("operator %s has invalid type %s", op.ID(), op.Type()))
		}
	}
	flush()
	return regions
}

// pullPartitionable removes the trailing operators of a stateless region which can be partitioned by fields and
// returns them in order.
func pullPartitionable(open *openRegion, fields []string) []*flow.OperatorDef {
	i := len(open.operators)
	for i > 0 && partitionable(open.operators[i-1], fields) {
		i--
	}
	pulled := append([]*flow.OperatorDef(nil), open.operators[i:]...)
	open.operators = open.operators[:i]
	return pulled
}

func partitionable(op *flow.OperatorDef, fields []string) bool {
	return op.InputPortCount() == 1 && op.InputSchema(0).ContainsAll(fields)
}
