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

package flow

import (
	"fmt"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
)

// OperatorDef is the immutable definition of an operator in a flow.
type OperatorDef struct {
	id                  string
	operatorType        operator.Type
	inputPortCount      int
	outputPortCount     int
	schema              OperatorSchema
	partitionFieldNames []string
	config              operator.Config
	factory             operator.Factory
}

func (o *OperatorDef) ID() string {
	return o.id
}

func (o *OperatorDef) Type() operator.Type {
	return o.operatorType
}

func (o *OperatorDef) InputPortCount() int {
	return o.inputPortCount
}

func (o *OperatorDef) OutputPortCount() int {
	return o.outputPortCount
}

func (o *OperatorDef) Schema() OperatorSchema {
	return o.schema
}

func (o *OperatorDef) InputSchema(portIndex int) PortSchema {
	return o.schema.Inputs[portIndex]
}

func (o *OperatorDef) OutputSchema(portIndex int) PortSchema {
	return o.schema.Outputs[portIndex]
}

func (o *OperatorDef) PartitionFieldNames() []string {
	return o.partitionFieldNames
}

func (o *OperatorDef) Config() operator.Config {
	return o.config
}

// CreateOperator creates a new operator instance.
func (o *OperatorDef) CreateOperator() operator.Operator {
	return o.factory()
}

func (o *OperatorDef) String() string {
	return fmt.Sprintf("OperatorDef{id=%s, type=%s, inputPorts=%d, outputPorts=%d, partitionFields=%v}", o.id,
		o.operatorType, o.inputPortCount, o.outputPortCount, o.partitionFieldNames)
}

type OperatorDefBuilder struct {
	def       OperatorDef
	inputSet  map[int]PortSchema
	outputSet map[int]PortSchema
}

func NewOperatorDefBuilder(id string, operatorType operator.Type, factory operator.Factory) *OperatorDefBuilder {
	return &OperatorDefBuilder{
		def: OperatorDef{
			id:              id,
			operatorType:    operatorType,
			inputPortCount:  1,
			outputPortCount: 1,
			factory:         factory,
			config:          operator.Config{},
		},
		inputSet:  map[int]PortSchema{},
		outputSet: map[int]PortSchema{},
	}
}

func (b *OperatorDefBuilder) SetInputPortCount(count int) *OperatorDefBuilder {
	b.def.inputPortCount = count
	return b
}

func (b *OperatorDefBuilder) SetOutputPortCount(count int) *OperatorDefBuilder {
	b.def.outputPortCount = count
	return b
}

func (b *OperatorDefBuilder) SetPartitionFieldNames(names ...string) *OperatorDefBuilder {
	b.def.partitionFieldNames = names
	return b
}

func (b *OperatorDefBuilder) SetInputSchema(portIndex int, schema PortSchema) *OperatorDefBuilder {
	b.inputSet[portIndex] = schema
	return b
}

func (b *OperatorDefBuilder) SetOutputSchema(portIndex int, schema PortSchema) *OperatorDefBuilder {
	b.outputSet[portIndex] = schema
	return b
}

func (b *OperatorDefBuilder) SetConfig(config operator.Config) *OperatorDefBuilder {
	b.def.config = config.Copy()
	return b
}

func (b *OperatorDefBuilder) Build() (*OperatorDef, error) {
	d := b.def
	if d.id == "" {
		return nil, errors.NewInvalidFlowErrorf("operator id must not be empty")
	}
	if d.factory == nil {
		return nil, errors.NewInvalidFlowErrorf("operator %s has no factory", d.id)
	}
	if d.inputPortCount < 0 || d.outputPortCount < 0 {
		return nil, errors.NewInvalidFlowErrorf("operator %s has a negative port count", d.id)
	}
	if d.operatorType == operator.PartitionedStateful {
		if len(d.partitionFieldNames) == 0 {
			return nil, errors.NewInvalidFlowErrorf("partitioned stateful operator %s has no partition fields", d.id)
		}
		if d.inputPortCount == 0 {
			return nil, errors.NewInvalidFlowErrorf("partitioned stateful operator %s has no input ports", d.id)
		}
	} else if len(d.partitionFieldNames) > 0 {
		return nil, errors.NewInvalidFlowErrorf("operator %s of type %s cannot have partition fields", d.id, d.operatorType)
	}
	schema, err := b.buildSchema()
	if err != nil {
		return nil, err
	}
	d.schema = schema
	if d.operatorType == operator.PartitionedStateful {
		for i, in := range schema.Inputs {
			if !in.ContainsAll(d.partitionFieldNames) {
				for _, name := range d.partitionFieldNames {
					if _, ok := in.Field(name); !ok {
						in.Fields = append(in.Fields, Field{Name: name, Type: AnyType})
					}
				}
				schema.Inputs[i] = in
			}
		}
	}
	names := make([]string, len(d.partitionFieldNames))
	copy(names, d.partitionFieldNames)
	d.partitionFieldNames = names
	return &d, nil
}

func (b *OperatorDefBuilder) buildSchema() (OperatorSchema, error) {
	schema := OperatorSchema{
		Inputs:  make([]PortSchema, b.def.inputPortCount),
		Outputs: make([]PortSchema, b.def.outputPortCount),
	}
	for port, s := range b.inputSet {
		if port < 0 || port >= b.def.inputPortCount {
			return OperatorSchema{}, errors.NewInvalidFlowErrorf("operator %s has no input port %d", b.def.id, port)
		}
		schema.Inputs[port] = s
	}
	for port, s := range b.outputSet {
		if port < 0 || port >= b.def.outputPortCount {
			return OperatorSchema{}, errors.NewInvalidFlowErrorf("operator %s has no output port %d", b.def.id, port)
		}
		schema.Outputs[port] = s
	}
	return schema, nil
}
