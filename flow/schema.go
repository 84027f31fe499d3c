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

import "fmt"

type FieldType int

const (
	AnyType FieldType = iota
	IntType
	FloatType
	StringType
	BoolType
)

func (f FieldType) String() string {
	switch f {
	case AnyType:
		return "any"
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case StringType:
		return "string"
	case BoolType:
		return "bool"
	default:
		return fmt.Sprintf("FieldType(%d)", int(f))
	}
}

type Field struct {
	Name string
	Type FieldType
}

// PortSchema lists the fields guaranteed to be present on the tuples of a port.
type PortSchema struct {
	Fields []Field
}

func NewPortSchema(fields ...Field) PortSchema {
	return PortSchema{Fields: fields}
}

func (p PortSchema) Field(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (p PortSchema) ContainsAll(names []string) bool {
	for _, name := range names {
		if _, ok := p.Field(name); !ok {
			return false
		}
	}
	return true
}

// OperatorSchema holds the runtime schema of each input and output port of an operator.
type OperatorSchema struct {
	Inputs  []PortSchema
	Outputs []PortSchema
}
