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
	"sort"

	"github.com/spirit-labs/streamflow/errors"
)

// Port identifies an input or output port of an operator.
type Port struct {
	OperatorID string
	PortIndex  int
}

func (p Port) String() string {
	return fmt.Sprintf("%s:%d", p.OperatorID, p.PortIndex)
}

// Connection connects an output port to an input port.
type Connection struct {
	From Port
	To   Port
}

// FlowDef is an immutable acyclic graph of operator definitions.
type FlowDef struct {
	operators   map[string]*OperatorDef
	order       []string
	connections []Connection
}

func (f *FlowDef) Operator(id string) (*OperatorDef, bool) {
	o, ok := f.operators[id]
	return o, ok
}

// Operators returns the operator definitions in the order they were added.
func (f *FlowDef) Operators() []*OperatorDef {
	ops := make([]*OperatorDef, len(f.order))
	for i, id := range f.order {
		ops[i] = f.operators[id]
	}
	return ops
}

func (f *FlowDef) Connections() []Connection {
	return f.connections
}

func (f *FlowDef) OperatorsWithNoInputPorts() []*OperatorDef {
	var ops []*OperatorDef
	for _, id := range f.order {
		if op := f.operators[id]; op.InputPortCount() == 0 {
			ops = append(ops, op)
		}
	}
	return ops
}

// OutboundConnections returns the connections leaving the given operator, ordered by output port.
func (f *FlowDef) OutboundConnections(operatorID string) []Connection {
	var conns []Connection
	for _, c := range f.connections {
		if c.From.OperatorID == operatorID {
			conns = append(conns, c)
		}
	}
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].From.PortIndex < conns[j].From.PortIndex
	})
	return conns
}

// InboundConnections returns the connections entering the given operator, ordered by input port.
func (f *FlowDef) InboundConnections(operatorID string) []Connection {
	var conns []Connection
	for _, c := range f.connections {
		if c.To.OperatorID == operatorID {
			conns = append(conns, c)
		}
	}
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].To.PortIndex < conns[j].To.PortIndex
	})
	return conns
}

// DownstreamOperators returns the distinct operators fed by the given operator.
func (f *FlowDef) DownstreamOperators(operatorID string) []*OperatorDef {
	return f.distinct(f.OutboundConnections(operatorID), func(c Connection) string { return c.To.OperatorID })
}

// UpstreamOperators returns the distinct operators feeding the given operator.
func (f *FlowDef) UpstreamOperators(operatorID string) []*OperatorDef {
	return f.distinct(f.InboundConnections(operatorID), func(c Connection) string { return c.From.OperatorID })
}

// UpstreamOperatorsOfPort returns the operators feeding one input port.
func (f *FlowDef) UpstreamOperatorsOfPort(operatorID string, portIndex int) []string {
	var ids []string
	for _, c := range f.InboundConnections(operatorID) {
		if c.To.PortIndex == portIndex {
			ids = append(ids, c.From.OperatorID)
		}
	}
	return ids
}

func (f *FlowDef) distinct(conns []Connection, idOf func(Connection) string) []*OperatorDef {
	seen := map[string]struct{}{}
	var ops []*OperatorDef
	for _, c := range conns {
		id := idOf(c)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ops = append(ops, f.operators[id])
	}
	return ops
}

type FlowDefBuilder struct {
	operators   map[string]*OperatorDef
	order       []string
	connections []Connection
	errs        []error
}

func NewFlowDefBuilder() *FlowDefBuilder {
	return &FlowDefBuilder{operators: map[string]*OperatorDef{}}
}

func (b *FlowDefBuilder) Add(def *OperatorDef) *FlowDefBuilder {
	if _, ok := b.operators[def.ID()]; ok {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("operator %s is already added", def.ID()))
		return b
	}
	b.operators[def.ID()] = def
	b.order = append(b.order, def.ID())
	return b
}

// ConnectDefault connects output port 0 of from to input port 0 of to.
func (b *FlowDefBuilder) ConnectDefault(from string, to string) *FlowDefBuilder {
	return b.Connect(from, 0, to, 0)
}

func (b *FlowDefBuilder) Connect(from string, fromPort int, to string, toPort int) *FlowDefBuilder {
	conn := Connection{From: Port{OperatorID: from, PortIndex: fromPort}, To: Port{OperatorID: to, PortIndex: toPort}}
	fromOp, ok := b.operators[from]
	if !ok {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("unknown operator %s", from))
		return b
	}
	toOp, ok := b.operators[to]
	if !ok {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("unknown operator %s", to))
		return b
	}
	if from == to {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("operator %s cannot be connected to itself", from))
		return b
	}
	if fromPort < 0 || fromPort >= fromOp.OutputPortCount() {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("operator %s has no output port %d", from, fromPort))
		return b
	}
	if toPort < 0 || toPort >= toOp.InputPortCount() {
		b.errs = append(b.errs, errors.NewInvalidFlowErrorf("operator %s has no input port %d", to, toPort))
		return b
	}
	for _, c := range b.connections {
		if c == conn {
			b.errs = append(b.errs, errors.NewInvalidFlowErrorf("duplicate connection %s -> %s", conn.From, conn.To))
			return b
		}
	}
	b.connections = append(b.connections, conn)
	return b
}

func (b *FlowDefBuilder) Build() (*FlowDef, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.operators) == 0 {
		return nil, errors.NewInvalidFlowErrorf("flow has no operators")
	}
	f := &FlowDef{operators: b.operators, order: b.order, connections: b.connections}
	for _, id := range f.order {
		op := f.operators[id]
		for port := 0; port < op.InputPortCount(); port++ {
			if len(f.UpstreamOperatorsOfPort(id, port)) == 0 {
				return nil, errors.NewInvalidFlowErrorf("input port %d of operator %s is not connected", port, id)
			}
		}
	}
	if cycle := f.findCycle(); cycle != "" {
		return nil, errors.NewInvalidFlowErrorf("flow has a cycle through operator %s", cycle)
	}
	b.operators = map[string]*OperatorDef{}
	b.order = nil
	b.connections = nil
	return f, nil
}

func (f *FlowDef) findCycle() string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := map[string]int{}
	var visit func(id string) string
	visit = func(id string) string {
		state[id] = visiting
		for _, down := range f.DownstreamOperators(id) {
			switch state[down.ID()] {
			case visiting:
				return down.ID()
			case unvisited:
				if c := visit(down.ID()); c != "" {
					return c
				}
			}
		}
		state[id] = visited
		return ""
	}
	for _, id := range f.order {
		if state[id] == unvisited {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}
