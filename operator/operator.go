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

package operator

import (
	"fmt"

	"github.com/spirit-labs/streamflow/kvstore"
	"github.com/spirit-labs/streamflow/tuple"
)

type Type int

const (
	Stateless Type = iota
	Stateful
	PartitionedStateful
)

func (t Type) String() string {
	switch t {
	case Stateless:
		return "STATELESS"
	case Stateful:
		return "STATEFUL"
	case PartitionedStateful:
		return "PARTITIONED_STATEFUL"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Operator is a user supplied processing step. Init is called once per replica before the first
// invocation, Invoke is always called from the worker of the pipeline replica the operator belongs to.
type Operator interface {
	Init(ctx InitContext) (SchedulingStrategy, error)
	Invoke(ctx InvocationContext)
}

// Factory creates a new operator instance for each replica.
type Factory func() Operator

type InvocationReason int

const (
	Success InvocationReason = iota
	InputPortClosed
	Shutdown
)

func (r InvocationReason) IsSuccessful() bool {
	return r == Success
}

func (r InvocationReason) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case InputPortClosed:
		return "INPUT_PORT_CLOSED"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("InvocationReason(%d)", int(r))
	}
}

type InitContext interface {
	OperatorID() string
	ReplicaIndex() int
	InputPortCount() int
	OutputPortCount() int
	PartitionFieldNames() []string
	Config() Config
}

type InvocationContext interface {
	Reason() InvocationReason
	Input() *tuple.Tuples
	Output() *tuple.Tuples
	PartitionKey() tuple.PartitionKey
	// KVStore is nil for stateless operators
	KVStore() kvstore.KVStore
	IsInputPortOpen(portIndex int) bool
	IsInputPortClosed(portIndex int) bool
	SetNextSchedulingStrategy(strategy SchedulingStrategy)
}

type InitCtx struct {
	ID              string
	Replica         int
	InputPorts      int
	OutputPorts     int
	PartitionFields []string
	Cfg             Config
}

func (i *InitCtx) OperatorID() string            { return i.ID }
func (i *InitCtx) ReplicaIndex() int             { return i.Replica }
func (i *InitCtx) InputPortCount() int           { return i.InputPorts }
func (i *InitCtx) OutputPortCount() int          { return i.OutputPorts }
func (i *InitCtx) PartitionFieldNames() []string { return i.PartitionFields }
func (i *InitCtx) Config() Config                { return i.Cfg }

// InvocationCtx is reused by an operator replica across invocations.
type InvocationCtx struct {
	reason         InvocationReason
	input          *tuple.Tuples
	output         *tuple.Tuples
	partitionKey   tuple.PartitionKey
	kvStore        kvstore.KVStore
	upstreamOpen   []bool
	nextStrategy   SchedulingStrategy
	strategyChange bool
}

func (c *InvocationCtx) SetInvocationParameters(reason InvocationReason, input *tuple.Tuples, output *tuple.Tuples,
	key tuple.PartitionKey, kvStore kvstore.KVStore) {
	c.reason = reason
	c.input = input
	c.output = output
	c.partitionKey = key
	c.kvStore = kvStore
	c.nextStrategy = nil
	c.strategyChange = false
}

func (c *InvocationCtx) SetUpstreamConnectionStatuses(open []bool) {
	c.upstreamOpen = open
}

func (c *InvocationCtx) Reason() InvocationReason         { return c.reason }
func (c *InvocationCtx) Input() *tuple.Tuples             { return c.input }
func (c *InvocationCtx) Output() *tuple.Tuples            { return c.output }
func (c *InvocationCtx) PartitionKey() tuple.PartitionKey { return c.partitionKey }
func (c *InvocationCtx) KVStore() kvstore.KVStore         { return c.kvStore }

func (c *InvocationCtx) IsInputPortOpen(portIndex int) bool {
	return c.upstreamOpen[portIndex]
}

func (c *InvocationCtx) IsInputPortClosed(portIndex int) bool {
	return !c.upstreamOpen[portIndex]
}

func (c *InvocationCtx) SetNextSchedulingStrategy(strategy SchedulingStrategy) {
	c.nextStrategy = strategy
	c.strategyChange = true
}

// NextSchedulingStrategy returns the strategy set during the last invocation, if any.
func (c *InvocationCtx) NextSchedulingStrategy() (SchedulingStrategy, bool) {
	return c.nextStrategy, c.strategyChange
}
