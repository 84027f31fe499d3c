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

//go:build !release

package testutils

import (
	"sync"

	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

// CountKey is the KV store key under which RecordingOperator counts the tuples it received.
const CountKey = "count"

type RecordedInvocation struct {
	Reason       operator.InvocationReason
	PartitionKey tuple.PartitionKey
	Input        [][]*tuple.Tuple
}

func (r RecordedInvocation) TupleCount() int {
	count := 0
	for _, port := range r.Input {
		count += len(port)
	}
	return count
}

// RecordingOperator forwards its input to the output port with the same index, or to the last output port if
// it has fewer outputs than inputs. It records every invocation and, if it has a KV store, counts the tuples it
// received under CountKey.
type RecordingOperator struct {
	strategy     operator.SchedulingStrategy
	onInvoke     func(ctx operator.InvocationContext)
	lock         sync.Mutex
	replicaIndex int
	initialised  bool
	invocations  []RecordedInvocation
}

// RecordingFactory returns a factory of recording operators with the given initial strategy. onInvoke, if not
// nil, is called at the end of every invocation.
func RecordingFactory(strategy operator.SchedulingStrategy, onInvoke func(ctx operator.InvocationContext)) operator.Factory {
	return func() operator.Operator {
		return &RecordingOperator{strategy: strategy, onInvoke: onInvoke}
	}
}

func (r *RecordingOperator) Init(ctx operator.InitContext) (operator.SchedulingStrategy, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.replicaIndex = ctx.ReplicaIndex()
	r.initialised = true
	if r.strategy == nil {
		return operator.ScheduleWhenAvailable{}, nil
	}
	return r.strategy, nil
}

func (r *RecordingOperator) Invoke(ctx operator.InvocationContext) {
	input := ctx.Input()
	output := ctx.Output()
	recorded := RecordedInvocation{
		Reason:       ctx.Reason(),
		PartitionKey: ctx.PartitionKey(),
		Input:        make([][]*tuple.Tuple, input.PortCount()),
	}
	for i := 0; i < input.PortCount(); i++ {
		tuples := input.Get(i)
		recorded.Input[i] = append([]*tuple.Tuple(nil), tuples...)
		if output.PortCount() > 0 {
			output.AddAll(min(i, output.PortCount()-1), tuples)
		}
	}
	if kv := ctx.KVStore(); kv != nil {
		kv.Set(CountKey, kv.GetOrDefault(CountKey, 0).(int)+input.TotalCount())
	}
	r.lock.Lock()
	r.invocations = append(r.invocations, recorded)
	r.lock.Unlock()
	if r.onInvoke != nil {
		r.onInvoke(ctx)
	}
}

func (r *RecordingOperator) IsInitialised() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.initialised
}

func (r *RecordingOperator) ReplicaIndex() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.replicaIndex
}

func (r *RecordingOperator) Invocations() []RecordedInvocation {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]RecordedInvocation(nil), r.invocations...)
}

func (r *RecordingOperator) Reasons() []operator.InvocationReason {
	r.lock.Lock()
	defer r.lock.Unlock()
	reasons := make([]operator.InvocationReason, len(r.invocations))
	for i, inv := range r.invocations {
		reasons[i] = inv.Reason
	}
	return reasons
}

// Received returns all tuples received on portIndex in order.
func (r *RecordingOperator) Received(portIndex int) []*tuple.Tuple {
	r.lock.Lock()
	defer r.lock.Unlock()
	var tuples []*tuple.Tuple
	for _, inv := range r.invocations {
		if portIndex < len(inv.Input) {
			tuples = append(tuples, inv.Input[portIndex]...)
		}
	}
	return tuples
}

// ReceivedCount returns the number of tuples received on all ports.
func (r *RecordingOperator) ReceivedCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	count := 0
	for _, inv := range r.invocations {
		count += inv.TupleCount()
	}
	return count
}

// CreateTuples creates count tuples with an "id" field running from start.
func CreateTuples(start int, count int) []*tuple.Tuple {
	tuples := make([]*tuple.Tuple, count)
	for i := range tuples {
		tuples[i] = tuple.Of("id", start+i)
	}
	return tuples
}

// IDs returns the "id" field of each tuple.
func IDs(tuples []*tuple.Tuple) []int {
	ids := make([]int, len(tuples))
	for i, t := range tuples {
		ids[i] = t.GetInt("id")
	}
	return ids
}
