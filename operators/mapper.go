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

package operators

import (
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

// MapFunc maps an input tuple to an output tuple. Returning nil drops the tuple.
type MapFunc func(t *tuple.Tuple) *tuple.Tuple

// Mapper is a stateless operator applying a MapFunc to every tuple of its single input port. The partition key
// of the input is attached to the output tuple.
type Mapper struct {
	fn MapFunc
}

func MapperFactory(fn MapFunc) operator.Factory {
	return func() operator.Operator {
		return &Mapper{fn: fn}
	}
}

func (m *Mapper) Init(ctx operator.InitContext) (operator.SchedulingStrategy, error) {
	return operator.ScheduleWhenAvailable{}, checkSinglePorts(ctx)
}

func (m *Mapper) Invoke(ctx operator.InvocationContext) {
	output := ctx.Output()
	for _, t := range ctx.Input().Get(0) {
		mapped := m.fn(t)
		if mapped == nil {
			continue
		}
		if mapped != t {
			t.CopyPartitionTo(mapped)
		}
		output.Add(0, mapped)
	}
}

// Filter is a stateless operator forwarding the tuples of its single input port matching a predicate.
type Filter struct {
	predicate func(t *tuple.Tuple) bool
}

func FilterFactory(predicate func(t *tuple.Tuple) bool) operator.Factory {
	return func() operator.Operator {
		return &Filter{predicate: predicate}
	}
}

func (f *Filter) Init(ctx operator.InitContext) (operator.SchedulingStrategy, error) {
	return operator.ScheduleWhenAvailable{}, checkSinglePorts(ctx)
}

func (f *Filter) Invoke(ctx operator.InvocationContext) {
	output := ctx.Output()
	for _, t := range ctx.Input().Get(0) {
		if f.predicate(t) {
			output.Add(0, t)
		}
	}
}

func checkSinglePorts(ctx operator.InitContext) error {
	if ctx.InputPortCount() != 1 || ctx.OutputPortCount() != 1 {
		return errors.NewInvalidFlowErrorf("operator %s must have one input and one output port",
			ctx.OperatorID())
	}
	return nil
}
