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
	"fmt"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

const (
	BeaconCountKey = "count"
	BeaconBatchKey = "batch"
	BeaconKeysKey  = "keys"

	defaultBeaconBatch = 10
	defaultBeaconKeys  = 10
)

// Beacon is a source emitting tuples with an increasing "id", a "key" cycling over a fixed number of keys and a
// "value" equal to the id. It emits "count" tuples, "batch" per invocation, and then completes. A count of 0
// emits forever.
type Beacon struct {
	count int
	batch int
	keys  int
	next  int
}

func NewBeacon() operator.Operator {
	return &Beacon{}
}

func (b *Beacon) Init(ctx operator.InitContext) (operator.SchedulingStrategy, error) {
	if ctx.InputPortCount() != 0 {
		return nil, errors.NewInvalidFlowErrorf("beacon %s must not have input ports", ctx.OperatorID())
	}
	if ctx.OutputPortCount() != 1 {
		return nil, errors.NewInvalidFlowErrorf("beacon %s must have one output port", ctx.OperatorID())
	}
	cfg := ctx.Config()
	b.count = cfg.GetInt(BeaconCountKey, 0)
	b.batch = cfg.GetInt(BeaconBatchKey, defaultBeaconBatch)
	b.keys = cfg.GetInt(BeaconKeysKey, defaultBeaconKeys)
	if b.count < 0 || b.batch < 1 || b.keys < 1 {
		return nil, errors.NewInvalidFlowErrorf("beacon %s has invalid config %v", ctx.OperatorID(), cfg)
	}
	return operator.ScheduleWhenAvailable{}, nil
}

func (b *Beacon) Invoke(ctx operator.InvocationContext) {
	if ctx.Reason() != operator.Success {
		return
	}
	n := b.batch
	if b.count > 0 {
		n = min(n, b.count-b.next)
	}
	output := ctx.Output()
	for i := 0; i < n; i++ {
		id := b.next + i
		output.Add(0, tuple.Of("id", id, "key", fmt.Sprintf("k%d", id%b.keys), "value", id))
	}
	b.next += n
	if b.count > 0 && b.next >= b.count {
		ctx.SetNextSchedulingStrategy(operator.ScheduleNever{})
	}
}

// Emitted returns the number of tuples emitted so far.
func (b *Beacon) Emitted() int {
	return b.next
}
