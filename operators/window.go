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

const (
	WindowSizeKey  = "window"
	WindowFieldKey = "field"

	windowCountKey = "window.count"
	windowSumKey   = "window.sum"
)

// WindowReducer is a partitioned stateful operator summing an int field over tumbling windows of a fixed number
// of tuples per partition key. When a window is full it emits a tuple with the partition fields of the last
// tuple of the window, the "count" and the "sum". The open window of each key is kept in the KV store so it
// moves with its partition when the region is rebalanced. Open windows are dropped when the input closes.
type WindowReducer struct {
	size            int
	field           string
	partitionFields []string
}

func NewWindowReducer() operator.Operator {
	return &WindowReducer{}
}

func (w *WindowReducer) Init(ctx operator.InitContext) (operator.SchedulingStrategy, error) {
	if err := checkSinglePorts(ctx); err != nil {
		return nil, err
	}
	cfg := ctx.Config()
	w.size = cfg.GetInt(WindowSizeKey, 0)
	if w.size < 1 {
		return nil, errors.NewInvalidFlowErrorf("window reducer %s needs a positive %s", ctx.OperatorID(),
			WindowSizeKey)
	}
	field, ok := cfg.GetOrDefault(WindowFieldKey, "value").(string)
	if !ok {
		return nil, errors.NewInvalidFlowErrorf("window reducer %s has a non string %s", ctx.OperatorID(),
			WindowFieldKey)
	}
	w.field = field
	w.partitionFields = ctx.PartitionFieldNames()
	return operator.ScheduleWhenAvailable{}, nil
}

func (w *WindowReducer) Invoke(ctx operator.InvocationContext) {
	kv := ctx.KVStore()
	count := kv.GetOrDefault(windowCountKey, 0).(int)
	sum := kv.GetOrDefault(windowSumKey, 0).(int)
	output := ctx.Output()
	for _, t := range ctx.Input().Get(0) {
		count++
		sum += t.GetInt(w.field)
		if count < w.size {
			continue
		}
		result := tuple.NewTuple()
		for _, f := range w.partitionFields {
			result.Set(f, t.Get(f))
		}
		result.Set("count", count).Set("sum", sum)
		t.CopyPartitionTo(result)
		output.Add(0, result)
		count, sum = 0, 0
	}
	if count == 0 {
		kv.Remove(windowCountKey)
		kv.Remove(windowSumKey)
		return
	}
	kv.Set(windowCountKey, count)
	kv.Set(windowSumKey, sum)
}
