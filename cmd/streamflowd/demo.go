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

package main

import (
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/operators"
	"github.com/spirit-labs/streamflow/tuple"
)

type demoConfig struct {
	Tuples int `help:"Number of tuples the demo beacon emits, 0 emits forever" default:"0"`
	Batch  int `help:"Number of tuples the demo beacon emits per invocation" default:"100"`
	Keys   int `help:"Number of distinct partition keys of the demo tuples" default:"64"`
	Window int `help:"Number of tuples per key reduced into one window" default:"100"`
}

func (d *demoConfig) validate() error {
	if d.Tuples < 0 {
		return errors.NewInvalidConfigurationError("demo-tuples must be >= 0")
	}
	if d.Batch < 1 {
		return errors.NewInvalidConfigurationError("demo-batch must be > 0")
	}
	if d.Keys < 1 {
		return errors.NewInvalidConfigurationError("demo-keys must be > 0")
	}
	if d.Window < 1 {
		return errors.NewInvalidConfigurationError("demo-window must be > 0")
	}
	return nil
}

// demoFlow builds beacon -> even -> scale -> tag -> window -> collector. The stateless operators form one region
// which can be split and merged from the shell, and the window reducer region can be rebalanced.
func demoFlow(cfg *demoConfig) (*flow.FlowDef, *operators.Collection, error) {
	collection := operators.NewCollection()
	builders := []*flow.OperatorDefBuilder{
		flow.NewOperatorDefBuilder("beacon", operator.Stateful, operators.NewBeacon).
			SetInputPortCount(0).
			SetConfig(operator.Config{
				operators.BeaconCountKey: cfg.Tuples,
				operators.BeaconBatchKey: cfg.Batch,
				operators.BeaconKeysKey:  cfg.Keys,
			}),
		flow.NewOperatorDefBuilder("even", operator.Stateless, operators.FilterFactory(func(t *tuple.Tuple) bool {
			return t.GetInt("id")%2 == 0
		})),
		flow.NewOperatorDefBuilder("scale", operator.Stateless, operators.MapperFactory(func(t *tuple.Tuple) *tuple.Tuple {
			return t.Copy().Set("value", t.GetInt("value")*10)
		})),
		flow.NewOperatorDefBuilder("tag", operator.Stateless, operators.MapperFactory(func(t *tuple.Tuple) *tuple.Tuple {
			return t.Copy().Set("source", "beacon")
		})),
		flow.NewOperatorDefBuilder("window", operator.PartitionedStateful, operators.NewWindowReducer).
			SetPartitionFieldNames("key").
			SetConfig(operator.Config{operators.WindowSizeKey: cfg.Window, operators.WindowFieldKey: "value"}),
		flow.NewOperatorDefBuilder("collector", operator.Stateful, operators.CollectorFactory(collection)).
			SetOutputPortCount(0),
	}
	b := flow.NewFlowDefBuilder()
	var previous string
	for _, builder := range builders {
		def, err := builder.Build()
		if err != nil {
			return nil, nil, err
		}
		b.Add(def)
		if previous != "" {
			b.ConnectDefault(previous, def.ID())
		}
		previous = def.ID()
	}
	f, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return f, collection, nil
}
