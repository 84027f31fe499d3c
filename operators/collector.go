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
	"sync"

	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
)

// Collection receives the tuples of every replica of a collector. It can be read from any goroutine.
type Collection struct {
	lock      sync.Mutex
	tuples    []*tuple.Tuple
	completed bool
}

func NewCollection() *Collection {
	return &Collection{}
}

func (c *Collection) add(tuples []*tuple.Tuple) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tuples = append(c.tuples, tuples...)
}

func (c *Collection) complete() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.completed = true
}

func (c *Collection) Tuples() []*tuple.Tuple {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*tuple.Tuple(nil), c.tuples...)
}

func (c *Collection) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.tuples)
}

// IsCompleted is true once the input of a collector was closed.
func (c *Collection) IsCompleted() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.completed
}

// Collector is a sink adding the tuples of all its input ports to a Collection.
type Collector struct {
	collection *Collection
}

func CollectorFactory(collection *Collection) operator.Factory {
	return func() operator.Operator {
		return &Collector{collection: collection}
	}
}

func (c *Collector) Init(operator.InitContext) (operator.SchedulingStrategy, error) {
	return operator.ScheduleWhenAvailable{}, nil
}

func (c *Collector) Invoke(ctx operator.InvocationContext) {
	input := ctx.Input()
	for i := 0; i < input.PortCount(); i++ {
		if tuples := input.Get(i); len(tuples) > 0 {
			c.collection.add(tuples)
		}
	}
	if ctx.Reason() == operator.InputPortClosed {
		for i := 0; i < input.PortCount(); i++ {
			if ctx.IsInputPortOpen(i) {
				return
			}
		}
		c.collection.complete()
	}
}
