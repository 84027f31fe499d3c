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

package tuple

import "fmt"

// Tuples is a batch of tuples indexed by port.
type Tuples struct {
	ports [][]*Tuple
}

func NewTuples(portCount int) *Tuples {
	return &Tuples{ports: make([][]*Tuple, portCount)}
}

func (t *Tuples) PortCount() int {
	return len(t.ports)
}

func (t *Tuples) Add(portIndex int, tuples ...*Tuple) {
	t.ports[portIndex] = append(t.ports[portIndex], tuples...)
}

func (t *Tuples) AddAll(portIndex int, tuples []*Tuple) {
	t.ports[portIndex] = append(t.ports[portIndex], tuples...)
}

func (t *Tuples) Get(portIndex int) []*Tuple {
	return t.ports[portIndex]
}

func (t *Tuples) GetTuple(portIndex int, index int) *Tuple {
	return t.ports[portIndex][index]
}

func (t *Tuples) TupleCount(portIndex int) int {
	return len(t.ports[portIndex])
}

func (t *Tuples) TotalCount() int {
	total := 0
	for _, p := range t.ports {
		total += len(p)
	}
	return total
}

func (t *Tuples) IsEmpty() bool {
	for _, p := range t.ports {
		if len(p) > 0 {
			return false
		}
	}
	return true
}

func (t *Tuples) NonEmptyPortCount() int {
	count := 0
	for _, p := range t.ports {
		if len(p) > 0 {
			count++
		}
	}
	return count
}

// Clear empties all ports keeping the allocated capacity.
func (t *Tuples) Clear() {
	for i := range t.ports {
		for j := range t.ports[i] {
			t.ports[i][j] = nil
		}
		t.ports[i] = t.ports[i][:0]
	}
}

func (t *Tuples) String() string {
	return fmt.Sprintf("Tuples%v", t.ports)
}

// Supplier supplies the Tuples an operator replica writes its output to.
type Supplier interface {
	Get() *Tuples
}

// CachedSupplier hands out the same Tuples on every call, cleared. It is used when the output is consumed
// before the next invocation.
type CachedSupplier struct {
	tuples *Tuples
}

func NewCachedSupplier(portCount int) *CachedSupplier {
	return &CachedSupplier{tuples: NewTuples(portCount)}
}

func (c *CachedSupplier) Get() *Tuples {
	c.tuples.Clear()
	return c.tuples
}

// NonCachedSupplier hands out a new Tuples on every call.
type NonCachedSupplier struct {
	portCount int
}

func NewNonCachedSupplier(portCount int) *NonCachedSupplier {
	return &NonCachedSupplier{portCount: portCount}
}

func (n *NonCachedSupplier) Get() *Tuples {
	return NewTuples(n.portCount)
}
