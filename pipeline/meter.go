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

package pipeline

import (
	"sync/atomic"

	"github.com/spirit-labs/streamflow/tuple"
)

// Meter samples what a pipeline replica is doing. Every tickMask + 1 invocations of the pipeline the meter
// records which operator is currently invoked, so a sampler reading CurrentlyInvoked from another goroutine
// sees the operators in proportion to the time spent in them. It also counts the tuples entering the head
// operator.
type Meter struct {
	id             PipelineReplicaID
	idString       string
	headOperatorID string
	tickMask       int64
	count          int64
	ticked         bool
	current        atomic.Pointer[string]
	inbound        []atomic.Int64
}

func NewMeter(id PipelineReplicaID, headOperatorID string, inputPortCount int, tickMask int64) *Meter {
	return &Meter{
		id:             id,
		idString:       id.String(),
		headOperatorID: headOperatorID,
		tickMask:       tickMask,
		inbound:        make([]atomic.Int64, inputPortCount),
	}
}

func (m *Meter) PipelineReplicaID() PipelineReplicaID {
	return m.id
}

func (m *Meter) HeadOperatorID() string {
	return m.headOperatorID
}

// TryTick is called by the pipeline replica before each invocation of its operators.
func (m *Meter) TryTick() {
	if m.ticked {
		m.current.Store(nil)
	}
	m.count++
	m.ticked = m.count&m.tickMask == 0
	if m.ticked {
		m.current.Store(&m.idString)
	}
}

func (m *Meter) IsTicked() bool {
	return m.ticked
}

func (m *Meter) OnInvocationStart(operatorID *string) {
	if m.ticked {
		m.current.Store(operatorID)
	}
}

func (m *Meter) OnInvocationComplete() {
	if m.ticked {
		m.current.Store(&m.idString)
	}
}

// CurrentlyInvoked returns the operator being invoked during the last sampled invocation, the pipeline
// replica id between operator invocations, or "" if the current invocation is not sampled.
func (m *Meter) CurrentlyInvoked() string {
	if current := m.current.Load(); current != nil {
		return *current
	}
	return ""
}

// Count adds the input of an invocation of operatorID to the inbound throughput if it is the head operator.
func (m *Meter) Count(operatorID string, tuples *tuple.Tuples) {
	if operatorID != m.headOperatorID {
		return
	}
	for i := range m.inbound {
		if i < tuples.PortCount() {
			m.inbound[i].Add(int64(tuples.TupleCount(i)))
		}
	}
}

// InboundThroughput returns the number of tuples the head operator received per port.
func (m *Meter) InboundThroughput() []int64 {
	counts := make([]int64, len(m.inbound))
	for i := range m.inbound {
		counts[i] = m.inbound[i].Load()
	}
	return counts
}
