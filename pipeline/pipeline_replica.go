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
	"github.com/spirit-labs/streamflow/common"
	"github.com/spirit-labs/streamflow/drainer"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// PipelineReplica is a chain of operator replicas invoked one after the other by a single goroutine. Tuples
// enter through the entry queue: the queue of the head operator, or the self queue if the head is
// partitioned, in which case the replica moves them into the head's partitioned queue itself.
type PipelineReplica struct {
	id          PipelineReplicaID
	operators   []*OperatorReplica
	selfQueue   tuplequeue.OperatorTupleQueue
	selfDrainer *drainer.GreedyDrainer
	selfInput   selfInput
	meter       *Meter
	sender      DownstreamSender
	owner       *common.GoroutineOwner
}

func NewPipelineReplica(id PipelineReplicaID, operators []*OperatorReplica, selfQueue tuplequeue.OperatorTupleQueue,
	meter *Meter, sender DownstreamSender, maxDrainBatchSize int) *PipelineReplica {
	if len(operators) == 0 {
		panic("pipeline replica " + id.String() + " has no operators")
	}
	if sender == nil {
		sender = NopSender
	}
	portCount := operators[0].OperatorDef().InputPortCount()
	if _, ok := selfQueue.(*tuplequeue.EmptyOperatorTupleQueue); !ok {
		operators[0].inbox = selfQueue
	}
	return &PipelineReplica{
		id:          id,
		operators:   operators,
		selfQueue:   selfQueue,
		selfDrainer: drainer.NewGreedyDrainer(portCount, maxDrainBatchSize),
		selfInput:   selfInput{tuples: tuple.NewTuples(portCount)},
		meter:       meter,
		sender:      sender,
	}
}

func (p *PipelineReplica) ID() PipelineReplicaID {
	return p.id
}

func (p *PipelineReplica) Operators() []*OperatorReplica {
	return p.operators
}

func (p *PipelineReplica) Operator(index int) *OperatorReplica {
	return p.operators[index]
}

func (p *PipelineReplica) OperatorCount() int {
	return len(p.operators)
}

func (p *PipelineReplica) Head() *OperatorReplica {
	return p.operators[0]
}

func (p *PipelineReplica) Last() *OperatorReplica {
	return p.operators[len(p.operators)-1]
}

func (p *PipelineReplica) SelfQueue() tuplequeue.OperatorTupleQueue {
	return p.selfQueue
}

// EntryQueue is the queue other pipeline replicas send tuples to.
func (p *PipelineReplica) EntryQueue() tuplequeue.OperatorTupleQueue {
	if _, ok := p.selfQueue.(*tuplequeue.EmptyOperatorTupleQueue); ok {
		return p.Head().Queue()
	}
	return p.selfQueue
}

func (p *PipelineReplica) Meter() *Meter {
	return p.meter
}

func (p *PipelineReplica) Sender() DownstreamSender {
	return p.sender
}

// SetOwner makes every later invocation check that it runs on the owner's goroutine.
func (p *PipelineReplica) SetOwner(owner *common.GoroutineOwner) {
	p.owner = owner
}

func (p *PipelineReplica) IsCompleted() bool {
	for _, op := range p.operators {
		if !op.IsCompleted() {
			return false
		}
	}
	return true
}

// Init initialises the operators which are not initialised yet.
func (p *PipelineReplica) Init() error {
	for _, op := range p.operators {
		if op.Status() != OperatorInitial {
			continue
		}
		if err := op.Init(p.id.ReplicaIndex); err != nil {
			return err
		}
	}
	return nil
}

// Invoke runs one cycle of the pipeline: every operator is given the chance to run, in order, and the output of
// the last one is sent downstream. It returns true if any operator produced output.
func (p *PipelineReplica) Invoke() bool {
	if p.owner != nil {
		p.owner.CheckOwner()
	}
	if p.meter != nil {
		p.meter.TryTick()
	}
	p.moveSelfQueue()
	var output *tuple.Tuples
	produced := false
	last := len(p.operators) - 1
	for i, op := range p.operators {
		output = op.Invoke(output)
		if output != nil {
			produced = true
		}
		if i < last {
			op.closeDownstream()
		}
	}
	if output != nil && !output.IsEmpty() {
		p.sender.Send(output)
	}
	// the next pipeline must not see the port closed before the last output reaches its queue
	p.operators[last].closeDownstream()
	return produced
}

// Shutdown invokes every running operator with the Shutdown reason. Output is not sent downstream.
func (p *PipelineReplica) Shutdown() {
	for _, op := range p.operators {
		op.Shutdown()
	}
	for _, op := range p.operators {
		op.closeDownstream()
	}
}

func (p *PipelineReplica) moveSelfQueue() {
	if p.selfQueue.IsEmpty() {
		return
	}
	p.selfInput.tuples.Clear()
	p.selfQueue.Drain(p.selfDrainer, &p.selfInput)
	head := p.Head().Queue()
	for i := 0; i < p.selfInput.tuples.PortCount(); i++ {
		if tuples := p.selfInput.tuples.Get(i); len(tuples) > 0 {
			head.Offer(i, tuples)
		}
	}
	p.selfDrainer.Reset()
}

type selfInput struct {
	tuples *tuple.Tuples
}

func (s *selfInput) Supply(tuple.PartitionKey) *tuple.Tuples {
	return s.tuples
}
