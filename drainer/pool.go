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

package drainer

import (
	"fmt"

	"github.com/spirit-labs/streamflow/conf"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

// Pool holds one drainer of each kind for an operator replica and hands out at most one at a time.
type Pool interface {
	// Init validates the initial scheduling strategy of the operator.
	Init(strategy operator.SchedulingStrategy) error
	// Acquire returns the drainer for strategy. It panics if a drainer is already acquired.
	Acquire(strategy operator.SchedulingStrategy) tuplequeue.Drainer
	// Release resets the drainer and makes the pool available again. It panics if drainer is not the acquired
	// one.
	Release(drainer tuplequeue.Drainer)
	IsBlocking() bool
}

type pool struct {
	operatorID     string
	inputPortCount int
	blocking       bool
	greedy         tuplequeue.Drainer
	singlePort     *SinglePortDrainer
	conjunctive    *MultiPortDrainer
	disjunctive    *MultiPortDrainer
	// drainers handed out, wrapped if latency recording is enabled
	greedyOut      tuplequeue.Drainer
	singlePortOut  tuplequeue.Drainer
	conjunctiveOut tuplequeue.Drainer
	disjunctiveOut tuplequeue.Drainer
	active         tuplequeue.Drainer
}

// BlockingPool is used by operators whose queue is written by other goroutines. Its drainers wait up to the
// drain timeout for tuples.
type BlockingPool struct {
	pool
}

// NonBlockingPool is used by operators whose queue is only accessed by the goroutine running their pipeline.
type NonBlockingPool struct {
	pool
}

// NewBlockingPool creates a blocking pool. recorder may be nil, in which case drain latencies are not
// recorded.
func NewBlockingPool(operatorID string, inputPortCount int, cfg *conf.Config, recorder LatencyRecorder) *BlockingPool {
	p := &BlockingPool{pool: pool{
		operatorID:     operatorID,
		inputPortCount: inputPortCount,
		blocking:       true,
		greedy:         NewGreedyDrainer(inputPortCount, cfg.MaxDrainBatchSize),
		singlePort:     NewBlockingSinglePortDrainer(cfg.MaxDrainBatchSize, cfg.DrainTimeout),
		conjunctive:    NewBlockingMultiPortConjunctiveDrainer(inputPortCount, cfg.MaxDrainBatchSize, cfg.DrainTimeout),
		disjunctive:    NewBlockingMultiPortDisjunctiveDrainer(inputPortCount, cfg.MaxDrainBatchSize, cfg.DrainTimeout),
	}}
	p.wrap(cfg, recorder)
	return p
}

func NewNonBlockingPool(operatorID string, inputPortCount int, cfg *conf.Config, recorder LatencyRecorder) *NonBlockingPool {
	p := &NonBlockingPool{pool: pool{
		operatorID:     operatorID,
		inputPortCount: inputPortCount,
		greedy:         NewGreedyDrainer(inputPortCount, cfg.MaxDrainBatchSize),
		singlePort:     NewNonBlockingSinglePortDrainer(cfg.MaxDrainBatchSize),
		conjunctive:    NewNonBlockingMultiPortConjunctiveDrainer(inputPortCount, cfg.MaxDrainBatchSize),
		disjunctive:    NewNonBlockingMultiPortDisjunctiveDrainer(inputPortCount, cfg.MaxDrainBatchSize),
	}}
	p.wrap(cfg, recorder)
	return p
}

func (p *pool) wrap(cfg *conf.Config, recorder LatencyRecorder) {
	p.greedyOut, p.singlePortOut, p.conjunctiveOut, p.disjunctiveOut = p.greedy, p.singlePort, p.conjunctive, p.disjunctive
	if !cfg.LatencyTrackingEnabled || recorder == nil {
		return
	}
	p.greedyOut = NewLatencyRecordingDrainer(p.operatorID, p.greedy, recorder)
	p.singlePortOut = NewLatencyRecordingDrainer(p.operatorID, p.singlePort, recorder)
	p.conjunctiveOut = NewLatencyRecordingDrainer(p.operatorID, p.conjunctive, recorder)
	p.disjunctiveOut = NewLatencyRecordingDrainer(p.operatorID, p.disjunctive, recorder)
}

func (p *pool) IsBlocking() bool {
	return p.blocking
}

func (p *pool) Init(strategy operator.SchedulingStrategy) error {
	if err := operator.ValidateSchedulingStrategy(strategy, p.inputPortCount); err != nil {
		log.Warnf("operator %s has invalid scheduling strategy: %v", p.operatorID, err)
		return err
	}
	return nil
}

func (p *pool) Acquire(strategy operator.SchedulingStrategy) tuplequeue.Drainer {
	if p.active != nil {
		panic(fmt.Sprintf("drainer of operator %s is already acquired", p.operatorID))
	}
	switch s := strategy.(type) {
	case operator.ScheduleWhenAvailable:
		p.active = p.greedyOut
	case operator.ScheduleWhenTuplesAvailable:
		p.active = p.configure(s)
	case operator.ScheduleNever:
		panic(fmt.Sprintf("cannot acquire drainer of operator %s which is never scheduled", p.operatorID))
	default:
		panic(fmt.Sprintf("unexpected scheduling strategy %T", strategy))
	}
	if l, ok := p.active.(*LatencyRecordingDrainer); ok {
		l.acquired()
	}
	return p.active
}

func (p *pool) configure(s operator.ScheduleWhenTuplesAvailable) tuplequeue.Drainer {
	if p.inputPortCount == 1 {
		p.singlePort.SetParameters(s.ByCount, s.PortCounts[0])
		return p.singlePortOut
	}
	d, out := p.disjunctive, p.disjunctiveOut
	if s.ByPort == operator.AllPorts {
		d, out = p.conjunctive, p.conjunctiveOut
	}
	if err := d.SetParameters(s.ByCount, s.PortCounts); err != nil {
		panic(fmt.Sprintf("operator %s acquired drainer with invalid strategy %s: %v", p.operatorID, s, err))
	}
	return out
}

func (p *pool) Release(drainer tuplequeue.Drainer) {
	if p.active == nil || p.active != drainer {
		panic(fmt.Sprintf("released drainer of operator %s is not the acquired one", p.operatorID))
	}
	p.active.Reset()
	p.active = nil
}
