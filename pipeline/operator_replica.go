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
	"fmt"
	"sync/atomic"

	"github.com/spirit-labs/streamflow/drainer"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/kvstore"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

type OperatorStatus int

const (
	OperatorInitial OperatorStatus = iota
	OperatorRunning
	OperatorCompleted
)

func (s OperatorStatus) String() string {
	switch s {
	case OperatorInitial:
		return "INITIAL"
	case OperatorRunning:
		return "RUNNING"
	case OperatorCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("OperatorStatus(%d)", int(s))
	}
}

// OperatorReplicaConfig holds what an operator replica is built from.
type OperatorReplicaConfig struct {
	Def   *flow.OperatorDef
	Index int
	// Operator is created from Def if nil
	Operator operator.Operator
	Queue    tuplequeue.OperatorTupleQueue
	Pool     drainer.Pool
	// KVContext is nil for stateless operators
	KVContext      kvstore.Context
	OutputSupplier tuple.Supplier
	Upstream       *UpstreamContext
	// Downstream is the upstream context of the next operator replica in the region, nil if the operator is
	// the last one of its region
	Downstream *UpstreamContext
	// DownstreamPort is the port of the next operator replica closed when this one completes
	DownstreamPort int
	// Feed is the connection from the previous operator of the region, ignored for the first operator
	Feed  PortMapping
	Meter *Meter
	// Strategy is set if Operator is already initialised, the replica is then created running
	Strategy operator.SchedulingStrategy
	// LastUpstreamVersion is the version of Upstream the operator instance has already seen
	LastUpstreamVersion int64
}

// OperatorReplica is one replica of an operator inside a pipeline replica. It owns the queue and drainer pool
// of the operator and is only ever invoked by the goroutine running its pipeline replica.
type OperatorReplica struct {
	def                 *flow.OperatorDef
	id                  string
	index               int
	op                  operator.Operator
	queue               tuplequeue.OperatorTupleQueue
	pool                drainer.Pool
	kvContext           kvstore.Context
	outputSupplier      tuple.Supplier
	upstream            *UpstreamContext
	downstream          *UpstreamContext
	downstreamPort      int
	feed                PortMapping
	meter               *Meter
	strategy            operator.SchedulingStrategy
	status              OperatorStatus
	completed           atomic.Bool
	invocationCtx       operator.InvocationCtx
	lastUpstreamVersion int64
	collector           inputCollector
	// inbox is the self queue of the pipeline replica the operator is the head of, if it has one
	inbox            tuplequeue.OperatorTupleQueue
	downstreamClosed bool
}

func NewOperatorReplica(cfg OperatorReplicaConfig) *OperatorReplica {
	op := cfg.Operator
	if op == nil {
		op = cfg.Def.CreateOperator()
	}
	o := &OperatorReplica{
		def:            cfg.Def,
		id:             cfg.Def.ID(),
		index:          cfg.Index,
		op:             op,
		queue:          cfg.Queue,
		pool:           cfg.Pool,
		kvContext:      cfg.KVContext,
		outputSupplier: cfg.OutputSupplier,
		upstream:       cfg.Upstream,
		downstream:     cfg.Downstream,
		downstreamPort: cfg.DownstreamPort,
		feed:           cfg.Feed,
		meter:          cfg.Meter,

		lastUpstreamVersion: cfg.LastUpstreamVersion,
	}
	o.collector.portCount = cfg.Def.InputPortCount()
	o.invocationCtx.SetUpstreamConnectionStatuses(o.upstream.Statuses())
	if cfg.Strategy != nil {
		o.setStrategy(cfg.Strategy)
		o.status = OperatorRunning
	}
	return o
}

// InitOperator initialises an operator instance as replica replicaIndex of def and validates the scheduling
// strategy it returns.
func InitOperator(def *flow.OperatorDef, op operator.Operator, replicaIndex int) (operator.SchedulingStrategy, error) {
	strategy, err := op.Init(&operator.InitCtx{
		ID:              def.ID(),
		Replica:         replicaIndex,
		InputPorts:      def.InputPortCount(),
		OutputPorts:     def.OutputPortCount(),
		PartitionFields: def.PartitionFieldNames(),
		Cfg:             def.Config(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialise operator %s", def.ID())
	}
	if _, ok := strategy.(operator.ScheduleNever); ok {
		return nil, errors.NewInvalidSchedulingStrategyErrorf("operator %s returned %T on init", def.ID(), strategy)
	}
	if err := operator.ValidateSchedulingStrategy(strategy, def.InputPortCount()); err != nil {
		return nil, err
	}
	return strategy, nil
}

// Init initialises the operator with the given replica index and validates its scheduling strategy.
func (o *OperatorReplica) Init(replicaIndex int) error {
	if o.status != OperatorInitial {
		panic(fmt.Sprintf("operator %s is already initialised", o.id))
	}
	strategy, err := InitOperator(o.def, o.op, replicaIndex)
	if err != nil {
		return err
	}
	if err := o.pool.Init(strategy); err != nil {
		return err
	}
	o.setStrategy(strategy)
	o.status = OperatorRunning
	return nil
}

// Duplicate returns a replica of the same operator instance, with the same state and scheduling strategy, on
// a different queue, pool and output supplier. It is used when a pipeline is reshaped.
func (o *OperatorReplica) Duplicate(meter *Meter, queue tuplequeue.OperatorTupleQueue, pool drainer.Pool,
	outputSupplier tuple.Supplier) *OperatorReplica {
	d := &OperatorReplica{
		def:                 o.def,
		id:                  o.id,
		index:               o.index,
		op:                  o.op,
		queue:               queue,
		pool:                pool,
		kvContext:           o.kvContext,
		outputSupplier:      outputSupplier,
		upstream:            o.upstream,
		downstream:          o.downstream,
		downstreamPort:      o.downstreamPort,
		feed:                o.feed,
		meter:               meter,
		strategy:            o.strategy,
		status:              o.status,
		lastUpstreamVersion: o.lastUpstreamVersion,
		collector:           inputCollector{portCount: o.collector.portCount},
		downstreamClosed:    o.downstreamClosed,
	}
	d.completed.Store(o.completed.Load())
	d.invocationCtx.SetUpstreamConnectionStatuses(o.upstream.Statuses())
	if s, ok := o.strategy.(operator.ScheduleWhenTuplesAvailable); ok {
		queue.SetTupleCounts(s.PortCounts, s.ByPort)
	}
	return d
}

func (o *OperatorReplica) OperatorDef() *flow.OperatorDef {
	return o.def
}

func (o *OperatorReplica) OperatorID() string {
	return o.id
}

func (o *OperatorReplica) Index() int {
	return o.index
}

func (o *OperatorReplica) Operator() operator.Operator {
	return o.op
}

func (o *OperatorReplica) Queue() tuplequeue.OperatorTupleQueue {
	return o.queue
}

func (o *OperatorReplica) DrainerPool() drainer.Pool {
	return o.pool
}

func (o *OperatorReplica) KVContext() kvstore.Context {
	return o.kvContext
}

func (o *OperatorReplica) OutputSupplier() tuple.Supplier {
	return o.outputSupplier
}

func (o *OperatorReplica) UpstreamContext() *UpstreamContext {
	return o.upstream
}

func (o *OperatorReplica) DownstreamContext() *UpstreamContext {
	return o.downstream
}

func (o *OperatorReplica) Feed() PortMapping {
	return o.feed
}

func (o *OperatorReplica) SchedulingStrategy() operator.SchedulingStrategy {
	return o.strategy
}

func (o *OperatorReplica) LastUpstreamVersion() int64 {
	return o.lastUpstreamVersion
}

func (o *OperatorReplica) Status() OperatorStatus {
	return o.status
}

// IsCompleted can be called from any goroutine.
func (o *OperatorReplica) IsCompleted() bool {
	return o.completed.Load()
}

// Invoke offers the output of the previous operator to the queue, then invokes the operator if its scheduling
// strategy is satisfied. It returns the output of the invocation, nil if the operator was not invoked.
func (o *OperatorReplica) Invoke(upstreamOutput *tuple.Tuples) *tuple.Tuples {
	if upstreamOutput != nil {
		if tuples := upstreamOutput.Get(o.feed.FromPort); len(tuples) > 0 {
			o.queue.Offer(o.feed.ToPort, tuples)
		}
	}
	if o.status != OperatorRunning {
		return nil
	}
	if version := o.upstream.Version(); version != o.lastUpstreamVersion {
		o.lastUpstreamVersion = version
		o.invocationCtx.SetUpstreamConnectionStatuses(o.upstream.Statuses())
		if o.upstream.AllClosed() {
			return o.complete()
		}
		output := o.outputSupplier.Get()
		o.drainGreedily(output)
		return output
	}
	if o.def.InputPortCount() == 0 {
		output := o.outputSupplier.Get()
		o.invoke(operator.Success, tuple.NewTuples(0), output, tuple.NoKey)
		return output
	}
	d := o.pool.Acquire(o.strategy)
	o.collector.reset()
	o.queue.Drain(d, &o.collector)
	o.pool.Release(d)
	if len(o.collector.drained) == 0 {
		return nil
	}
	output := o.outputSupplier.Get()
	o.invokeCollected(operator.Success, output)
	return output
}

// drainGreedily drains at most one batch of whatever is buffered and invokes the operator with it because
// an upstream port was closed. It returns true if anything was drained.
func (o *OperatorReplica) drainGreedily(output *tuple.Tuples) bool {
	d := o.pool.Acquire(operator.ScheduleWhenAvailable{})
	o.collector.reset()
	o.queue.Drain(d, &o.collector)
	o.pool.Release(d)
	if len(o.collector.drained) == 0 {
		return false
	}
	o.invokeCollected(operator.InputPortClosed, output)
	return true
}

// complete invokes the operator until its queue is empty and marks it completed. Everything sent to the
// pipeline's self queue before the upstream closed is moved into the queue first.
func (o *OperatorReplica) complete() *tuple.Tuples {
	if o.inbox != nil {
		tuplequeue.MoveTuples(o.inbox, o.queue)
	}
	output := o.outputSupplier.Get()
	drained := false
	for o.status == OperatorRunning && o.drainGreedily(output) {
		drained = true
	}
	if !drained && o.status == OperatorRunning && o.def.Type() != operator.PartitionedStateful {
		o.invoke(operator.InputPortClosed, tuple.NewTuples(o.def.InputPortCount()), output, tuple.NoKey)
	}
	o.markCompleted()
	return output
}

// Shutdown invokes a running operator a last time with the Shutdown reason and completes it.
func (o *OperatorReplica) Shutdown() *tuple.Tuples {
	if o.status != OperatorRunning {
		return nil
	}
	output := o.outputSupplier.Get()
	if o.def.Type() != operator.PartitionedStateful {
		o.invoke(operator.Shutdown, tuple.NewTuples(o.def.InputPortCount()), output, tuple.NoKey)
	}
	o.markCompleted()
	return output
}

func (o *OperatorReplica) markCompleted() {
	if o.status == OperatorCompleted {
		return
	}
	o.status = OperatorCompleted
	o.completed.Store(true)
	log.Debugf("operator %s completed", o.id)
}

// closeDownstream closes the port of the next operator in the region once this one is completed. The pipeline
// replica calls it only after the output of the operator has been handed on.
func (o *OperatorReplica) closeDownstream() {
	if o.downstreamClosed || o.status != OperatorCompleted {
		return
	}
	o.downstreamClosed = true
	if o.downstream != nil {
		o.downstream.Close(o.downstreamPort)
	}
}

func (o *OperatorReplica) invokeCollected(reason operator.InvocationReason, output *tuple.Tuples) {
	for i := range o.collector.drained {
		if o.status != OperatorRunning {
			return
		}
		d := &o.collector.drained[i]
		o.invoke(reason, d.tuples, output, d.key)
	}
}

func (o *OperatorReplica) invoke(reason operator.InvocationReason, input *tuple.Tuples, output *tuple.Tuples,
	key tuple.PartitionKey) {
	var kv kvstore.KVStore
	if o.kvContext != nil {
		kv = o.kvContext.KVStore(key)
	}
	o.invocationCtx.SetInvocationParameters(reason, input, output, key, kv)
	if o.meter != nil {
		o.meter.Count(o.id, input)
		o.meter.OnInvocationStart(&o.id)
	}
	o.op.Invoke(&o.invocationCtx)
	if o.meter != nil {
		o.meter.OnInvocationComplete()
	}
	if next, ok := o.invocationCtx.NextSchedulingStrategy(); ok {
		o.onNextStrategy(next)
	}
}

func (o *OperatorReplica) onNextStrategy(next operator.SchedulingStrategy) {
	if err := operator.ValidateSchedulingStrategy(next, o.def.InputPortCount()); err != nil {
		panic(fmt.Sprintf("operator %s set invalid scheduling strategy: %v", o.id, err))
	}
	if _, ok := next.(operator.ScheduleNever); ok {
		log.Debugf("operator %s will not be scheduled again", o.id)
		o.strategy = next
		o.markCompleted()
		return
	}
	o.setStrategy(next)
}

func (o *OperatorReplica) setStrategy(strategy operator.SchedulingStrategy) {
	o.strategy = strategy
	if s, ok := strategy.(operator.ScheduleWhenTuplesAvailable); ok {
		o.queue.SetTupleCounts(s.PortCounts, s.ByPort)
		return
	}
	if o.def.InputPortCount() > 0 {
		o.queue.SetTupleCounts(anyPortCounts(o.def.InputPortCount()), operator.AnyPort)
	}
}

func anyPortCounts(portCount int) []int {
	counts := make([]int, portCount)
	for i := range counts {
		counts[i] = 1
	}
	return counts
}

type drainedInput struct {
	key    tuple.PartitionKey
	tuples *tuple.Tuples
}

// inputCollector hands a new Tuples to the drainer for every partition key drained.
type inputCollector struct {
	portCount int
	drained   []drainedInput
}

func (c *inputCollector) reset() {
	clear(c.drained)
	c.drained = c.drained[:0]
}

func (c *inputCollector) Supply(key tuple.PartitionKey) *tuple.Tuples {
	for i := range c.drained {
		if c.drained[i].key == key {
			return c.drained[i].tuples
		}
	}
	tuples := tuple.NewTuples(c.portCount)
	c.drained = append(c.drained, drainedInput{key: key, tuples: tuples})
	return tuples
}
