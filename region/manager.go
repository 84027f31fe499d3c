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

package region

import (
	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/drainer"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/kvstore"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/tuple"
	"github.com/spirit-labs/streamflow/tuplequeue"
)

var regionLog = log.GetLogger("region")

// Manager creates regions from exec plans, and transforms them.
type Manager struct {
	cfg        *conf.Config
	partitions partition.Service
	kvStores   *kvstore.Manager
	queues     *tuplequeue.Manager
	hashes     *partition.HashCache
	recorder   drainer.LatencyRecorder
}

// NewManager creates a manager. recorder may be nil.
func NewManager(cfg *conf.Config, partitions partition.Service, kvStores *kvstore.Manager, hashes *partition.HashCache,
	recorder drainer.LatencyRecorder) *Manager {
	return &Manager{
		cfg:        cfg,
		partitions: partitions,
		kvStores:   kvStores,
		queues:     tuplequeue.NewManager(cfg),
		hashes:     hashes,
		recorder:   recorder,
	}
}

// kvContexts holds the kv store context of every operator replica of a region, by operator index then replica
// index. Contexts of stateless operators are nil.
type kvContexts [][]kvstore.Context

// CreateRegion creates the runtime of a region and initialises its operators. destinations are the connections
// from the last operator of the region to other regions, whose entries are resolved through router.
func (m *Manager) CreateRegion(f *flow.FlowDef, plan *ExecPlan, destinations []pipeline.Destination,
	router pipeline.Router) (*Region, error) {
	def := plan.RegionDef()
	links, err := regionLinks(f, def)
	if err != nil {
		return nil, err
	}
	r := &Region{plan: plan, flow: f, links: links, destinations: destinations, router: router}
	if def.IsPartitioned() {
		r.distribution, err = m.partitions.GetOrCreatePartitionDistribution(def.ID(), plan.ReplicaCount())
		if err != nil {
			return nil, err
		}
		r.extractor = partition.NewFieldsKeyExtractor(def.PartitionFieldNames(), m.hashes)
	}
	kv := m.createKVContexts(def, r.distribution, plan.ReplicaCount())
	heads := make([]*pipeline.UpstreamContext, plan.ReplicaCount())
	for i := range heads {
		heads[i] = pipeline.NewUpstreamContext(def.First().InputPortCount())
	}
	r.replicas = m.buildReplicas(r, kv, heads, nil)
	if err := initRegion(r); err != nil {
		m.ReleaseRegion(r)
		return nil, err
	}
	regionLog.Infof("created %s", r)
	return r, nil
}

// ReleaseRegion drops the kv stores of the operators of a region.
func (m *Manager) ReleaseRegion(r *Region) {
	for _, op := range r.Def().Operators() {
		m.kvStores.ReleaseContexts(op.ID())
	}
}

func initRegion(r *Region) error {
	for _, replicas := range r.replicas {
		for _, p := range replicas {
			if err := p.Init(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) createKVContexts(def *RegionDef, distribution *partition.Distribution, replicaCount int) kvContexts {
	kv := make(kvContexts, def.OperatorCount())
	for i, op := range def.Operators() {
		kv[i] = make([]kvstore.Context, replicaCount)
		switch op.Type() {
		case operator.Stateful:
			kv[i][0] = m.kvStores.CreateDefaultContext(op.ID())
		case operator.PartitionedStateful:
			for replicaIndex, ctx := range m.kvStores.CreatePartitionedContexts(op.ID(), distribution) {
				kv[i][replicaIndex] = ctx
			}
		}
	}
	return kv
}

// initialisedOperator is an operator instance which is already initialised, with its current strategy and the
// version of its upstream context it has seen.
type initialisedOperator struct {
	op              operator.Operator
	strategy        operator.SchedulingStrategy
	upstreamVersion int64
}

// buildReplicas creates the pipeline replicas of a region for its exec plan. heads are the upstream contexts of
// the first operator of each replica. operators, if not nil, supplies initialised operator instances by operator
// index and replica index, otherwise new instances are created.
func (m *Manager) buildReplicas(r *Region, kv kvContexts, heads []*pipeline.UpstreamContext,
	operators [][]initialisedOperator) [][]*pipeline.PipelineReplica {
	def := r.Def()
	starts := r.plan.PipelineStartIndices()
	replicas := make([][]*pipeline.PipelineReplica, len(starts))
	for i := range replicas {
		replicas[i] = make([]*pipeline.PipelineReplica, r.ReplicaCount())
	}
	for replicaIndex := 0; replicaIndex < r.ReplicaCount(); replicaIndex++ {
		upstreams := make([]*pipeline.UpstreamContext, def.OperatorCount())
		upstreams[0] = heads[replicaIndex]
		for i := 1; i < def.OperatorCount(); i++ {
			upstreams[i] = pipeline.NewUpstreamContext(def.Operator(i).InputPortCount())
		}
		var next tuplequeue.OperatorTupleQueue
		for pipelineIndex := len(starts) - 1; pipelineIndex >= 0; pipelineIndex-- {
			start := starts[pipelineIndex]
			end := r.plan.PipelineEndIndex(start)
			id := pipeline.NewPipelineReplicaID(def.ID(), start, replicaIndex)
			meter := m.newMeter(id, def.Operator(start))
			ops := make([]*pipeline.OperatorReplica, end-start)
			for i := start; i < end; i++ {
				queue, pool := m.createQueueAndPool(r, i, i == start, replicaIndex)
				cfg := m.operatorReplicaConfig(r, i, replicaIndex, upstreams, kv, queue, pool, i == end-1)
				cfg.Meter = meter
				if operators != nil {
					cfg.Operator = operators[i][replicaIndex].op
					cfg.Strategy = operators[i][replicaIndex].strategy
					cfg.LastUpstreamVersion = operators[i][replicaIndex].upstreamVersion
				}
				ops[i-start] = pipeline.NewOperatorReplica(cfg)
			}
			var sender pipeline.DownstreamSender
			if pipelineIndex == len(starts)-1 {
				sender = m.createRegionSender(r)
			} else {
				sender = m.createQueueSender(r, next, end)
			}
			p := pipeline.NewPipelineReplica(id, ops, m.createSelfQueue(r, def.Operator(start)), meter, sender,
				m.cfg.MaxDrainBatchSize)
			replicas[pipelineIndex][replicaIndex] = p
			next = p.EntryQueue()
		}
	}
	return replicas
}

func (m *Manager) newMeter(id pipeline.PipelineReplicaID, head *flow.OperatorDef) *pipeline.Meter {
	return pipeline.NewMeter(id, head.ID(), head.InputPortCount(), m.cfg.MeterTickMask)
}

func (m *Manager) operatorReplicaConfig(r *Region, index int, replicaIndex int, upstreams []*pipeline.UpstreamContext,
	kv kvContexts, queue tuplequeue.OperatorTupleQueue, pool drainer.Pool, lastInPipeline bool) pipeline.OperatorReplicaConfig {
	op := r.Def().Operator(index)
	cfg := pipeline.OperatorReplicaConfig{
		Def:            op,
		Index:          index,
		Queue:          queue,
		Pool:           pool,
		KVContext:      kv[index][replicaIndex],
		OutputSupplier: outputSupplier(op, lastInPipeline),
		Upstream:       upstreams[index],
	}
	if index < len(r.links) {
		cfg.Downstream = upstreams[index+1]
		cfg.DownstreamPort = r.links[index].To.PortIndex
	}
	if index > 0 {
		cfg.Feed = portMapping(r.links[index-1])
	}
	return cfg
}

// outputSupplier returns the supplier of an operator's output. The output of the last operator of a pipeline is
// sent to other goroutines so it cannot be reused.
func outputSupplier(op *flow.OperatorDef, lastInPipeline bool) tuple.Supplier {
	if lastInPipeline {
		return tuple.NewNonCachedSupplier(op.OutputPortCount())
	}
	return tuple.NewCachedSupplier(op.OutputPortCount())
}

func portMapping(c flow.Connection) pipeline.PortMapping {
	return pipeline.PortMapping{FromPort: c.From.PortIndex, ToPort: c.To.PortIndex}
}

// createQueueAndPool creates the queue and drainer pool of an operator. Pipeline heads are fed by other
// goroutines: they get a multi threaded queue with a blocking pool, or a partitioned queue in partitioned
// regions, which is fed through the self queue of the pipeline. Partitioned stateful operators always get a
// partitioned queue, other operators a single threaded queue.
func (m *Manager) createQueueAndPool(r *Region, index int, head bool, replicaIndex int) (tuplequeue.OperatorTupleQueue, drainer.Pool) {
	op := r.Def().Operator(index)
	switch {
	case r.distribution != nil && (head || op.Type() == operator.PartitionedStateful):
		return m.createPartitionedQueue(r, op, replicaIndex), m.nonBlockingPool(op)
	case head:
		return m.queues.CreateDefaultQueue(op.ID(), op.InputPortCount(), tuplequeue.MultiThreaded), m.blockingPool(op)
	default:
		return m.queues.CreateDefaultQueue(op.ID(), op.InputPortCount(), tuplequeue.SingleThreaded), m.nonBlockingPool(op)
	}
}

func (m *Manager) createPartitionedQueue(r *Region, op *flow.OperatorDef, replicaIndex int) tuplequeue.OperatorTupleQueue {
	return m.queues.CreatePartitionedQueue(op.ID(), op.InputPortCount(), replicaIndex, r.distribution, r.extractor)
}

func (m *Manager) blockingPool(op *flow.OperatorDef) drainer.Pool {
	return drainer.NewBlockingPool(op.ID(), op.InputPortCount(), m.cfg, m.recorder)
}

func (m *Manager) nonBlockingPool(op *flow.OperatorDef) drainer.Pool {
	return drainer.NewNonBlockingPool(op.ID(), op.InputPortCount(), m.cfg, m.recorder)
}

// createSelfQueue creates the self queue of a pipeline. Only pipelines with a partitioned head need one.
func (m *Manager) createSelfQueue(r *Region, head *flow.OperatorDef) tuplequeue.OperatorTupleQueue {
	if r.distribution != nil {
		return m.queues.CreateDefaultQueue(head.ID(), head.InputPortCount(), tuplequeue.MultiThreaded)
	}
	return m.queues.CreateEmptyQueue(head.ID(), head.InputPortCount())
}

func (m *Manager) createRegionSender(r *Region) pipeline.DownstreamSender {
	if len(r.destinations) == 0 {
		return pipeline.NopSender
	}
	return pipeline.NewRoutedSender(r.destinations, r.router, m.cfg.SenderOfferTimeout)
}

// createQueueSender creates the sender of a pipeline which is followed by the pipeline starting at nextStart.
func (m *Manager) createQueueSender(r *Region, next tuplequeue.OperatorTupleQueue, nextStart int) pipeline.DownstreamSender {
	return pipeline.NewQueueSender(next, []pipeline.PortMapping{portMapping(r.links[nextStart-1])}, m.cfg.SenderOfferTimeout)
}
