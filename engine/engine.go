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

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spirit-labs/streamflow/common"
	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/drainer"
	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/flow"
	"github.com/spirit-labs/streamflow/kvstore"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/metrics"
	"github.com/spirit-labs/streamflow/partition"
	"github.com/spirit-labs/streamflow/pipeline"
	"github.com/spirit-labs/streamflow/region"
	"golang.org/x/sync/errgroup"
)

const metricsSampleInterval = 100 * time.Millisecond

var engineLog = log.GetLogger("engine")

type state int

const (
	stateCreated state = iota
	stateRunning
	stateShutdown
)

// Engine runs a flow: it forms the regions of the flow, runs every pipeline replica on its own goroutine and
// applies merge, split and rebalance transformations to the running flow. Transformations are applied one at
// a time, each publishing a new Snapshot.
type Engine struct {
	cfg            *conf.Config
	id             string
	partitions     partition.Service
	kvStores       *kvstore.Manager
	regions        *region.Manager
	metrics        *metrics.Metrics
	lock           sync.Mutex
	completionLock sync.Mutex
	state          state
	snapshot       atomic.Pointer[Snapshot]
	flow           *flow.FlowDef
	regionOf       map[string]int
	runners        map[int]*regionRunners
	group          *errgroup.Group
	groupCtx       context.Context
	cancel         context.CancelFunc
	completed      chan struct{}
}

// NewEngine creates an engine. m may be nil, in which case nothing is recorded.
func NewEngine(cfg *conf.Config, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hashes, err := partition.NewHashCache(cfg.PartitionKeyCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	partitions := partition.NewInMemoryService(cfg.PartitionCount)
	kvStores := kvstore.NewManager(cfg.PartitionCount)
	var recorder drainer.LatencyRecorder
	if m != nil && cfg.LatencyTrackingEnabled {
		recorder = m
	}
	return &Engine{
		cfg:        cfg,
		id:         uuid.New().String(),
		partitions: partitions,
		kvStores:   kvStores,
		regions:    region.NewManager(cfg, partitions, kvStores, hashes, recorder),
		metrics:    m,
		runners:    map[int]*regionRunners{},
		completed:  make(chan struct{}),
	}, nil
}

func (e *Engine) ID() string {
	return e.id
}

// Snapshot returns the regions of the running flow, or nil if no flow was started.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Entry resolves the entry queues of a region of the current snapshot for the senders of other regions.
func (e *Engine) Entry(regionID int) (*pipeline.RegionEntry, bool) {
	s := e.snapshot.Load()
	if s == nil {
		return nil, false
	}
	return s.Entry(regionID)
}

// Run forms the regions of f, creates them with one pipeline each and starts their runners. An engine runs a
// single flow.
func (e *Engine) Run(f *flow.FlowDef) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.state != stateCreated {
		return errors.NewStreamflowErrorf(errors.Unavailable, "engine %s already ran a flow", e.id)
	}
	defs := region.FormRegions(f)
	regionOf := map[string]int{}
	for _, def := range defs {
		for _, id := range def.OperatorIDs() {
			regionOf[id] = def.ID()
		}
	}
	regions := make([]*region.Region, 0, len(defs))
	for _, def := range defs {
		replicaCount := 1
		if def.IsPartitioned() {
			replicaCount = e.cfg.DefaultReplicaCount
		}
		plan, err := region.NewDefaultExecPlan(def, replicaCount)
		if err != nil {
			e.releaseRegions(regions)
			return err
		}
		destinations := region.Destinations(f, def, func(operatorID string) int { return regionOf[operatorID] })
		r, err := e.regions.CreateRegion(f, plan, destinations, e)
		if err != nil {
			e.releaseRegions(regions)
			return err
		}
		regions = append(regions, r)
	}
	e.flow = f
	e.regionOf = regionOf
	e.snapshot.Store(newSnapshot(0, regions))

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group, e.groupCtx = errgroup.WithContext(ctx)
	for _, r := range regions {
		e.startRunners(r)
	}
	if e.metrics != nil {
		view := func() metrics.FlowView {
			if s := e.snapshot.Load(); s != nil {
				return s
			}
			return nil
		}
		if err := e.metrics.RegisterFlow(view); err != nil {
			engineLog.Warnf("failed to register flow metrics: %v", err)
		}
		common.Go(func() {
			e.metrics.RunSampler(ctx, metricsSampleInterval, view)
		})
	}
	e.state = stateRunning
	engineLog.Infof("engine %s running flow with %d regions", e.id, len(regions))
	return nil
}

func (e *Engine) releaseRegions(regions []*region.Region) {
	for _, r := range regions {
		e.regions.ReleaseRegion(r)
	}
}

// MergePipelines merges the pipelines of a region starting at indices.
func (e *Engine) MergePipelines(regionID int, indices []int) error {
	return e.transform(regionID, "merge", func(r *region.Region) error {
		if !region.CheckPipelineStartIndicesToMerge(r.ExecPlan(), indices) {
			return errors.NewInvalidTransformationErrorf("cannot merge pipelines %v of %s", indices, r.ExecPlan())
		}
		return nil
	}, func(r *region.Region) (*region.Region, error) {
		return e.regions.MergePipelines(r, indices)
	})
}

// SplitPipeline splits the pipeline of a region starting at indices[0] at the other indices.
func (e *Engine) SplitPipeline(regionID int, indices []int) error {
	return e.transform(regionID, "split", func(r *region.Region) error {
		if !region.CheckPipelineStartIndicesToSplit(r.ExecPlan(), indices) {
			return errors.NewInvalidTransformationErrorf("cannot split pipeline with indices %v of %s", indices,
				r.ExecPlan())
		}
		return nil
	}, func(r *region.Region) (*region.Region, error) {
		return e.regions.SplitPipeline(r, indices)
	})
}

// RebalanceRegion changes the replica count of a partitioned stateful region. The regions sending to it are
// paused too as their senders route by the distribution of the region.
func (e *Engine) RebalanceRegion(regionID int, replicaCount int) error {
	return e.transform(regionID, "rebalance", nil, func(r *region.Region) (*region.Region, error) {
		return e.regions.RebalanceRegion(r, replicaCount)
	})
}

// transform pauses the runners of a region, applies transformation, publishes the result and restarts the
// runners of the region. check, if not nil, rejects a transformation before anything is paused.
func (e *Engine) transform(regionID int, kind string, check func(r *region.Region) error,
	transformation func(r *region.Region) (*region.Region, error)) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	r, err := e.transformableRegion(regionID)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(r); err != nil {
			return err
		}
	}
	var upstream []*regionRunners
	if kind == "rebalance" {
		upstream = e.upstreamRunners(regionID)
	}
	for _, rr := range upstream {
		rr.pause()
	}
	runners := e.runners[regionID]
	runners.pause()
	resume := func() {
		runners.resume()
		for _, rr := range upstream {
			rr.resume()
		}
	}
	if r.HasCompletedOperators() {
		resume()
		return errors.NewInvalidTransformationErrorf("region %d has completed operators", regionID)
	}
	transformed, err := e.applyTransformation(r, transformation)
	if err != nil {
		resume()
		return err
	}
	runners.stop()
	e.startRunners(transformed)
	for _, rr := range upstream {
		rr.resume()
	}
	if e.metrics != nil {
		e.metrics.RecordTransformation(kind)
	}
	engineLog.Infof("applied %s to region %d, flow version is %d", kind, regionID, e.snapshot.Load().Version())
	return nil
}

// applyTransformation publishes the transformed region while completions are blocked, so the ports of a
// completed upstream region are closed on the head contexts of the published region.
func (e *Engine) applyTransformation(r *region.Region,
	transformation func(r *region.Region) (*region.Region, error)) (*region.Region, error) {
	e.completionLock.Lock()
	defer e.completionLock.Unlock()
	transformed, err := transformation(r)
	if err != nil {
		return nil, err
	}
	e.snapshot.Store(e.snapshot.Load().with(transformed))
	return transformed, nil
}

func (e *Engine) transformableRegion(regionID int) (*region.Region, error) {
	if e.state != stateRunning {
		return nil, errors.NewStreamflowErrorf(errors.Unavailable, "engine %s is not running a flow", e.id)
	}
	if !*e.cfg.TransformationsEnabled {
		return nil, errors.NewInvalidTransformationErrorf("transformations are disabled")
	}
	r, ok := e.snapshot.Load().Region(regionID)
	if !ok {
		return nil, errors.NewInvalidTransformationErrorf("no region %d", regionID)
	}
	if r.HasCompletedOperators() {
		return nil, errors.NewInvalidTransformationErrorf("region %d has completed operators", regionID)
	}
	return r, nil
}

// upstreamRunners returns the runners of the regions sending to regionID.
func (e *Engine) upstreamRunners(regionID int) []*regionRunners {
	var runners []*regionRunners
	for _, r := range e.snapshot.Load().Regions() {
		for _, d := range r.Destinations() {
			if d.RegionID == regionID {
				runners = append(runners, e.runners[r.ID()])
				break
			}
		}
	}
	return runners
}

func (e *Engine) startRunners(r *region.Region) {
	ctx, cancel := context.WithCancel(e.groupCtx)
	rr := &regionRunners{cancel: cancel}
	for pipelineIndex := 0; pipelineIndex < r.PipelineCount(); pipelineIndex++ {
		for _, p := range r.PipelineReplicas(pipelineIndex) {
			if p.IsCompleted() {
				continue
			}
			runner := pipeline.NewRunner(p, e.cfg.RunnerWaitTimeout, e.onPipelineCompleted)
			rr.runners = append(rr.runners, runner)
			e.group.Go(func() error {
				return runner.Run(ctx)
			})
		}
	}
	e.runners[r.ID()] = rr
}

// onPipelineCompleted is called by the runner of a completed pipeline replica. Once every replica of the last
// operator of a region completed, the input ports of downstream regions whose upstream regions all completed are
// closed.
func (e *Engine) onPipelineCompleted(id pipeline.PipelineReplicaID) {
	e.completionLock.Lock()
	defer e.completionLock.Unlock()
	s := e.snapshot.Load()
	r, ok := s.Region(id.RegionID)
	if !ok || !r.IsCompleted() {
		return
	}
	engineLog.Infof("region %d completed", r.ID())
	for _, d := range r.Destinations() {
		downstream, _ := s.Region(d.RegionID)
		if !e.upstreamCompleted(s, downstream, d.ToPort) {
			continue
		}
		for _, upstream := range downstream.HeadUpstreamContexts() {
			upstream.Close(d.ToPort)
		}
	}
	for _, other := range s.Regions() {
		if !other.IsCompleted() {
			return
		}
	}
	select {
	case <-e.completed:
	default:
		engineLog.Infof("flow of engine %s completed", e.id)
		close(e.completed)
	}
}

func (e *Engine) upstreamCompleted(s *Snapshot, r *region.Region, portIndex int) bool {
	for _, operatorID := range e.flow.UpstreamOperatorsOfPort(r.Def().First().ID(), portIndex) {
		upstream, _ := s.Region(e.regionOf[operatorID])
		if !upstream.IsCompleted() {
			return false
		}
	}
	return true
}

// AwaitCompletion waits until every region of the flow completed, ctx is done or a runner failed.
func (e *Engine) AwaitCompletion(ctx context.Context) error {
	e.lock.Lock()
	groupCtx := e.groupCtx
	e.lock.Unlock()
	if groupCtx == nil {
		return errors.NewStreamflowErrorf(errors.Unavailable, "engine %s is not running a flow", e.id)
	}
	select {
	case <-e.completed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-groupCtx.Done():
		select {
		case <-e.completed:
			return nil
		default:
		}
		if err := e.group.Wait(); err != nil {
			return err
		}
		return errors.NewStreamflowErrorf(errors.ShutdownError, "engine %s shut down before its flow completed", e.id)
	}
}

// Shutdown stops every runner, invokes the running operators with the Shutdown reason and releases the kv
// stores of the flow. It returns the error of the first runner which failed, if any.
func (e *Engine) Shutdown() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.state != stateRunning {
		e.state = stateShutdown
		return nil
	}
	e.state = stateShutdown
	e.cancel()
	err := e.group.Wait()
	s := e.snapshot.Load()
	for _, r := range s.Regions() {
		for _, p := range r.AllPipelineReplicas() {
			p.Shutdown()
		}
		e.regions.ReleaseRegion(r)
	}
	engineLog.Infof("engine %s shut down at flow version %d", e.id, s.Version())
	return err
}

// regionRunners are the runners of the pipeline replicas of a region, in pipeline order.
type regionRunners struct {
	cancel  context.CancelFunc
	runners []*pipeline.Runner
}

// pause pauses the runners in pipeline order, so a runner sending to a paused pipeline is paused before it.
func (r *regionRunners) pause() {
	for _, runner := range r.runners {
		runner.Pause()
	}
}

func (r *regionRunners) resume() {
	for _, runner := range r.runners {
		runner.Resume()
	}
}

// stop stops the runners and waits for them to return.
func (r *regionRunners) stop() {
	r.cancel()
	for _, runner := range r.runners {
		<-runner.Done()
	}
}
