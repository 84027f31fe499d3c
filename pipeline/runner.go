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
	"context"
	"sync/atomic"
	"time"

	"github.com/spirit-labs/streamflow/common"
	"github.com/spirit-labs/streamflow/errors"
	log "github.com/spirit-labs/streamflow/logger"
)

var runnerLog = log.GetLogger("runner")

type interruptible interface {
	setInterrupter(interrupter Interrupter)
}

// Runner is the worker loop of a pipeline replica. It invokes the replica until the replica completes or the
// context passed to Run is cancelled, and can be paused while the engine transforms the region.
type Runner struct {
	replica     *PipelineReplica
	waitTimeout time.Duration
	onComplete  func(id PipelineReplicaID)
	owner       *common.GoroutineOwner
	pauses      chan chan struct{}
	resumes     chan struct{}
	interrupted atomic.Bool
	done        chan struct{}
}

// NewRunner creates a runner. onComplete, if not nil, is called from the runner's goroutine when all operators
// of the replica have completed.
func NewRunner(replica *PipelineReplica, waitTimeout time.Duration, onComplete func(id PipelineReplicaID)) *Runner {
	r := &Runner{
		replica:     replica,
		waitTimeout: waitTimeout,
		onComplete:  onComplete,
		owner:       common.NewGoroutineOwner("pipeline replica " + replica.ID().String()),
		pauses:      make(chan chan struct{}),
		resumes:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	if s, ok := replica.Sender().(interruptible); ok {
		s.setInterrupter(r)
	}
	return r
}

func (r *Runner) Replica() *PipelineReplica {
	return r.replica
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Interrupted is true while a pause is requested or after the runner stopped.
func (r *Runner) Interrupted() bool {
	return r.interrupted.Load()
}

// Run invokes the pipeline replica on the calling goroutine until ctx is cancelled or the replica completes. A
// panic raised by an operator is returned as an error.
func (r *Runner) Run(ctx context.Context) (err error) {
	id := r.replica.ID()
	r.owner.Claim()
	r.replica.SetOwner(r.owner)
	defer func() {
		if p := recover(); p != nil {
			err = common.LogInternalError(errors.Errorf("pipeline replica %s failed: %v\n%s", id, p,
				common.GetCurrentStack()))
		}
		r.interrupted.Store(true)
		r.owner.Release()
		close(r.done)
	}()
	runnerLog.Debugf("runner of pipeline replica %s started", id)
	go func() {
		select {
		case <-ctx.Done():
			r.interrupted.Store(true)
		case <-r.done:
		}
	}()
	entry := r.replica.EntryQueue()
	for {
		select {
		case <-ctx.Done():
			runnerLog.Debugf("runner of pipeline replica %s stopped", id)
			return nil
		case ack := <-r.pauses:
			close(ack)
			if !r.awaitResume(ctx) {
				runnerLog.Debugf("runner of pipeline replica %s stopped while paused", id)
				return nil
			}
			continue
		default:
		}
		produced := r.replica.Invoke()
		if r.replica.IsCompleted() {
			runnerLog.Infof("pipeline replica %s completed", id)
			if r.onComplete != nil {
				r.onComplete(id)
			}
			return nil
		}
		if !produced {
			entry.AwaitTuples(r.waitTimeout)
		}
	}
}

func (r *Runner) awaitResume(ctx context.Context) bool {
	select {
	case <-r.resumes:
		r.interrupted.Store(ctx.Err() != nil)
		return true
	case <-ctx.Done():
		return false
	}
}

// Pause blocks until the runner is paused between two invocations of the replica, or has stopped.
func (r *Runner) Pause() {
	r.interrupted.Store(true)
	ack := make(chan struct{})
	select {
	case r.pauses <- ack:
	case <-r.done:
		return
	}
	select {
	case <-ack:
	case <-r.done:
	}
}

// Resume continues a paused runner.
func (r *Runner) Resume() {
	select {
	case r.resumes <- struct{}{}:
	case <-r.done:
	}
}
