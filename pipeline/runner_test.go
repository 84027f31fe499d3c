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
	"testing"
	"time"

	"github.com/spirit-labs/streamflow/errors"
	"github.com/spirit-labs/streamflow/operator"
	"github.com/spirit-labs/streamflow/testutils"
	"github.com/stretchr/testify/require"
)

func startRunner(t *testing.T, f *pipelineFixture, onComplete func(id PipelineReplicaID)) (*Runner, context.CancelFunc, chan error) {
	t.Helper()
	runner := NewRunner(f.replica, f.cfg.RunnerWaitTimeout, onComplete)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
	}()
	t.Cleanup(cancel)
	return runner, cancel, errCh
}

func TestRunnerInvokesUntilCancelled(t *testing.T) {
	f := newPipelineFixture(t, statelessDefs(t, 2)...)
	runner, cancel, errCh := startRunner(t, f, nil)

	f.replica.EntryQueue().Offer(0, testutils.CreateTuples(0, 10))
	testutils.WaitUntil(t, func() (bool, error) {
		return f.sender.count() == 10, nil
	})
	f.replica.EntryQueue().Offer(0, testutils.CreateTuples(10, 5))
	testutils.WaitUntil(t, func() (bool, error) {
		return f.sender.count() == 15, nil
	})
	require.False(t, runner.Interrupted())

	cancel()
	require.NoError(t, <-errCh)
	<-runner.Done()
	require.True(t, runner.Interrupted())
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, testutils.IDs(f.sender.received()))
}

func TestRunnerPauseAndResume(t *testing.T) {
	f := newPipelineFixture(t, statelessDefs(t, 1)...)
	runner, cancel, errCh := startRunner(t, f, nil)

	runner.Pause()
	require.True(t, runner.Interrupted())
	f.replica.EntryQueue().Offer(0, testutils.CreateTuples(0, 5))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, f.sender.count())

	runner.Resume()
	testutils.WaitUntil(t, func() (bool, error) {
		return f.sender.count() == 5, nil
	})
	require.False(t, runner.Interrupted())

	cancel()
	require.NoError(t, <-errCh)
}

func TestRunnerStopsWhilePaused(t *testing.T) {
	f := newPipelineFixture(t, statelessDefs(t, 1)...)
	runner, cancel, errCh := startRunner(t, f, nil)
	runner.Pause()
	cancel()
	require.NoError(t, <-errCh)
	// pausing or resuming a stopped runner does not block
	runner.Pause()
	runner.Resume()
}

func TestRunnerCallsCompletionCallback(t *testing.T) {
	f := newPipelineFixture(t, statelessDefs(t, 2)...)
	completed := make(chan PipelineReplicaID, 1)
	_, _, errCh := startRunner(t, f, func(id PipelineReplicaID) {
		completed <- id
	})
	f.replica.EntryQueue().Offer(0, testutils.CreateTuples(0, 3))
	testutils.WaitUntil(t, func() (bool, error) {
		return f.sender.count() == 3, nil
	})
	f.upstreams[0].Close(0)
	require.Equal(t, f.replica.ID(), <-completed)
	require.NoError(t, <-errCh)
	require.True(t, f.replica.IsCompleted())
}

func TestRunnerReturnsOperatorPanicAsError(t *testing.T) {
	failing := func(ctx operator.InvocationContext) {
		panic("operator failed")
	}
	f := newPipelineFixture(t, operatorDef(t, "op0", operator.Stateless, nil, failing))
	_, _, errCh := startRunner(t, f, nil)
	f.replica.EntryQueue().Offer(0, testutils.CreateTuples(0, 1))
	err := <-errCh
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.InternalError))
}

func TestReplicaInvokedOutsideRunnerGoroutinePanics(t *testing.T) {
	f := newPipelineFixture(t, statelessDefs(t, 1)...)
	_, cancel, errCh := startRunner(t, f, nil)
	cancel()
	require.NoError(t, <-errCh)
	require.Panics(t, func() {
		f.replica.Invoke()
	})
}
