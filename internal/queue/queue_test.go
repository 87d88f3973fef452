package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpress/internal/build"
	"git.home.luguber.info/inful/docpress/internal/typeset"
)

// stubService counts invocations and returns a canned result per exit code.
type stubService struct {
	calls    atomic.Int32
	exitCode int
	block    chan struct{}
}

func (s *stubService) Build(ctx context.Context, _ build.Request) (*build.Result, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	res := &build.Result{Report: &typeset.BuildReport{ExitCode: s.exitCode}}
	if s.exitCode != 0 {
		return res, fmt.Errorf("typesetting engine exited %d", s.exitCode)
	}
	return res, nil
}

func waitForStatus(t *testing.T, q *Queue, id string, want JobStatus) *Job {
	t.Helper()
	var got *Job
	require.Eventually(t, func() bool {
		j, ok := q.JobSnapshot(id)
		if !ok || j.Status != want {
			return false
		}
		got = j
		return true
	}, 2*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
	return got
}

func TestQueueProcessesJobOnce(t *testing.T) {
	svc := &stubService{}
	q := New(10, 1, svc)
	q.Start(t.Context())
	defer q.Stop(context.Background())

	job := NewJob(build.Request{InstanceID: uuid.New(), LayoutSlug: "letterhead"})
	require.NoError(t, q.Enqueue(job))

	done := waitForStatus(t, q, job.ID, StatusCompleted)
	assert.Equal(t, 0, done.ExitCode)
	assert.Empty(t, done.Error)
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestQueueDoesNotRetryFailedBuilds(t *testing.T) {
	svc := &stubService{exitCode: 9}
	q := New(10, 1, svc)
	q.Start(t.Context())
	defer q.Stop(context.Background())

	job := NewJob(build.Request{InstanceID: uuid.New(), LayoutSlug: "letterhead"})
	require.NoError(t, q.Enqueue(job))

	done := waitForStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, 9, done.ExitCode)
	assert.Contains(t, done.Error, "exited 9")

	// Give a hypothetical retry loop time to fire; the count must stay at one.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestQueueRejectsWhenFull(t *testing.T) {
	svc := &stubService{block: make(chan struct{})}
	q := New(1, 1, svc)
	// Not started: nothing drains the channel.

	require.NoError(t, q.Enqueue(NewJob(build.Request{InstanceID: uuid.New()})))
	err := q.Enqueue(NewJob(build.Request{InstanceID: uuid.New()}))
	assert.ErrorContains(t, err, "queue is full")
}

func TestQueueEnqueueValidation(t *testing.T) {
	q := New(1, 1, &stubService{})
	assert.Error(t, q.Enqueue(nil))
	assert.Error(t, q.Enqueue(&Job{}))
}

func TestQueueStopCancelsActiveJobs(t *testing.T) {
	svc := &stubService{block: make(chan struct{})}
	q := New(10, 1, svc)
	q.Start(t.Context())

	job := NewJob(build.Request{InstanceID: uuid.New()})
	require.NoError(t, q.Enqueue(job))
	waitForStatus(t, q, job.ID, StatusRunning)

	q.Stop(context.Background())

	done, ok := q.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, done.Status)
}

func TestQueueSnapshotIsACopy(t *testing.T) {
	svc := &stubService{}
	q := New(10, 1, svc)
	q.Start(t.Context())
	defer q.Stop(context.Background())

	job := NewJob(build.Request{InstanceID: uuid.New()})
	require.NoError(t, q.Enqueue(job))
	done := waitForStatus(t, q, job.ID, StatusCompleted)

	done.Status = StatusQueued
	again, ok := q.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, again.Status)
}
