package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedRunner blocks every run until release is closed or ctx ends.
type gatedRunner struct {
	release chan struct{}
	err     error
}

func (r *gatedRunner) Run(ctx context.Context, req entities.RunRequest, observe Observer) (*entities.RunSummary, []entities.GeneratedItem, error) {
	observe(Event{Stage: StageGenerating, Batch: 1, Batches: 2, Message: "batch 1/2"})

	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if r.err != nil {
		return nil, nil, r.err
	}

	items := []entities.GeneratedItem{validItem("Q0?")}
	return &entities.RunSummary{Requested: req.Count, Generated: 1, Persisted: 1}, items, nil
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func request(key string) entities.RunRequest {
	return entities.RunRequest{Subject: "Cardiologia", Count: 1, APIKey: key}
}

func TestRunRegistry_StartAndSnapshot(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	reg := NewRunRegistry(runner, time.Hour, zaptest.NewLogger(t))
	defer reg.Close()

	run, err := reg.Start(request("sk-a"))
	require.NoError(t, err)

	got, ok := reg.Get(run.ID())
	require.True(t, ok)
	assert.Same(t, run, got)
	assert.True(t, run.Snapshot().Running)

	close(runner.release)
	waitDone(t, run)

	s := run.Snapshot()
	assert.False(t, s.Running)
	assert.Equal(t, StageCompleted, s.Stage)
	require.NotNil(t, s.Summary)
	assert.Equal(t, 1, s.Summary.Persisted)
	assert.Len(t, s.Items, 1)
	assert.NotNil(t, s.FinishedAt)
	assert.Equal(t, 2, s.Batches)
}

func TestRunRegistry_RejectsConcurrentRunForSameCredential(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	reg := NewRunRegistry(runner, time.Hour, zaptest.NewLogger(t))
	defer reg.Close()

	first, err := reg.Start(request("sk-a"))
	require.NoError(t, err)

	_, err = reg.Start(request("sk-a"))
	assert.True(t, errors.Is(err, ErrRunInProgress))

	other, err := reg.Start(request("sk-b"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())

	close(runner.release)
	waitDone(t, first)
	waitDone(t, other)

	// The credential is free again once its run has finished.
	again, err := reg.Start(request("sk-a"))
	require.NoError(t, err)
	waitDone(t, again)
}

func TestRunRegistry_RecordsFailure(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{}), err: errors.New("boom")}
	close(runner.release)
	reg := NewRunRegistry(runner, time.Hour, zaptest.NewLogger(t))
	defer reg.Close()

	run, err := reg.Start(request("sk-a"))
	require.NoError(t, err)
	waitDone(t, run)

	s := run.Snapshot()
	assert.Equal(t, StageFailed, s.Stage)
	assert.Contains(t, s.Errors, "boom")
	assert.Nil(t, s.Summary)
}

func TestRunRegistry_StartValidatesRequest(t *testing.T) {
	reg := NewRunRegistry(&gatedRunner{}, time.Hour, zaptest.NewLogger(t))
	defer reg.Close()

	_, err := reg.Start(entities.RunRequest{Subject: "Cardiologia", Count: 1})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = reg.Start(entities.RunRequest{Count: 1, APIKey: "sk"})
	assert.True(t, errors.Is(err, entities.ErrInvalidRunRequest))
}

func TestRunRegistry_CloseCancelsActiveRuns(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	reg := NewRunRegistry(runner, time.Hour, zaptest.NewLogger(t))

	run, err := reg.Start(request("sk-a"))
	require.NoError(t, err)

	reg.Close()
	waitDone(t, run)
	assert.Equal(t, StageFailed, run.Snapshot().Stage)

	_, err = reg.Start(request("sk-b"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunRegistry_GetUnknown(t *testing.T) {
	reg := NewRunRegistry(&gatedRunner{}, time.Hour, zaptest.NewLogger(t))
	defer reg.Close()

	_, ok := reg.Get(uuid.New())
	assert.False(t, ok)
}
