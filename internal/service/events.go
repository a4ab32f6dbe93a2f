package service

import (
	"context"
	"time"
)

// Stage names a step of a pipeline run.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageGenerating Stage = "generating"
	StageVerifying  Stage = "verifying"
	StagePersisting Stage = "persisting"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Event is a progress notification emitted while a run advances.
type Event struct {
	Stage     Stage
	Message   string
	Batch     int // 1-based, set during generation
	Batches   int
	Generated int // items accepted so far
	Err       error
}

// Observer receives progress events. It is called synchronously from the
// goroutine executing the run and must not block.
type Observer func(Event)

func (o Observer) emit(e Event) {
	if o != nil {
		o(e)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
