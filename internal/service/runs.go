package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// ErrRunInProgress is returned when the credential already has an active run.
var ErrRunInProgress = errors.New("a run is already in progress for this credential")

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req entities.RunRequest, observe Observer) (*entities.RunSummary, []entities.GeneratedItem, error)
}

// RunStatus is a point-in-time copy of a run's state.
type RunStatus struct {
	ID         uuid.UUID                `json:"id"`
	Subject    string                   `json:"subject"`
	Topic      string                   `json:"topic"`
	Running    bool                     `json:"running"`
	Stage      Stage                    `json:"stage"`
	Batch      int                      `json:"batch"`
	Batches    int                      `json:"batches"`
	Generated  int                      `json:"generated"`
	Message    string                   `json:"message"`
	Errors     []string                 `json:"errors"`
	Summary    *entities.RunSummary     `json:"summary,omitempty"`
	Items      []entities.GeneratedItem `json:"items,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

// Run tracks one asynchronous pipeline execution.
type Run struct {
	mu         sync.RWMutex
	status     RunStatus
	credential string
	done       chan struct{}
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID { return r.status.ID }

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Snapshot returns a copy of the current state.
func (r *Run) Snapshot() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.status
	s.Errors = append([]string(nil), r.status.Errors...)
	s.Items = append([]entities.GeneratedItem(nil), r.status.Items...)
	if r.status.Summary != nil {
		sum := *r.status.Summary
		s.Summary = &sum
	}
	return s
}

func (r *Run) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Stage = e.Stage
	r.status.Message = e.Message
	if e.Batches > 0 {
		r.status.Batch = e.Batch
		r.status.Batches = e.Batches
	}
	r.status.Generated = e.Generated
	if e.Err != nil {
		r.status.Errors = append(r.status.Errors, e.Err.Error())
	}
}

func (r *Run) finish(summary *entities.RunSummary, items []entities.GeneratedItem, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.status.Running = false
	r.status.FinishedAt = &now
	r.status.Summary = summary
	r.status.Items = items

	if summary != nil {
		for _, f := range summary.BatchFailures {
			r.status.Errors = append(r.status.Errors, f.Error)
		}
	}
	if err != nil {
		r.status.Stage = StageFailed
		r.status.Message = err.Error()
		r.status.Errors = append(r.status.Errors, err.Error())
		return
	}
	r.status.Stage = StageCompleted
	r.status.Generated = len(items)
}

func (r *Run) finishedBefore(t time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.FinishedAt != nil && r.status.FinishedAt.Before(t)
}

// RunRegistry starts runs in the background and keeps their state for
// inspection. A credential may have at most one active run.
type RunRegistry struct {
	runner    Runner
	logger    *zap.Logger
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[uuid.UUID]*Run
	active map[string]uuid.UUID
}

// NewRunRegistry creates a registry. Finished runs are forgotten after retention.
func NewRunRegistry(runner Runner, retention time.Duration, logger *zap.Logger) *RunRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRegistry{
		runner:    runner,
		logger:    logger,
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[uuid.UUID]*Run),
		active:    make(map[string]uuid.UUID),
	}
}

// Start launches req in the background. It returns ErrRunInProgress when the
// request's credential already has an active run.
func (r *RunRegistry) Start(req entities.RunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cred := credentialKey(req.APIKey)

	r.mu.Lock()
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if _, busy := r.active[cred]; busy {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.pruneLocked()

	run := &Run{
		status: RunStatus{
			ID:        uuid.New(),
			Subject:   req.Subject,
			Topic:     req.EffectiveTopic(),
			Running:   true,
			Stage:     StageGenerating,
			StartedAt: time.Now(),
		},
		credential: cred,
		done:       make(chan struct{}),
	}
	r.runs[run.status.ID] = run
	r.active[cred] = run.status.ID
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(run, req)

	return run, nil
}

func (r *RunRegistry) execute(run *Run, req entities.RunRequest) {
	defer r.wg.Done()
	defer close(run.done)

	log := r.logger.With(zap.String("run_id", run.ID().String()))
	log.Info("run started", zap.String("subject", req.Subject), zap.Int("count", req.Count))

	summary, items, err := r.runner.Run(r.ctx, req, run.observe)
	if err != nil {
		log.Error("run failed", zap.Error(err))
	}
	run.finish(summary, items, err)

	r.mu.Lock()
	delete(r.active, run.credential)
	r.mu.Unlock()
}

// Get returns the run with the given id.
func (r *RunRegistry) Get(id uuid.UUID) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	run, ok := r.runs[id]
	return run, ok
}

// Close cancels active runs and waits for them to return.
func (r *RunRegistry) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *RunRegistry) pruneLocked() {
	if r.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.retention)
	for id, run := range r.runs {
		if run.finishedBefore(cutoff) {
			delete(r.runs, id)
		}
	}
}

func credentialKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
