package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
)

// ErrMissingAPIKey is returned when a run has no credential for the completion endpoint.
var ErrMissingAPIKey = llm.ErrMissingAPIKey

// Pipeline runs extraction, generation, verification, filtering and
// persistence for one request.
type Pipeline struct {
	newCompleter CompleterFactory
	extractor    ReferenceExtractor
	writer       ItemWriter
	notifier     RunNotifier
	cfg          GeneratorConfig
	logger       *zap.Logger
}

// PipelineOption configures optional collaborators of a Pipeline.
type PipelineOption func(*Pipeline)

// WithNotifier announces every completed run through n.
func WithNotifier(n RunNotifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	newCompleter CompleterFactory,
	extractor ReferenceExtractor,
	writer ItemWriter,
	cfg GeneratorConfig,
	logger *zap.Logger,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		newCompleter: newCompleter,
		extractor:    extractor,
		writer:       writer,
		cfg:          cfg,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one request. Batch and verification failures degrade the
// result; a missing credential, an unreadable reference document, a
// cancelled context or a write error abort it. The returned items are the
// accepted ones, in generation order.
func (p *Pipeline) Run(ctx context.Context, req entities.RunRequest, observe Observer) (*entities.RunSummary, []entities.GeneratedItem, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, nil, ErrMissingAPIKey
	}

	topic := req.EffectiveTopic()
	log := p.logger.With(zap.String("subject", req.Subject), zap.String("topic", topic))

	reference := req.ReferenceText
	if req.ReferencePath != "" {
		observe.emit(Event{Stage: StageExtracting, Message: "reading " + req.ReferencePath})

		text, err := p.extractor.Extract(ctx, req.ReferencePath)
		if err != nil {
			return nil, nil, fmt.Errorf("extract reference: %w", err)
		}
		reference = text
		log.Info("reference text loaded", zap.String("path", req.ReferencePath), zap.Int("chars", len([]rune(text))))
	}

	completer := p.newCompleter(req.APIKey)

	gen := NewGenerator(completer, p.cfg, log)
	res, err := gen.Generate(ctx, GenerateParams{
		Subject:       req.Subject,
		Topic:         topic,
		Count:         req.Count,
		ReferenceText: reference,
		Observer:      observe,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate: %w", err)
	}

	summary := &entities.RunSummary{
		Requested:     req.Count,
		Generated:     res.Decoded,
		Rejected:      res.Rejected,
		BatchFailures: res.Failures,
	}

	items := res.Items
	if !req.SkipVerification && len(items) > 0 {
		observe.emit(Event{Stage: StageVerifying, Message: fmt.Sprintf("verifying %d items", len(items)), Generated: len(items)})

		judgments, err := NewVerifier(completer, log).Verify(ctx, items)
		switch {
		case err == nil:
			kept := Filter(items, judgments, log)
			summary.Excluded = len(items) - len(kept)
			summary.Verified = true
			items = kept
		case ctx.Err() != nil:
			return nil, nil, fmt.Errorf("verify: %w", ctx.Err())
		default:
			log.Warn("verification failed, keeping all items", zap.Error(err))
		}
	}

	observe.emit(Event{Stage: StagePersisting, Message: fmt.Sprintf("saving %d items", len(items)), Generated: len(items)})

	accepted := p.writer.Accept(items)
	summary.Rejected += len(items) - len(accepted)

	if req.OutputPath != "" {
		mode := req.WriteMode
		if mode == "" {
			mode = entities.WriteTruncate
		}

		n, err := p.writer.Write(ctx, accepted, req.OutputPath, mode)
		summary.Persisted = n
		if err != nil {
			return summary, accepted, fmt.Errorf("persist: %w", err)
		}
		summary.Output = req.OutputPath
	}

	log.Info("run completed",
		zap.Int("requested", summary.Requested),
		zap.Int("generated", summary.Generated),
		zap.Int("rejected", summary.Rejected),
		zap.Int("excluded", summary.Excluded),
		zap.Int("persisted", summary.Persisted),
		zap.Int("failed_batches", len(summary.BatchFailures)),
	)

	if p.notifier != nil {
		if err := p.notifier.NotifyRunCompleted(ctx, req.Subject, topic, *summary); err != nil {
			log.Warn("failed to send run notification", zap.Error(err))
		}
	}

	observe.emit(Event{Stage: StageCompleted, Message: "done", Generated: len(accepted)})

	return summary, accepted, nil
}

// IsClientError reports whether err was caused by the request itself rather
// than by a dependency.
func IsClientError(err error) bool {
	return errors.Is(err, entities.ErrInvalidRunRequest) || errors.Is(err, ErrMissingAPIKey)
}
