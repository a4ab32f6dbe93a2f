package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
	"github.com/aliskhannn/ssm-generator/internal/prompts"
)

// DefaultBatchSize is the largest number of items requested in one call.
const DefaultBatchSize = 5

// GeneratorConfig tunes batching.
type GeneratorConfig struct {
	BatchSize      int           // items per call, DefaultBatchSize when zero
	BatchDelay     time.Duration // pause between consecutive batches
	ReferenceLimit int           // reference characters embedded in each prompt
}

// GenerateParams describes the items a Generator should produce.
type GenerateParams struct {
	Subject       string
	Topic         string
	Count         int
	ReferenceText string
	Observer      Observer
}

// GenerateResult collects the outcome of all batches.
type GenerateResult struct {
	Items    []entities.GeneratedItem
	Batches  int                     // batches planned
	Decoded  int                     // array elements returned by the model
	Rejected int                     // elements refused by the item constructor
	Failures []entities.BatchFailure // batches that produced nothing
}

// Generator turns a requested count into sequential batch calls.
type Generator struct {
	completer Completer
	cfg       GeneratorConfig
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a Generator.
func NewGenerator(completer Completer, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ReferenceLimit <= 0 {
		cfg.ReferenceLimit = prompts.DefaultReferenceLimit
	}
	return &Generator{
		completer: completer,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// PlanBatches splits total into ceil(total/maxBatch) sizes, each at most
// maxBatch, summing to total.
func PlanBatches(total, maxBatch int) []int {
	if total <= 0 {
		return nil
	}
	if maxBatch <= 0 {
		maxBatch = DefaultBatchSize
	}

	sizes := make([]int, 0, (total+maxBatch-1)/maxBatch)
	for remaining := total; remaining > 0; remaining -= maxBatch {
		sizes = append(sizes, min(remaining, maxBatch))
	}
	return sizes
}

// Generate requests p.Count items in batches. A batch whose call or decode
// fails is recorded in Failures and skipped. The returned error is non-nil
// only when ctx ends; the partial result is returned alongside it.
func (g *Generator) Generate(ctx context.Context, p GenerateParams) (*GenerateResult, error) {
	sizes := PlanBatches(p.Count, g.cfg.BatchSize)
	res := &GenerateResult{
		Items:   make([]entities.GeneratedItem, 0, p.Count),
		Batches: len(sizes),
	}

	for i, size := range sizes {
		batch := i + 1

		if i > 0 {
			if err := g.sleep(ctx, g.cfg.BatchDelay); err != nil {
				return res, err
			}
		}

		g.logger.Info("generating batch",
			zap.Int("batch", batch),
			zap.Int("batches", len(sizes)),
			zap.Int("size", size),
		)
		p.Observer.emit(Event{
			Stage:     StageGenerating,
			Message:   fmt.Sprintf("batch %d/%d", batch, len(sizes)),
			Batch:     batch,
			Batches:   len(sizes),
			Generated: len(res.Items),
		})

		items, decoded, rejected, err := g.generateBatch(ctx, p, size)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			g.logger.Error("batch failed", zap.Int("batch", batch), zap.Error(err))
			res.Failures = append(res.Failures, entities.BatchFailure{
				Batch: batch,
				Size:  size,
				Error: err.Error(),
			})
			continue
		}

		res.Decoded += decoded
		res.Rejected += rejected
		res.Items = append(res.Items, items...)

		g.logger.Info("batch completed",
			zap.Int("batch", batch),
			zap.Int("accepted", len(items)),
			zap.Int("rejected", rejected),
		)
	}

	return res, nil
}

func (g *Generator) generateBatch(ctx context.Context, p GenerateParams, size int) ([]entities.GeneratedItem, int, int, error) {
	prompt := prompts.Generation{
		Subject:        p.Subject,
		Topic:          p.Topic,
		Count:          size,
		ReferenceText:  p.ReferenceText,
		ReferenceLimit: g.cfg.ReferenceLimit,
	}.Build()

	text, err := g.completer.Complete(ctx, []llm.Message{
		llm.SystemMessage(prompts.GenerationSystem),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return nil, 0, 0, err
	}

	elements, err := llm.DecodeArray(text)
	if err != nil {
		return nil, 0, 0, err
	}

	raws, decodeErrs := entities.ParseRawItems(elements)
	for _, derr := range decodeErrs {
		g.logger.Warn("skipping undecodable element", zap.Error(derr))
	}

	items := make([]entities.GeneratedItem, 0, len(raws))
	rejected := len(decodeErrs)
	for _, raw := range raws {
		item, err := entities.NewGeneratedItem(raw)
		if err != nil {
			if !errors.Is(err, entities.ErrValidationRejected) {
				return nil, 0, 0, err
			}
			rejected++
			g.logger.Warn("item rejected", zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, len(elements), rejected, nil
}
