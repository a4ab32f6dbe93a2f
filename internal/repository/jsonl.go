package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// ItemValidator checks an item against the record contract.
type ItemValidator interface {
	Validate(item entities.GeneratedItem) error
}

// ItemMirror receives every batch of items written to the record store.
type ItemMirror interface {
	SaveItems(ctx context.Context, items []entities.GeneratedItem) error
}

// JSONLWriter stores generated items as newline-delimited JSON.
type JSONLWriter struct {
	validator ItemValidator
	mirror    ItemMirror
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// WriterOption configures a JSONLWriter.
type WriterOption func(*JSONLWriter)

// WithMirror copies every successful write to m. Mirror failures are logged only.
func WithMirror(m ItemMirror) WriterOption {
	return func(w *JSONLWriter) { w.mirror = m }
}

// NewJSONLWriter creates a new JSONLWriter.
func NewJSONLWriter(validator ItemValidator, logger *zap.Logger, opts ...WriterOption) *JSONLWriter {
	w := &JSONLWriter{
		validator: validator,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Accept backfills defaults and returns the items that pass validation, in order.
func (w *JSONLWriter) Accept(items []entities.GeneratedItem) []entities.GeneratedItem {
	accepted := make([]entities.GeneratedItem, 0, len(items))
	for i, item := range items {
		item = item.WithDefaults()
		if err := w.validator.Validate(item); err != nil {
			w.logger.Warn("skipping invalid item",
				zap.Int("position", i),
				zap.String("prompt", item.Preview(50)),
				zap.Error(err),
			)
			continue
		}
		accepted = append(accepted, item)
	}
	return accepted
}

// Persist validates items and writes the accepted ones to path. It returns
// the number of lines written, never more than len(items).
func (w *JSONLWriter) Persist(ctx context.Context, items []entities.GeneratedItem, path string, mode entities.WriteMode) (int, error) {
	return w.Write(ctx, w.Accept(items), path, mode)
}

// Write stores already accepted items at path, one compact JSON object per
// line. Truncate mode replaces the file, append mode adds to it. Concurrent
// writes to the same path are serialised.
func (w *JSONLWriter) Write(ctx context.Context, accepted []entities.GeneratedItem, path string, mode entities.WriteMode) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	lock := w.lockFor(path)
	lock.Lock()
	n, err := writeLines(accepted, path, mode)
	lock.Unlock()
	if err != nil {
		return n, err
	}

	w.logger.Info("items saved", zap.String("path", path), zap.Int("written", n), zap.String("mode", string(mode)))

	if w.mirror != nil && n > 0 {
		if err := w.mirror.SaveItems(ctx, accepted); err != nil {
			w.logger.Warn("failed to mirror items", zap.Error(err))
		}
	}

	return n, nil
}

func writeLines(items []entities.GeneratedItem, path string, mode entities.WriteMode) (n int, err error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == entities.WriteAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	n, err = encodeLines(f, items)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// encodeLines writes one JSON object per line. Each line is a single Write,
// so n counts exactly the lines handed to w before a failure.
func encodeLines(w io.Writer, items []entities.GeneratedItem) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (w *JSONLWriter) lockFor(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.locks[key]
	if !ok {
		l = &sync.Mutex{}
		w.locks[key] = l
	}
	return l
}

// ResolveAppendTarget returns preferred when it exists and fallback otherwise.
func ResolveAppendTarget(preferred, fallback string) string {
	if _, err := os.Stat(preferred); err == nil {
		return preferred
	} else if !errors.Is(err, fs.ErrNotExist) {
		return preferred
	}
	return fallback
}
