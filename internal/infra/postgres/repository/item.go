package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/postgres"
)

const schema = `
	CREATE TABLE IF NOT EXISTS generated_items (
		id                  BIGSERIAL PRIMARY KEY,
		subject             TEXT        NOT NULL,
		topic               TEXT        NOT NULL,
		prompt              TEXT        NOT NULL,
		correct_answer_text TEXT        NOT NULL,
		payload             JSONB       NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS generated_items_subject_idx ON generated_items (subject, topic);
`

// ItemRepository mirrors persisted items into Postgres.
type ItemRepository struct {
	db         postgres.DBTX
	transactor *postgres.Transactor
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db postgres.DBTX, transactor *postgres.Transactor) *ItemRepository {
	return &ItemRepository{db: db, transactor: transactor}
}

// EnsureSchema creates the items table if it does not exist.
func (r *ItemRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveItems inserts items in a single transaction.
func (r *ItemRepository) SaveItems(ctx context.Context, items []entities.GeneratedItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO generated_items (subject, topic, prompt, correct_answer_text, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item: %w", err)
		}
		batch.Queue(query, item.Subject, item.Topic, item.Prompt, item.CorrectAnswerText, payload, now)
	}

	return r.transactor.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range items {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert item: %w", err)
			}
		}
		return br.Close()
	})
}

// SubjectCount is the number of mirrored items for one subject and topic.
type SubjectCount struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Count   int    `json:"count"`
}

// CountBySubject returns how many items are stored per subject and topic.
func (r *ItemRepository) CountBySubject(ctx context.Context) ([]SubjectCount, error) {
	query := `
		SELECT subject, topic, COUNT(*)
		FROM generated_items
		GROUP BY subject, topic
		ORDER BY subject, topic
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	var out []SubjectCount
	for rows.Next() {
		var c SubjectCount
		if err := rows.Scan(&c.Subject, &c.Topic, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// ListBySubject returns the most recent items of a subject, newest first.
func (r *ItemRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]entities.GeneratedItem, error) {
	query := `
		SELECT payload
		FROM generated_items
		WHERE subject = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []entities.GeneratedItem
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		var item entities.GeneratedItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
