package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

var (
	errUsage = errors.New("usage")
	errCount = errors.New("invalid count")
)

// parseGenerateArgs reads "Materia | Argomento | N"; topic and count are optional.
func parseGenerateArgs(args string, defaultCount, maxCount int) (subject, topic string, count int, err error) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	subject = parts[0]
	if subject == "" || len(parts) > 3 {
		return "", "", 0, errUsage
	}
	if len(parts) > 1 {
		topic = parts[1]
	}

	count = defaultCount
	if len(parts) > 2 && parts[2] != "" {
		count, err = strconv.Atoi(parts[2])
		if err != nil {
			return "", "", 0, errCount
		}
	}
	if count < 1 || (maxCount > 0 && count > maxCount) {
		return "", "", 0, errCount
	}

	return subject, topic, count, nil
}

// generateHandler starts a background run from a /genera command.
func (h *Handler) generateHandler(args string) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		subject, topic, count, err := parseGenerateArgs(args, h.defaults.Count, h.defaults.MaxCount)
		switch {
		case errors.Is(err, errUsage):
			h.send(newPlainMessage(chatID, msgUseGenerate))
			return nil
		case errors.Is(err, errCount):
			h.send(newPlainMessage(chatID, fmt.Sprintf(msgInvalidCount, h.defaults.MaxCount)))
			return nil
		}

		run, err := h.runs.Start(entities.RunRequest{
			Subject:    subject,
			Topic:      topic,
			Count:      count,
			OutputPath: h.defaults.OutputPath,
			WriteMode:  entities.WriteAppend,
			APIKey:     h.defaults.APIKey,
		})
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}

		h.send(newMessage(chatID, RunStartedMarkdownV2(run.ID().String(), subject, count)))
		return nil
	}
}

// statusHandler reports the state of a run from a /stato command.
func (h *Handler) statusHandler(args string) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		arg := strings.TrimSpace(args)
		if arg == "" {
			h.send(newPlainMessage(chatID, msgUseStatus))
			return nil
		}

		id, err := uuid.Parse(arg)
		if err != nil {
			h.send(newPlainMessage(chatID, msgUseStatus))
			return nil
		}

		run, ok := h.runs.Get(id)
		if !ok {
			h.send(newPlainMessage(chatID, msgRunNotFound))
			return nil
		}

		snap := run.Snapshot()
		msg := newMessage(chatID, StatusMarkdownV2(snap))
		msg.ReplyMarkup = buildStatusKeyboard(snap)
		h.send(msg)
		return nil
	}
}
