package telegram

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/service"
)

type HandlerFunc func(ctx context.Context, chatID int64) error

// withErrorHandling turns the error of a command into a reply. Busy
// credentials and a missing API key get their own message; anything else is
// logged and reported as a failure of that command.
func (h *Handler) withErrorHandling(command string, fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		err := fn(ctx, chatID)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrRunInProgress):
			h.sendError(chatID, msgRunBusy)
		case errors.Is(err, service.ErrMissingAPIKey):
			h.sendError(chatID, msgNoAPIKey)
		default:
			h.logger.Error("command failed",
				zap.String("command", command),
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			h.sendError(chatID, fmt.Sprintf(msgCommandFailed, command))
		}
		return nil
	}
}
