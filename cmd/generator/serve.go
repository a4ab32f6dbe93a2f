package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aliskhannn/ssm-generator/internal/delivery/httpapi"
	"github.com/aliskhannn/ssm-generator/internal/delivery/telegram"
	"github.com/aliskhannn/ssm-generator/internal/scheduler"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web API, scheduled jobs and the Telegram bot",
	Long: `Serves the HTTP API. Configured schedule.jobs run in the background and,
when TELEGRAM_API_TOKEN and telegram.chat_id are set, the bot accepts
/genera and /stato commands from that chat.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	registry := service.NewRunRegistry(a.pipeline, cfg.HTTP.RunRetention, logger)
	defer registry.Close()

	var store httpapi.ItemStore
	if a.items != nil {
		store = a.items
	}

	api := httpapi.NewServer(registry, a.writer, store, httpapi.Options{
		APIKey:             cfg.LLM.APIKey,
		Model:              cfg.LLM.Model,
		DefaultCount:       cfg.Generation.DefaultCount,
		MaxCount:           cfg.Generation.MaxCount,
		SyncTimeout:        cfg.HTTP.SyncTimeout,
		OutputPath:         cfg.Output.Path,
		AppendPath:         cfg.Output.AppendPath,
		AppendFallbackPath: cfg.Output.AppendFallbackPath,
		TelegramEnabled:    a.bot != nil,
	}, logger)

	addr := cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return scheduler.New(registry, cfg.Schedule.Jobs, scheduler.Defaults{
			APIKey:     cfg.LLM.APIKey,
			Count:      cfg.Generation.DefaultCount,
			OutputPath: cfg.Output.Path,
		}, logger).Start(gctx)
	})

	if a.bot != nil {
		registerBotCommands(a.bot)

		handler := telegram.NewHandler(a.bot, registry, cfg.Telegram.ChatID, telegram.RunDefaults{
			APIKey:     cfg.LLM.APIKey,
			Count:      cfg.Generation.DefaultCount,
			MaxCount:   cfg.Generation.MaxCount,
			OutputPath: cfg.Output.Path,
		}, logger)

		g.Go(func() error {
			if err := handler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("telegram handler: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func registerBotCommands(bot *tgbotapi.BotAPI) {
	commands := []tgbotapi.BotCommand{
		{Command: "genera", Description: "Genera domande (Materia | Argomento | N)"},
		{Command: "stato", Description: "Stato di una generazione"},
		{Command: "help", Description: "Aiuto"},
	}

	if _, err := bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		logger.Warn("failed to set bot commands", zap.Error(err))
	}
}
