package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/config"
	"github.com/aliskhannn/ssm-generator/internal/delivery/telegram"
	"github.com/aliskhannn/ssm-generator/internal/extract"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
	"github.com/aliskhannn/ssm-generator/internal/infra/postgres"
	pgrepo "github.com/aliskhannn/ssm-generator/internal/infra/postgres/repository"
	"github.com/aliskhannn/ssm-generator/internal/repository"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

// app holds the components shared by the generate and serve commands.
type app struct {
	pipeline *service.Pipeline
	writer   *repository.JSONLWriter
	items    *pgrepo.ItemRepository // nil without DATABASE_URL
	bot      *tgbotapi.BotAPI       // nil without telegram settings

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	var writerOpts []repository.WriterOption
	if cfg.DB.Enabled() {
		items, err := a.connectDatabase(ctx, cfg.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.items = items
		writerOpts = append(writerOpts, repository.WithMirror(items))
		logger.Info("database mirror enabled")
	}

	a.writer = repository.NewJSONLWriter(service.NewStructuralValidator(logger), logger, writerOpts...)

	var pipelineOpts []service.PipelineOption
	if cfg.Telegram.Enabled() {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		a.bot = bot
		pipelineOpts = append(pipelineOpts, service.WithNotifier(telegram.NewNotifier(bot, cfg.Telegram.ChatID, logger)))
		logger.Info("telegram notifications enabled", zap.String("bot", bot.Self.UserName))
	}

	a.pipeline = service.NewPipeline(
		completerFactory(cfg.LLM, logger),
		extract.NewExtractor(logger),
		a.writer,
		service.GeneratorConfig{
			BatchSize:      cfg.Generation.BatchSize,
			BatchDelay:     cfg.Generation.BatchDelay,
			ReferenceLimit: cfg.Generation.ReferenceLimit,
		},
		logger,
		pipelineOpts...,
	)

	return a, nil
}

func (a *app) connectDatabase(ctx context.Context, db config.DB) (*pgrepo.ItemRepository, error) {
	dsn, err := db.DSN()
	if err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{
		MaxConns:        int32(db.MaxConnections),
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	items := pgrepo.NewItemRepository(pool, postgres.NewTransactor(pool))
	if err := items.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}
	return items, nil
}

// Close releases external connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// completerFactory builds one completion client per credential.
func completerFactory(c config.LLM, logger *zap.Logger) service.CompleterFactory {
	return func(apiKey string) service.Completer {
		return llm.NewClient(llm.Config{
			APIKey:      apiKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			Timeout:     c.Timeout,
			MaxRetries:  c.MaxRetries,
			RetryDelay:  c.RetryDelay,
		}, logger)
	}
}
