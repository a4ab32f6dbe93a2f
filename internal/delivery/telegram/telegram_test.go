package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/service"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	edits   []tgbotapi.EditMessageTextConfig
	answers []tgbotapi.CallbackConfig
	err     error
	updates chan tgbotapi.Update
	stopped bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		b.sent = append(b.sent, msg)
	case tgbotapi.EditMessageTextConfig:
		b.edits = append(b.edits, msg)
	}
	return tgbotapi.Message{}, b.err
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		b.answers = append(b.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

// instantRunner finishes every run immediately.
type instantRunner struct{}

func (instantRunner) Run(_ context.Context, req entities.RunRequest, _ service.Observer) (*entities.RunSummary, []entities.GeneratedItem, error) {
	return &entities.RunSummary{Requested: req.Count, Generated: req.Count, Persisted: req.Count, Output: req.OutputPath}, nil, nil
}

// itemsRunner finishes every run with two accepted items.
type itemsRunner struct{}

func (itemsRunner) Run(_ context.Context, req entities.RunRequest, _ service.Observer) (*entities.RunSummary, []entities.GeneratedItem, error) {
	items := []entities.GeneratedItem{testItem("Prima domanda?"), testItem("Seconda domanda?")}
	return &entities.RunSummary{Requested: req.Count, Generated: 2, Persisted: 2}, items, nil
}

func testItem(prompt string) entities.GeneratedItem {
	return entities.GeneratedItem{
		Subject: "Cardiologia",
		Topic:   "Aritmie",
		Prompt:  prompt,
		Options: []entities.Option{
			{ID: 1, Text: "Amiodarone", IsCorrect: true},
			{ID: 2, Text: "Digossina"},
			{ID: 3, Text: "Verapamil"},
			{ID: 4, Text: "Adenosina"},
			{ID: 5, Text: "Atropina"},
		},
		CorrectAnswerText: "Amiodarone",
		Explanation:       "Farmaco di classe III.",
	}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func startedRunID(t *testing.T, bot *fakeBot) string {
	t.Helper()
	for _, line := range strings.Split(bot.last(t).Text, "\n") {
		if strings.HasPrefix(line, "ID: `") {
			return strings.Trim(strings.TrimPrefix(line, "ID: "), "`")
		}
	}
	t.Fatal("no run id in reply")
	return ""
}

func waitRun(t *testing.T, reg *service.RunRegistry, id string) {
	t.Helper()
	run, ok := reg.Get(mustParse(t, id))
	require.True(t, ok)
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

// blockingRunner holds every run until ctx ends.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ entities.RunRequest, _ service.Observer) (*entities.RunSummary, []entities.GeneratedItem, error) {
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func mustParse(t *testing.T, id string) uuid.UUID {
	t.Helper()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	return parsed
}

func newTestHandler(t *testing.T, runner service.Runner, apiKey string) (*Handler, *fakeBot, *service.RunRegistry) {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := service.NewRunRegistry(runner, time.Hour, log)
	t.Cleanup(reg.Close)

	bot := &fakeBot{}
	h := NewHandler(bot, reg, 42, RunDefaults{APIKey: apiKey, Count: 10, MaxCount: 50, OutputPath: "out.jsonl"}, log)
	return h, bot, reg
}

func TestSummaryMarkdownV2(t *testing.T) {
	text := SummaryMarkdownV2("Cardiologia", "Aritmie (FA)", entities.RunSummary{
		Requested: 10,
		Generated: 9,
		Rejected:  1,
		Excluded:  2,
		Persisted: 6,
		Verified:  true,
		Output:    "domande_generate.jsonl",
		BatchFailures: []entities.BatchFailure{
			{Batch: 2, Size: 5, Error: "completion failed after 3 attempts"},
		},
	})

	assert.Contains(t, text, "*Generazione completata*")
	assert.Contains(t, text, `Argomento: Aritmie \(FA\)`)
	assert.Contains(t, text, "*Salvate: 6*")
	assert.Contains(t, text, "Escluse dalla verifica: 2")
	assert.Contains(t, text, "`domande_generate.jsonl`")
	assert.Contains(t, text, "Batch falliti: 1")
	assert.False(t, strings.HasSuffix(text, "\n"))
}

func TestSummaryMarkdownV2_Unverified(t *testing.T) {
	text := SummaryMarkdownV2("Pediatria", "Pediatria", entities.RunSummary{Requested: 2})
	assert.Contains(t, text, "Verifica non eseguita")
	assert.NotContains(t, text, "Argomento")
	assert.NotContains(t, text, "File")
}

func TestNotifier_NotifyRunCompleted(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, 99, zaptest.NewLogger(t))

	require.NoError(t, n.NotifyRunCompleted(context.Background(), "Pediatria", "Pediatria", entities.RunSummary{Persisted: 3}))
	msg := bot.last(t)
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)

	bot.err = errors.New("forbidden")
	assert.Error(t, n.NotifyRunCompleted(context.Background(), "Pediatria", "", entities.RunSummary{}))
}

func TestParseGenerateArgs(t *testing.T) {
	tests := []struct {
		args    string
		subject string
		topic   string
		count   int
		err     error
	}{
		{args: "Cardiologia", subject: "Cardiologia", count: 10},
		{args: "Cardiologia | Aritmie", subject: "Cardiologia", topic: "Aritmie", count: 10},
		{args: " Cardiologia | Aritmie | 5 ", subject: "Cardiologia", topic: "Aritmie", count: 5},
		{args: "Cardiologia || 7", subject: "Cardiologia", count: 7},
		{args: "", err: errUsage},
		{args: "| Aritmie", err: errUsage},
		{args: "a | b | 3 | d", err: errUsage},
		{args: "Cardiologia | | tre", err: errCount},
		{args: "Cardiologia | | 0", err: errCount},
		{args: "Cardiologia | | 51", err: errCount},
	}

	for _, tt := range tests {
		subject, topic, count, err := parseGenerateArgs(tt.args, 10, 50)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.args)
			continue
		}
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.subject, subject)
		assert.Equal(t, tt.topic, topic)
		assert.Equal(t, tt.count, count)
	}
}

func TestHandler_GenerateAndStatus(t *testing.T) {
	h, bot, reg := newTestHandler(t, instantRunner{}, "sk-test")
	ctx := context.Background()

	h.handleUpdate(ctx, command(42, "/genera Cardiologia | Aritmie | 3"))

	started := bot.last(t)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, started.ParseMode)
	assert.Contains(t, started.Text, "Generazione avviata: 3 domande di Cardiologia")

	id := startedRunID(t, bot)
	waitRun(t, reg, id)

	h.handleUpdate(ctx, command(42, "/stato "+id))
	status := bot.last(t)
	assert.Contains(t, status.Text, "Stato: completata")
	assert.Contains(t, status.Text, "Salvate: 3 su 3 richieste")
}

func TestHandler_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("busy credential", func(t *testing.T) {
		h, bot, _ := newTestHandler(t, blockingRunner{}, "sk-test")
		h.handleUpdate(ctx, command(42, "/genera Cardiologia"))
		h.handleUpdate(ctx, command(42, "/genera Pediatria"))
		assert.Equal(t, msgRunBusy, bot.last(t).Text)
	})

	t.Run("missing key", func(t *testing.T) {
		h, bot, _ := newTestHandler(t, instantRunner{}, "")
		h.handleUpdate(ctx, command(42, "/genera Cardiologia"))
		assert.Equal(t, msgNoAPIKey, bot.last(t).Text)
	})

	t.Run("usage", func(t *testing.T) {
		h, bot, _ := newTestHandler(t, instantRunner{}, "sk")
		h.handleUpdate(ctx, command(42, "/genera"))
		assert.Equal(t, msgUseGenerate, bot.last(t).Text)

		h.handleUpdate(ctx, command(42, "/stato non-un-id"))
		assert.Equal(t, msgUseStatus, bot.last(t).Text)

		h.handleUpdate(ctx, command(42, "/stato 6f1c1f5e-4a7c-4d36-9a52-3b1e8d1f0a11"))
		assert.Equal(t, msgRunNotFound, bot.last(t).Text)

		h.handleUpdate(ctx, command(42, "/boh"))
		assert.Equal(t, msgUnknownCommand, bot.last(t).Text)
	})

	t.Run("foreign chat ignored", func(t *testing.T) {
		h, bot, _ := newTestHandler(t, instantRunner{}, "sk")
		h.handleUpdate(ctx, command(7, "/genera Cardiologia"))
		assert.Empty(t, bot.sent)
	})
}

func TestHandler_CommandFailureNamesCommand(t *testing.T) {
	h, bot, _ := newTestHandler(t, instantRunner{}, "sk")

	err := h.withErrorHandling("stato", func(context.Context, int64) error {
		return errors.New("registry closed")
	})(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, "Il comando /stato non è riuscito. Riprova più tardi.", bot.last(t).Text)
}

func TestHandler_RunStopsWithContext(t *testing.T) {
	h, bot, _ := newTestHandler(t, instantRunner{}, "sk")
	bot.updates = make(chan tgbotapi.Update, 1)
	bot.updates <- command(42, "/help")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		bot.mu.Lock()
		defer bot.mu.Unlock()
		return len(bot.sent) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, bot.stopped)
	assert.Equal(t, msgHelp, bot.sent[0].Text)
}

func TestCallbackData(t *testing.T) {
	id := uuid.MustParse("6f1c1f5e-4a7c-4d36-9a52-3b1e8d1f0a11")

	data := decodeCallback(buildItemsCallback(id, 3))
	assert.Equal(t, actionItems, data.Action)
	got, err := data.runID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	page, err := data.page()
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.LessOrEqual(t, len(buildItemsCallback(id, 49)), 64)

	data = decodeCallback(buildStatusCallback(id))
	assert.Equal(t, actionStatus, data.Action)
	_, err = data.page()
	assert.ErrorIs(t, err, errBadCallback)

	_, err = decodeCallback("items").runID()
	assert.ErrorIs(t, err, errBadCallback)
	_, err = decodeCallback("items:" + id.String() + ":-1").page()
	assert.ErrorIs(t, err, errBadCallback)
}

func TestItemMarkdownV2(t *testing.T) {
	text := ItemMarkdownV2(testItem("Qual è il trattamento (acuto)?"), 0, 2)

	assert.Contains(t, text, "*Domanda 1/2*")
	assert.Contains(t, text, "Cardiologia · Aritmie")
	assert.Contains(t, text, `Qual è il trattamento \(acuto\)?`)
	assert.Contains(t, text, `✅ 1\. Amiodarone`)
	assert.Contains(t, text, `▫️ 2\. Digossina`)
	assert.Contains(t, text, `_Farmaco di classe III\._`)
}

func TestHandler_StatusCallbacks(t *testing.T) {
	h, bot, reg := newTestHandler(t, itemsRunner{}, "sk")
	ctx := context.Background()

	h.handleUpdate(ctx, command(42, "/genera Cardiologia | Aritmie | 2"))
	id := startedRunID(t, bot)
	waitRun(t, reg, id)

	h.handleUpdate(ctx, command(42, "/stato "+id))
	kb, ok := bot.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "items:"+id+":0", *kb.InlineKeyboard[1][0].CallbackData)

	h.handleUpdate(ctx, callback(42, "items:"+id+":0"))
	require.Len(t, bot.edits, 1)
	edit := bot.edits[0]
	assert.Equal(t, 7, edit.MessageID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, edit.ParseMode)
	assert.Contains(t, edit.Text, "Prima domanda?")
	require.NotNil(t, edit.ReplyMarkup)
	require.Len(t, edit.ReplyMarkup.InlineKeyboard, 2)
	assert.Equal(t, "items:"+id+":1", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)

	h.handleUpdate(ctx, callback(42, "status:"+id))
	require.Len(t, bot.edits, 2)
	assert.Contains(t, bot.edits[1].Text, "Stato: completata")

	h.handleUpdate(ctx, callback(42, "items:"+id+":9"))
	assert.Len(t, bot.edits, 2)
	assert.Equal(t, msgNoItems, bot.answers[len(bot.answers)-1].Text)

	h.handleUpdate(ctx, callback(42, "status:6f1c1f5e-4a7c-4d36-9a52-3b1e8d1f0a11"))
	assert.Equal(t, msgRunNotFound, bot.answers[len(bot.answers)-1].Text)

	h.handleUpdate(ctx, callback(7, "status:"+id))
	assert.Len(t, bot.answers, 4)
}
