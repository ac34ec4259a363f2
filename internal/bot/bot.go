// Package bot implements the Telegram front end: a two-step wizard that
// asks for a city, then analysis names, and replies with a comparison.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/service"
)

type step string

const (
	stepAwaitCity     step = "await_city"
	stepAwaitAnalyses step = "await_analyses"
)

type userState struct {
	step step
	city models.City
}

const greeting = "👋 Привет! Это бот для поиска анализов по городам.\n\n" +
	"📍 Напиши название города, например: Москва\n" +
	"🔁 Чтобы вернуться к выбору города, пропиши /start\n\n" +
	"⚠️ Важно: вводи точные названия анализов, например:\n" +
	"  — Анализ мочи\n" +
	"  — Витамин D\n\n" +
	"Если хочешь завершить диалог — напиши /stop"

// Bot is the Telegram comparison bot.
type Bot struct {
	api        *tgbotapi.BotAPI
	compareSvc *service.CompareService
	refreshSvc *service.RefreshService
	directory  *cities.Directory
	logger     *slog.Logger

	mu     sync.Mutex
	states map[int64]*userState
}

// New creates a bot connected to the Telegram API.
func New(token string, compareSvc *service.CompareService, refreshSvc *service.RefreshService, directory *cities.Directory, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b := newBot(compareSvc, refreshSvc, directory, logger)
	b.api = api
	return b, nil
}

func newBot(compareSvc *service.CompareService, refreshSvc *service.RefreshService, directory *cities.Directory, logger *slog.Logger) *Bot {
	return &Bot{
		compareSvc: compareSvc,
		refreshSvc: refreshSvc,
		directory:  directory,
		logger:     logger.With("component", "bot"),
		states:     make(map[int64]*userState),
	}
}

// Run polls Telegram for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleUpdate(ctx, update.Message)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	b.logger.Info("message received", "user_id", userID)

	for _, reply := range b.processMessage(ctx, userID, msg.Text) {
		out := tgbotapi.NewMessage(msg.Chat.ID, reply)
		out.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(out); err != nil {
			b.logger.Error("failed to send reply", "user_id", userID, "error", err)
		}
	}
}

// processMessage advances the wizard for one user message and returns
// the replies to send, in order.
func (b *Bot) processMessage(ctx context.Context, userID int64, text string) []string {
	text = strings.TrimSpace(text)

	switch strings.ToLower(text) {
	case "/start":
		b.setState(userID, &userState{step: stepAwaitCity})
		return []string{greeting}
	case "/stop":
		b.clearState(userID)
		return []string{"Диалог завершён. Спасибо!"}
	}

	state := b.getState(userID)
	if state == nil {
		return []string{"Напиши /start чтобы начать."}
	}

	switch state.step {
	case stepAwaitCity:
		return b.handleCity(userID, state, text)
	case stepAwaitAnalyses:
		return b.handleAnalyses(ctx, state, text)
	default:
		b.clearState(userID)
		return []string{"Напиши /start чтобы начать."}
	}
}

func (b *Bot) handleCity(userID int64, state *userState, text string) []string {
	city, ok := b.directory.Lookup(text)
	if !ok {
		return []string{"Город не найден. Попробуйте ещё раз."}
	}
	state.city = city
	state.step = stepAwaitAnalyses
	return []string{
		"Город выбран: " + city.Name + "\n" +
			"Теперь введи через запятую точные названия анализов для сравнения.\n" +
			"Например: Анализ мочи, Витамин D",
	}
}

func (b *Bot) handleAnalyses(ctx context.Context, state *userState, text string) []string {
	var queries []string
	for _, part := range strings.Split(text, ",") {
		if q := strings.TrimSpace(part); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return []string{"Введи хотя бы одно название анализа."}
	}

	replies := []string{"Обновляю данные, если нужно..."}

	// stale or missing snapshots are queued for the background worker
	if _, err := b.refreshSvc.EnsureFresh(ctx, state.city.Slug, false); err != nil {
		b.logger.Warn("refresh enqueue failed", "city", state.city.Slug, "error", err)
	}

	results, err := b.compareSvc.Compare(ctx, state.city.Slug, queries)
	if err != nil {
		if errors.Is(err, service.ErrCatalogUnavailable) {
			return append(replies, "Данные по городу ещё собираются. Попробуй снова через пару минут.")
		}
		b.logger.Error("comparison failed", "city", state.city.Slug, "error", err)
		return append(replies, "Произошла ошибка при сравнении. Попробуй позже.")
	}

	return append(replies, FormatResults(results))
}

func (b *Bot) getState(userID int64) *userState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[userID]
}

func (b *Bot) setState(userID int64, state *userState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, userID)
}
