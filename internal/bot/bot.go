// Package bot wraps the Telegram transport: sending and editing messages,
// delivering media, and dispatching inbound updates. Updates for one chat
// are processed strictly in arrival order; different chats run in parallel.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/logger"
	"github.com/obadiaz/lyricsbot/internal/retry"
)

// Handler processes one inbound update.
type Handler func(update tgbotapi.Update)

// workerIdleTimeout is how long a chat's worker sticks around without
// traffic before tearing itself down.
const workerIdleTimeout = 10 * time.Minute

// Bot is the Telegram client plus the per-chat dispatch machinery.
type Bot struct {
	Client *tgbotapi.BotAPI
	name   string

	stopOnce sync.Once
	stopChan chan struct{}

	workersMu   sync.Mutex
	workers     map[int64]chan tgbotapi.Update
	idleTimeout time.Duration

	httpServer *http.Server
}

// New creates a bot instance around the given token.
func New(name, token string) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot client: %w", err)
	}

	return &Bot{
		Client:      client,
		name:        name,
		stopChan:    make(chan struct{}),
		workers:     make(map[int64]chan tgbotapi.Update),
		idleTimeout: workerIdleTimeout,
	}, nil
}

// StartPolling consumes updates via long polling. Blocks until Stop.
func (b *Bot) StartPolling(handle Handler) {
	logger.Info("authorized on account",
		zap.String("bot", b.name), zap.String("username", b.Client.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.Client.GetUpdatesChan(updateConfig)

	for {
		select {
		case update := <-updates:
			b.dispatch(update, handle)
		case <-b.stopChan:
			b.Client.StopReceivingUpdates()
			return
		}
	}
}

// StartWebhook registers the webhook with Telegram (retrying rate-limited
// registration with the server-given backoff) and serves updates plus a
// liveness route over HTTP. Blocks until Stop.
func (b *Bot) StartWebhook(webhookURL string, port int, handle Handler) error {
	logger.Info("authorized on account",
		zap.String("bot", b.name), zap.String("username", b.Client.Self.UserName))

	wh, err := tgbotapi.NewWebhook(webhookURL + "/webhook")
	if err != nil {
		return fmt.Errorf("failed to build webhook config: %w", err)
	}

	err = retry.Do(context.Background(), retry.DefaultPolicy, func() error {
		_, err := b.Client.Request(wh)
		if err == nil {
			return nil
		}
		if tgErr, ok := err.(*tgbotapi.Error); ok && tgErr.Code == http.StatusTooManyRequests {
			return &retry.Transient{
				RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second,
				Err:        err,
			}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	logger.Info("webhook set", zap.String("url", webhookURL+"/webhook"))

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		update, err := b.Client.HandleUpdate(r)
		if err != nil {
			logger.Warn("failed to parse webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.dispatch(*update, handle)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "lyricsbot is running")
	})

	b.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// dispatch routes the update to its chat's worker goroutine, creating the
// worker lazily. This is what serializes events within a conversation.
// The send happens under the mutex so a worker tearing itself down can
// never lose an update.
func (b *Bot) dispatch(update tgbotapi.Update, handle Handler) {
	chatID := updateChatID(update)

	b.workersMu.Lock()
	ch, ok := b.workers[chatID]
	if !ok {
		ch = make(chan tgbotapi.Update, 16)
		b.workers[chatID] = ch
		go b.runWorker(chatID, ch, handle)
	}
	select {
	case ch <- update:
	default:
		logger.Warn("dropping update, chat queue full", zap.Int64("chat_id", chatID))
	}
	b.workersMu.Unlock()
}

// runWorker drains one chat's queue in order. After idleTimeout without
// traffic the worker removes itself from the map and exits, so the worker
// set tracks active conversations rather than every chat ever seen.
func (b *Bot) runWorker(chatID int64, ch chan tgbotapi.Update, handle Handler) {
	idle := time.NewTimer(b.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case update := <-ch:
			b.safeHandle(chatID, update, handle)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(b.idleTimeout)
		case <-idle.C:
			b.workersMu.Lock()
			if len(ch) > 0 {
				// An update landed between the timer firing and the lock.
				b.workersMu.Unlock()
				idle.Reset(b.idleTimeout)
				continue
			}
			delete(b.workers, chatID)
			b.workersMu.Unlock()
			return
		case <-b.stopChan:
			return
		}
	}
}

// safeHandle keeps a panicking handler from taking down the whole dispatch
// loop: one bad conversation must not affect the others.
func (b *Bot) safeHandle(chatID int64, update tgbotapi.Update, handle Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", zap.Int64("chat_id", chatID), zap.Any("panic", r))
		}
	}()
	handle(update)
}

func updateChatID(update tgbotapi.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// Stop halts polling or the webhook server.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		if b.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = b.httpServer.Shutdown(ctx)
		}
	})
}
