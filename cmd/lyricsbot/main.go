package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/bot"
	"github.com/obadiaz/lyricsbot/internal/bot/client"
	"github.com/obadiaz/lyricsbot/internal/busy"
	"github.com/obadiaz/lyricsbot/internal/config"
	"github.com/obadiaz/lyricsbot/internal/db"
	"github.com/obadiaz/lyricsbot/internal/genius"
	"github.com/obadiaz/lyricsbot/internal/logger"
	"github.com/obadiaz/lyricsbot/internal/lyrics"
	"github.com/obadiaz/lyricsbot/internal/media"
	"github.com/obadiaz/lyricsbot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	var backend session.Backend
	if cfg.Redis.URL != "" {
		redisBackend, err := session.NewRedisBackend(cfg.Redis.URL, cfg.Redis.Password, cfg.Search.SessionTTL)
		if err != nil {
			logger.Error("failed to connect to redis, sessions stay in memory", zap.Error(err))
		} else {
			defer redisBackend.Close()
			backend = redisBackend
			logger.Info("session persistence enabled")
		}
	}
	sessions := session.NewManager(backend, cfg.Search.SessionTTL)

	var cache *lyrics.Cache
	if cfg.Cache.Path != "" {
		cache, err = lyrics.OpenCache(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			logger.Warn("failed to open lyrics cache, running without it", zap.Error(err))
		} else {
			defer cache.Close()
		}
	}

	var store *db.Store
	if cfg.Turso.DatabaseURL != "" {
		store, err = db.Open(cfg.Turso.DatabaseURL, cfg.Turso.AuthToken)
		if err != nil {
			logger.Warn("failed to open database, running without it", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	var search *genius.Client
	if cfg.Genius.APIToken != "" {
		search = genius.NewClient(cfg.Genius.APIToken)
	} else {
		search, err = genius.NewClientWithCredentials(context.Background(), cfg.Genius.ClientID, cfg.Genius.ClientSecret)
		if err != nil {
			logger.Error("failed to exchange genius credentials", zap.Error(err))
			os.Exit(1)
		}
	}

	b, err := bot.New("lyricsbot", cfg.Telegram.Token)
	if err != nil {
		logger.Error("failed to create bot", zap.Error(err))
		os.Exit(1)
	}

	handlers := client.New(
		b,
		sessions,
		search,
		lyrics.NewService(cache),
		media.NewFetcher(cfg.Media.YtdlpPath, cfg.Media.FfmpegPath, cfg.Media.WorkDir, cfg.Media.Timeout),
		busy.New(cfg.Search.BusyTTL),
		store,
		cfg.Search.PageSize,
	)

	errCh := make(chan error, 1)
	go func() {
		if cfg.Telegram.WebhookURL != "" {
			errCh <- b.StartWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.Port, handlers.HandleUpdate)
		} else {
			b.StartPolling(handlers.HandleUpdate)
			errCh <- nil
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("bot stopped with error", zap.Error(err))
			os.Exit(1)
		}
	}

	b.Stop()
	handlers.Wait()
}
