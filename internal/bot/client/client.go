// Package client implements the conversation flow: search for a song,
// page through the candidates, deliver lyrics and optional audio/video.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/obadiaz/lyricsbot/internal/busy"
	"github.com/obadiaz/lyricsbot/internal/callback"
	"github.com/obadiaz/lyricsbot/internal/db"
	"github.com/obadiaz/lyricsbot/internal/logger"
	"github.com/obadiaz/lyricsbot/internal/lyrics"
	"github.com/obadiaz/lyricsbot/internal/media"
	"github.com/obadiaz/lyricsbot/internal/pager"
	"github.com/obadiaz/lyricsbot/internal/session"
)

// Gateway is the slice of the Telegram transport the handlers need.
// *bot.Bot satisfies it; tests use a fake.
type Gateway interface {
	SendMessage(chatID int64, text string) (int, error)
	SendMarkdown(chatID int64, text string) (int, error)
	SendMessageWithButtons(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error)
	EditMessageWithButtons(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
	SendPhotoURL(chatID int64, photoURL, caption string) error
	SendAudioFile(chatID int64, path, caption string) error
	SendVideoFile(chatID int64, path, caption string) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
}

// SearchProvider finds candidate songs for a title.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]session.Result, error)
}

// LyricsProvider fetches lyrics for a song page URL.
type LyricsProvider interface {
	Lyrics(ctx context.Context, pageURL string) (string, error)
}

// MediaFetcher finds and downloads audio/video for a song.
type MediaFetcher interface {
	FindVideo(ctx context.Context, query string) (media.Video, error)
	Fetch(ctx context.Context, videoURL string, kind media.Kind) (string, error)
}

const (
	searchTimeout = 30 * time.Second
	fetchTimeout  = 10 * time.Minute
)

// Handlers orchestrates one bot's conversations.
type Handlers struct {
	gw       Gateway
	sessions *session.Manager
	search   SearchProvider
	lyrics   LyricsProvider
	media    MediaFetcher
	limiter  *busy.Limiter
	store    *db.Store
	pageSize int
	log      *zap.Logger

	inflight sync.WaitGroup
}

// New wires the handler set. store may be nil; media may be nil to disable
// download buttons.
func New(gw Gateway, sessions *session.Manager, search SearchProvider, lyricsProvider LyricsProvider, mediaFetcher MediaFetcher, limiter *busy.Limiter, store *db.Store, pageSize int) *Handlers {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Handlers{
		gw:       gw,
		sessions: sessions,
		search:   search,
		lyrics:   lyricsProvider,
		media:    mediaFetcher,
		limiter:  limiter,
		store:    store,
		pageSize: pageSize,
		log:      logger.Named("client"),
	}
}

// Wait blocks until in-flight downstream deliveries finish. Used on
// shutdown and by tests.
func (h *Handlers) Wait() {
	h.inflight.Wait()
}

// HandleUpdate is the single entry point the dispatcher calls. Events for
// one chat arrive here serialized.
func (h *Handlers) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(update.Message)
	case update.Message != nil && update.Message.Text != "":
		h.handleQuery(update.Message)
	}
}

func (h *Handlers) handleCommand(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		h.sessions.Clear(ctx, chatID)
		h.registerUser(ctx, message)
		h.send(chatID, "Welcome! Please provide a song title.")
	case "reset":
		h.sessions.Clear(ctx, chatID)
		h.send(chatID, "Search cleared. Send a new song title.")
	case "help":
		h.send(chatID, "Send me a song title and I'll look up its lyrics.\n\n/reset clears the current search.")
	default:
		h.send(chatID, "I don't know that command. Just send me a song title.")
	}
}

// handleQuery runs a fresh search. It always replaces the previous session
// wholesale; a failed search leaves no session behind.
func (h *Handlers) handleQuery(message *tgbotapi.Message) {
	ctx := context.Background()
	chatID := message.Chat.ID
	query := strings.TrimSpace(message.Text)
	if query == "" {
		h.send(chatID, "Please provide a song title.")
		return
	}

	h.sessions.Clear(ctx, chatID)
	h.registerUser(ctx, message)

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	results, err := h.search.Search(searchCtx, query)
	if err != nil {
		h.log.Error("search failed", zap.Int64("chat_id", chatID), zap.String("query", query), zap.Error(err))
		h.send(chatID, fmt.Sprintf("There was an error searching for the song %q.", query))
		return
	}

	if err := h.store.LogQuery(ctx, chatID, query, len(results)); err != nil {
		h.log.Warn("failed to log query", zap.Error(err))
	}

	if len(results) == 0 {
		h.send(chatID, "Sorry, I couldn't find any matching songs.")
		return
	}

	s := h.sessions.Set(ctx, chatID, results)
	page, err := pager.Render(s.Results, s.ID, 0, h.pageSize)
	if err != nil {
		h.log.Error("failed to render first page", zap.Error(err))
		return
	}

	messageID, err := h.gw.SendMessageWithButtons(chatID, pageText(page), keyboardFromPage(page))
	if err != nil {
		h.log.Error("failed to send result list", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	h.sessions.SetListMessageID(ctx, chatID, s.ID, messageID)
}

func (h *Handlers) handleCallback(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		_ = h.gw.AnswerCallback(query.ID, "")
		return
	}

	ctx := context.Background()
	chatID := query.Message.Chat.ID
	action := callback.Resolve(ctx, query.Data, chatID, h.sessions)

	switch action.Kind {
	case callback.KindNoop:
		_ = h.gw.AnswerCallback(query.ID, "")
	case callback.KindInvalid:
		h.log.Warn("invalid callback token", zap.Int64("chat_id", chatID), zap.String("data", query.Data))
		_ = h.gw.AnswerCallback(query.ID, "This selection is no longer valid. Send a new song title.")
	case callback.KindNavigate:
		h.handleNavigate(ctx, query, action.PageIndex)
	case callback.KindSelect:
		h.handleSelect(ctx, query, action)
	case callback.KindAudio:
		h.handleMedia(ctx, query, action, media.KindAudio)
	case callback.KindVideo:
		h.handleMedia(ctx, query, action, media.KindVideo)
	}
}

func (h *Handlers) handleNavigate(ctx context.Context, query *tgbotapi.CallbackQuery, pageIndex int) {
	chatID := query.Message.Chat.ID

	s, ok := h.sessions.Get(ctx, chatID)
	if !ok {
		_ = h.gw.AnswerCallback(query.ID, "This search has expired. Send a new song title.")
		return
	}

	page, err := pager.Render(s.Results, s.ID, pageIndex, h.pageSize)
	if err != nil {
		if errors.Is(err, pager.ErrPageOutOfRange) {
			_ = h.gw.AnswerCallback(query.ID, "That page is unavailable.")
			return
		}
		h.log.Error("failed to render page", zap.Error(err))
		_ = h.gw.AnswerCallback(query.ID, "Something went wrong.")
		return
	}

	messageID := s.ListMessageID
	if messageID == 0 {
		messageID = query.Message.MessageID
	}
	if err := h.gw.EditMessageWithButtons(chatID, messageID, pageText(page), keyboardFromPage(page)); err != nil {
		h.log.Error("failed to edit result list", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	_ = h.gw.AnswerCallback(query.ID, "")
}

// handleSelect starts the lyrics flow. The heavy fetch runs on its own
// goroutine so the chat stays responsive; the busy lease guarantees one
// download-class request per requester at a time.
func (h *Handlers) handleSelect(ctx context.Context, query *tgbotapi.CallbackQuery, action callback.Action) {
	chatID := query.Message.Chat.ID
	s, ok := h.sessions.Get(ctx, chatID)
	if !ok {
		_ = h.gw.AnswerCallback(query.ID, "This search has expired. Send a new song title.")
		return
	}

	release, ok := h.limiter.Acquire(query.From.ID)
	if !ok {
		_ = h.gw.AnswerCallback(query.ID, "Please wait, your previous request is still running.")
		return
	}
	_ = h.gw.AnswerCallback(query.ID, "")

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer release()
		h.deliverLyrics(chatID, s.ID, action)
	}()
}

func (h *Handlers) deliverLyrics(chatID int64, sessionID string, action callback.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	workingID, err := h.gw.SendMessage(chatID, "Fetching lyrics...")
	if err != nil {
		h.log.Error("failed to send working indicator", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	defer h.removeWorking(chatID, workingID)

	item := action.Item
	text, err := h.lyrics.Lyrics(ctx, item.URL)

	// The session may have been replaced while we were fetching; a result
	// for a dead session must not reach the chat.
	if !h.sessionAlive(chatID, sessionID) {
		h.log.Info("discarding lyrics for replaced session",
			zap.Int64("chat_id", chatID), zap.String("session_id", sessionID))
		return
	}

	if err != nil {
		if errors.Is(err, lyrics.ErrNotFound) {
			h.send(chatID, "Sorry, I couldn't find lyrics for that song.")
		} else {
			h.log.Error("lyrics fetch failed", zap.String("url", item.URL), zap.Error(err))
			h.send(chatID, "There was an error fetching the lyrics for this song.")
		}
		return
	}

	if item.ThumbnailURL != "" {
		if err := h.gw.SendPhotoURL(chatID, item.ThumbnailURL, item.Title); err != nil {
			h.log.Warn("failed to send thumbnail", zap.Error(err))
		}
	}

	for _, part := range lyrics.SplitMessage(text, lyrics.MaxMessageLength) {
		if _, err := h.gw.SendMarkdown(chatID, part); err != nil {
			h.log.Error("failed to send lyrics part", zap.Int64("chat_id", chatID), zap.Error(err))
			h.send(chatID, "There was an error fetching the lyrics for this song.")
			return
		}
	}

	if err := h.store.IncrementFetchCount(ctx, item.URL, item.Title); err != nil {
		h.log.Warn("failed to count fetch", zap.Error(err))
	}

	if h.media != nil {
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Download audio", callback.AudioToken(sessionID, action.ItemIndex)),
				tgbotapi.NewInlineKeyboardButtonData("Download video", callback.VideoToken(sessionID, action.ItemIndex)),
			),
		)
		if _, err := h.gw.SendMessageWithButtons(chatID, "Want the track itself?", keyboard); err != nil {
			h.log.Warn("failed to send download buttons", zap.Error(err))
		}
	}
}

func (h *Handlers) handleMedia(ctx context.Context, query *tgbotapi.CallbackQuery, action callback.Action, kind media.Kind) {
	chatID := query.Message.Chat.ID
	if h.media == nil {
		_ = h.gw.AnswerCallback(query.ID, "Downloads are not available.")
		return
	}

	s, ok := h.sessions.Get(ctx, chatID)
	if !ok {
		_ = h.gw.AnswerCallback(query.ID, "This search has expired. Send a new song title.")
		return
	}

	release, ok := h.limiter.Acquire(query.From.ID)
	if !ok {
		_ = h.gw.AnswerCallback(query.ID, "Please wait, your previous request is still running.")
		return
	}
	_ = h.gw.AnswerCallback(query.ID, "")

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer release()
		h.deliverMedia(chatID, s.ID, action.Item, kind)
	}()
}

func (h *Handlers) deliverMedia(chatID int64, sessionID string, item session.Result, kind media.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	workingID, err := h.gw.SendMessage(chatID, fmt.Sprintf("Downloading %s...", kind))
	if err != nil {
		h.log.Error("failed to send working indicator", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	defer h.removeWorking(chatID, workingID)

	video, err := h.media.FindVideo(ctx, item.Title)
	if err != nil {
		h.log.Error("video search failed", zap.String("title", item.Title), zap.Error(err))
		h.send(chatID, "Sorry, I couldn't find a matching video.")
		return
	}

	path, err := h.media.Fetch(ctx, video.URL, kind)
	if err != nil {
		h.log.Error("media download failed", zap.String("url", video.URL), zap.Error(err))
		h.send(chatID, fmt.Sprintf("There was an error downloading the %s.", kind))
		return
	}
	defer os.Remove(path)

	if !h.sessionAlive(chatID, sessionID) {
		h.log.Info("discarding media for replaced session",
			zap.Int64("chat_id", chatID), zap.String("session_id", sessionID))
		return
	}

	if kind == media.KindAudio {
		err = h.gw.SendAudioFile(chatID, path, video.Title)
	} else {
		err = h.gw.SendVideoFile(chatID, path, video.Title)
	}
	if err != nil {
		h.log.Error("failed to deliver media", zap.Int64("chat_id", chatID), zap.Error(err))
		h.send(chatID, fmt.Sprintf("There was an error sending the %s.", kind))
	}
}

func (h *Handlers) sessionAlive(chatID int64, sessionID string) bool {
	s, ok := h.sessions.Get(context.Background(), chatID)
	return ok && s.ID == sessionID
}

func (h *Handlers) removeWorking(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := h.gw.DeleteMessage(chatID, messageID); err != nil {
		h.log.Warn("failed to delete working indicator", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handlers) registerUser(ctx context.Context, message *tgbotapi.Message) {
	tgName := strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
	if err := h.store.RegisterUser(ctx, message.Chat.ID, message.From.UserName, tgName); err != nil {
		h.log.Warn("failed to register user", zap.Error(err))
	}
}

func (h *Handlers) send(chatID int64, text string) {
	if _, err := h.gw.SendMessage(chatID, text); err != nil {
		h.log.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func pageText(p pager.Page) string {
	return fmt.Sprintf("Please choose a song:\nPage %d of %d", p.Index+1, p.TotalPages)
}

// keyboardFromPage lays out one item per row plus a fixed two-slot
// navigation row.
func keyboardFromPage(p pager.Page) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, b := range p.ItemButtons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token),
		))
	}
	var navRow []tgbotapi.InlineKeyboardButton
	for _, b := range p.NavButtons {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
	}
	rows = append(rows, navRow)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
