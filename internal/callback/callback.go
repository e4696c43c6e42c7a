// Package callback encodes and resolves the opaque strings round-tripped
// through Telegram's callback-data channel. Token shapes:
//
//	page:<session id>:<page index>   navigate the result list
//	song:<session id>:<item index>   fetch lyrics for one result
//	audio:<session id>:<item index>  download audio for one result
//	video:<session id>:<item index>  download video for one result
//	noop                             disabled navigation slot
//
// The embedded session id scopes every token to the session that rendered
// it: tokens from a replaced, cleared or expired session resolve to Invalid.
//
// Navigation tokens are checked structurally and against the live session
// only. Whether the page index is renderable depends on the page size, a
// render-time input, so that range check belongs to the pager; callers must
// treat pager.ErrPageOutOfRange as an invalid token.
package callback

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/obadiaz/lyricsbot/internal/session"
)

const (
	prefixPage  = "page"
	prefixSong  = "song"
	prefixAudio = "audio"
	prefixVideo = "video"

	// NoopToken fills an unavailable navigation slot so the keyboard shape
	// stays constant across pages.
	NoopToken = "noop"
)

// Kind classifies a resolved callback token.
type Kind int

const (
	KindInvalid Kind = iota
	KindNoop
	KindNavigate
	KindSelect
	KindAudio
	KindVideo
)

// Action is the outcome of resolving a token. PageIndex is set for
// KindNavigate; Item and ItemIndex for KindSelect/KindAudio/KindVideo.
type Action struct {
	Kind      Kind
	PageIndex int
	ItemIndex int
	Item      session.Result
}

func PageToken(sessionID string, page int) string {
	return fmt.Sprintf("%s:%s:%d", prefixPage, sessionID, page)
}

func SongToken(sessionID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", prefixSong, sessionID, index)
}

func AudioToken(sessionID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", prefixAudio, sessionID, index)
}

func VideoToken(sessionID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", prefixVideo, sessionID, index)
}

// Resolve maps raw callback data to an Action for the given chat. The token
// kind is decided by its structural prefix alone; an unparsable or negative
// number, a stale session id, or an unresolvable item all yield KindInvalid.
func Resolve(ctx context.Context, data string, chatID int64, store *session.Manager) Action {
	if data == NoopToken {
		return Action{Kind: KindNoop}
	}

	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[1] == "" {
		return Action{Kind: KindInvalid}
	}

	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 0 {
		return Action{Kind: KindInvalid}
	}
	sessionID := parts[1]

	switch parts[0] {
	case prefixPage:
		current, ok := store.Get(ctx, chatID)
		if !ok || current.ID != sessionID {
			return Action{Kind: KindInvalid}
		}
		return Action{Kind: KindNavigate, PageIndex: n}
	case prefixSong, prefixAudio, prefixVideo:
		item, ok := store.Resolve(ctx, chatID, sessionID, n)
		if !ok {
			return Action{Kind: KindInvalid}
		}
		kind := KindSelect
		if parts[0] == prefixAudio {
			kind = KindAudio
		} else if parts[0] == prefixVideo {
			kind = KindVideo
		}
		return Action{Kind: kind, ItemIndex: n, Item: item}
	}

	return Action{Kind: KindInvalid}
}
