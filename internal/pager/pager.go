// Package pager slices a result list into fixed-size button pages. Pure
// functions only: rendering never touches the session store, so rendering
// the same page twice yields identical tokens.
package pager

import (
	"errors"

	"github.com/obadiaz/lyricsbot/internal/callback"
	"github.com/obadiaz/lyricsbot/internal/session"
)

// ErrPageOutOfRange is returned for page indexes outside [0, totalPages).
// Callers must not render anything in that case.
var ErrPageOutOfRange = errors.New("pager: page index out of range")

// Button is one inline button: display label plus callback token.
type Button struct {
	Label string
	Token string
}

// Page is the rendered view of one result page.
type Page struct {
	ItemButtons []Button
	NavButtons  []Button
	Index       int
	TotalPages  int
	IsFirst     bool
	IsLast      bool
}

// TotalPages reports how many pages a list of itemCount items needs at the
// given page size. Minimum 1, even for an empty list.
func TotalPages(itemCount, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	n := (itemCount + pageSize - 1) / pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// Render builds the view for pageIndex. Item buttons cover items
// [pageIndex*pageSize, min((pageIndex+1)*pageSize, len(items))) in stored
// order. Both navigation slots are always present; an unavailable direction
// carries the no-op token so the keyboard never changes shape between edits.
func Render(items []session.Result, sessionID string, pageIndex, pageSize int) (Page, error) {
	total := TotalPages(len(items), pageSize)
	if pageIndex < 0 || pageIndex >= total {
		return Page{}, ErrPageOutOfRange
	}

	start := pageIndex * pageSize
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	p := Page{
		Index:      pageIndex,
		TotalPages: total,
		IsFirst:    pageIndex == 0,
		IsLast:     pageIndex == total-1,
	}

	for i := start; i < end; i++ {
		p.ItemButtons = append(p.ItemButtons, Button{
			Label: items[i].Title,
			Token: callback.SongToken(sessionID, i),
		})
	}

	prev := Button{Label: "Previous", Token: callback.NoopToken}
	if !p.IsFirst {
		prev.Token = callback.PageToken(sessionID, pageIndex-1)
	}
	next := Button{Label: "Next", Token: callback.NoopToken}
	if !p.IsLast {
		next.Token = callback.PageToken(sessionID, pageIndex+1)
	}
	p.NavButtons = []Button{prev, next}

	return p, nil
}
