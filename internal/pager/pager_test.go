package pager_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obadiaz/lyricsbot/internal/callback"
	"github.com/obadiaz/lyricsbot/internal/pager"
	"github.com/obadiaz/lyricsbot/internal/session"
)

func makeItems(n int) []session.Result {
	items := make([]session.Result, n)
	for i := range items {
		items[i] = session.Result{
			Title: fmt.Sprintf("Song %d", i),
			URL:   fmt.Sprintf("https://genius.com/song-%d", i),
		}
	}
	return items
}

func TestRenderPartitionsItems(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		itemCount, pageSize int
	}{
		{1, 1}, {5, 5}, {6, 5}, {12, 5}, {17, 4}, {100, 7},
	} {
		tc := tc
		t.Run(fmt.Sprintf("%d items size %d", tc.itemCount, tc.pageSize), func(t *testing.T) {
			t.Parallel()
			items := makeItems(tc.itemCount)
			total := pager.TotalPages(tc.itemCount, tc.pageSize)

			seen := make(map[string]bool)
			buttonCount := 0
			for p := 0; p < total; p++ {
				page, err := pager.Render(items, "sid01", p, tc.pageSize)
				require.NoError(t, err)
				assert.Equal(t, p, page.Index)
				assert.Equal(t, total, page.TotalPages)
				for _, b := range page.ItemButtons {
					assert.False(t, seen[b.Token], "token %s rendered on two pages", b.Token)
					seen[b.Token] = true
					buttonCount++
				}
			}
			// Pages partition the items: no overlap, no gaps.
			assert.Equal(t, tc.itemCount, buttonCount)
		})
	}
}

func TestRenderTokensStableAcrossRenders(t *testing.T) {
	t.Parallel()

	items := makeItems(12)
	first, err := pager.Render(items, "sid01", 1, 5)
	require.NoError(t, err)
	second, err := pager.Render(items, "sid01", 1, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	items := makeItems(12)
	_, err := pager.Render(items, "sid01", -1, 5)
	assert.ErrorIs(t, err, pager.ErrPageOutOfRange)

	_, err = pager.Render(items, "sid01", 3, 5)
	assert.ErrorIs(t, err, pager.ErrPageOutOfRange)
}

func TestRenderEmptyListHasOnePage(t *testing.T) {
	t.Parallel()

	page, err := pager.Render(nil, "sid01", 0, 5)
	require.NoError(t, err)
	assert.Empty(t, page.ItemButtons)
	assert.Equal(t, 1, page.TotalPages)
	assert.True(t, page.IsFirst)
	assert.True(t, page.IsLast)
}

// Twelve results at five per page: page 0 shows items 0-4 with Next only,
// page 1 shows 5-9 with both controls, page 2 shows 10-11 with Previous
// only, page 3 does not exist.
func TestRenderTwelveItemsScenario(t *testing.T) {
	t.Parallel()

	items := makeItems(12)

	page0, err := pager.Render(items, "sid01", 0, 5)
	require.NoError(t, err)
	require.Len(t, page0.ItemButtons, 5)
	assert.Equal(t, "Song 0", page0.ItemButtons[0].Label)
	assert.Equal(t, "Song 4", page0.ItemButtons[4].Label)
	require.Len(t, page0.NavButtons, 2)
	assert.Equal(t, callback.NoopToken, page0.NavButtons[0].Token)
	assert.Equal(t, callback.PageToken("sid01", 1), page0.NavButtons[1].Token)

	page1, err := pager.Render(items, "sid01", 1, 5)
	require.NoError(t, err)
	require.Len(t, page1.ItemButtons, 5)
	assert.Equal(t, "Song 5", page1.ItemButtons[0].Label)
	assert.Equal(t, callback.PageToken("sid01", 0), page1.NavButtons[0].Token)
	assert.Equal(t, callback.PageToken("sid01", 2), page1.NavButtons[1].Token)

	page2, err := pager.Render(items, "sid01", 2, 5)
	require.NoError(t, err)
	require.Len(t, page2.ItemButtons, 2)
	assert.Equal(t, "Song 10", page2.ItemButtons[0].Label)
	assert.Equal(t, callback.PageToken("sid01", 1), page2.NavButtons[0].Token)
	assert.Equal(t, callback.NoopToken, page2.NavButtons[1].Token)
	assert.True(t, page2.IsLast)

	_, err = pager.Render(items, "sid01", 3, 5)
	assert.ErrorIs(t, err, pager.ErrPageOutOfRange)
}

func TestItemTokensEmbedAbsoluteIndex(t *testing.T) {
	t.Parallel()

	items := makeItems(12)
	page, err := pager.Render(items, "sid01", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, callback.SongToken("sid01", 10), page.ItemButtons[0].Token)
	assert.Equal(t, callback.SongToken("sid01", 11), page.ItemButtons[1].Token)
}
