package genius

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obadiaz/lyricsbot/internal/retry"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-token")
	c.baseURL = srv.URL
	c.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return c
}

const searchBody = `{"response":{"hits":[
	{"result":{"full_title":"Imagine by John Lennon","url":"https://genius.com/imagine","song_art_image_url":"https://images.genius.com/imagine.jpg"}},
	{"result":{"full_title":"Imagine Dragons - Believer","url":"https://genius.com/believer"}}
]}}`

func TestSearchParsesHitsInOrder(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "Imagine", r.URL.Query().Get("q"))
		fmt.Fprint(w, searchBody)
	})

	results, err := c.Search(context.Background(), "Imagine")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Imagine by John Lennon", results[0].Title)
	assert.Equal(t, "https://genius.com/imagine", results[0].URL)
	assert.Equal(t, "https://images.genius.com/imagine.jpg", results[0].ThumbnailURL)
	assert.Equal(t, "Imagine Dragons - Believer", results[1].Title)
	assert.Empty(t, results[1].ThumbnailURL)
}

func TestSearchEmptyHitsIsNotAnError(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"response":{"hits":[]}}`)
	})

	results, err := c.Search(context.Background(), "zzzzzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRetriesRateLimit(t *testing.T) {
	t.Parallel()

	attempts := 0
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, searchBody)
	})

	results, err := c.Search(context.Background(), "Imagine")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, attempts)
}

func TestSearchFailsWithProviderError(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Search(context.Background(), "Imagine")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
}

func TestExchangeToken(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
			assert.Equal(t, "id", r.Form.Get("client_id"))
			fmt.Fprint(w, `{"access_token":"fresh-token"}`)
		})

		token, err := c.exchangeToken(context.Background(), "id", "secret")
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", token)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		t.Parallel()
		c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := c.exchangeToken(context.Background(), "id", "secret")
		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusForbidden, provErr.StatusCode)
	})
}
