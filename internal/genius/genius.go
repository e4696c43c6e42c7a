// Package genius is the search provider: it queries the Genius API for
// candidate songs matching a title and returns them in ranked order.
package genius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/obadiaz/lyricsbot/internal/retry"
	"github.com/obadiaz/lyricsbot/internal/session"
)

const (
	defaultBaseURL = "https://api.genius.com"
	oauthTokenPath = "/oauth/token"
)

// ProviderError is any upstream search failure: network, auth, rate limit.
// Recoverable; the user is notified and session state is left untouched.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("genius: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("genius: %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Client talks to the Genius API with a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	policy     retry.Policy
}

// NewClient creates a client around a static API token.
func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		policy:     retry.DefaultPolicy,
	}
}

// NewClientWithCredentials exchanges OAuth client credentials for an access
// token and returns a client around it.
func NewClientWithCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	c := NewClient("")
	token, err := c.exchangeToken(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

type searchResponse struct {
	Response struct {
		Hits []struct {
			Result struct {
				FullTitle       string `json:"full_title"`
				URL             string `json:"url"`
				SongArtImageURL string `json:"song_art_image_url"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// Search returns candidate songs for the query in provider rank order. An
// empty slice is a normal outcome, not an error. Rate-limit responses are
// retried with the server-specified backoff before giving up.
func (c *Client) Search(ctx context.Context, query string) ([]session.Result, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))

	var body []byte
	err := retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &ProviderError{Op: "search", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &ProviderError{Op: "search", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return &retry.Transient{
				RetryAfter: retryAfter(resp),
				Err:        &ProviderError{Op: "search", StatusCode: resp.StatusCode},
			}
		}
		if resp.StatusCode != http.StatusOK {
			return &ProviderError{Op: "search", StatusCode: resp.StatusCode}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &ProviderError{Op: "search", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Op: "search", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	var results []session.Result
	for _, hit := range parsed.Response.Hits {
		results = append(results, session.Result{
			Title:        hit.Result.FullTitle,
			URL:          hit.Result.URL,
			ThumbnailURL: hit.Result.SongArtImageURL,
		})
	}
	return results, nil
}

func (c *Client) exchangeToken(ctx context.Context, clientID, clientSecret string) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+oauthTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ProviderError{Op: "token exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Op: "token exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Op: "token exchange", StatusCode: resp.StatusCode}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Op: "token exchange", Err: err}
	}
	if parsed.AccessToken == "" {
		return "", &ProviderError{Op: "token exchange", Err: fmt.Errorf("empty access token in response")}
	}
	return parsed.AccessToken, nil
}

func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
