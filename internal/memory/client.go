// Package memory is the HTTP client for the black-box long-term memory
// service. The service exposes two operations: put (capture a fact) and
// query (retrieve snippets relevant to a request).
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/donnabot/donna/internal/config"
)

// Client talks to the memory service. All calls are timeout-bounded; the
// dispatcher treats every failure as non-fatal.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a memory client from config. Returns nil when no base
// URL is configured; callers treat a nil client as "memory disabled".
func NewClient(cfg config.MemoryConfig) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout.Std()},
	}
}

type putRequest struct {
	ChannelID string `json:"channel_id,omitempty"`
	UserText  string `json:"user_text,omitempty"`
	Reply     string `json:"reply"`
	At        string `json:"at"`
}

type queryRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit,omitempty"`
}

type queryResponse struct {
	Snippets []string `json:"snippets"`
}

// Put captures one exchange. Fire-and-forget callers run it on its own
// goroutine.
func (c *Client) Put(ctx context.Context, channelID, userText, reply string) error {
	body := putRequest{
		ChannelID: channelID,
		UserText:  userText,
		Reply:     reply,
		At:        time.Now().UTC().Format(time.RFC3339),
	}
	return c.post(ctx, "/put", body, nil)
}

// Query retrieves up to limit snippets relevant to text.
func (c *Client) Query(ctx context.Context, text string, limit int) ([]string, error) {
	var resp queryResponse
	if err := c.post(ctx, "/query", queryRequest{Text: text, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Snippets, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
