// Package chemical looks up display names from the SAS chemical API.
package chemical

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Client fetches chemical names and caches them per id. Every failure yields
// an empty name.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

func NewClient(cfg config.ChemicalConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Name returns the chemical name for id, or "" when it cannot be determined.
// Only non-empty names are cached.
func (c *Client) Name(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	c.mu.Lock()
	name, ok := c.cache[id]
	c.mu.Unlock()
	if ok {
		return name
	}

	name, err := c.fetch(ctx, id)
	if err != nil {
		c.logger.Error("chemical api request failed", zap.String("id", id), zap.Error(err))
		return ""
	}
	if name != "" {
		c.mu.Lock()
		c.cache[id] = name
		c.mu.Unlock()
	}
	return name
}

func (c *Client) fetch(ctx context.Context, id string) (string, error) {
	u := fmt.Sprintf("%s/api/chemicals/name/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)
	switch {
	case strings.Contains(mediaType, "application/json"):
		return parseJSONName(body)
	case strings.Contains(mediaType, "text/plain"):
		return strings.TrimSpace(string(body)), nil
	default:
		c.logger.Debug("unhandled content type", zap.String("content_type", ct))
		return "", nil
	}
}

// parseJSONName accepts a bare JSON string or an object carrying the name.
func parseJSONName(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid json body")
	}
	res := gjson.ParseBytes(body)
	if res.Type == gjson.String {
		return strings.TrimSpace(res.String()), nil
	}
	for _, path := range []string{"name", "data.name", "chemical_name", "data"} {
		if v := res.Get(path); v.Type == gjson.String {
			return strings.TrimSpace(v.String()), nil
		}
	}
	return "", nil
}
