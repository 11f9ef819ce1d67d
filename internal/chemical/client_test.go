package chemical

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, contentType, body string, status int) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/chemicals/name/59", r.URL.Path)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(config.ChemicalConfig{BaseURL: srv.URL + "/", TimeoutSecs: 2}, nil), &hits
}

func TestName(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		want        string
	}{
		{"json string", "application/json", `"苯"`, 200, "苯"},
		{"json object", "application/json; charset=utf-8", `{"name":"苯 (Benzene)"}`, 200, "苯 (Benzene)"},
		{"nested json", "application/json", `{"data":{"name":"甲苯"}}`, 200, "甲苯"},
		{"plain text", "text/plain; charset=utf-8", "  苯\n", 200, "苯"},
		{"html", "text/html", "<p>苯</p>", 200, ""},
		{"server error", "text/plain", "boom", 500, ""},
		{"invalid json", "application/json", `{"name":`, 200, ""},
		{"object without name", "application/json", `{"id":59}`, 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := serve(t, tt.contentType, tt.body, tt.status)
			assert.Equal(t, tt.want, c.Name(context.Background(), "59"))
		})
	}
}

func TestName_Cached(t *testing.T) {
	c, hits := serve(t, "application/json", `"苯"`, 200)
	ctx := context.Background()
	assert.Equal(t, "苯", c.Name(ctx, "59"))
	assert.Equal(t, "苯", c.Name(ctx, "59"))
	assert.EqualValues(t, 1, hits.Load())
}

func TestName_FailuresNotCached(t *testing.T) {
	c, hits := serve(t, "text/plain", "down", 503)
	ctx := context.Background()
	assert.Equal(t, "", c.Name(ctx, "59"))
	assert.Equal(t, "", c.Name(ctx, "59"))
	assert.EqualValues(t, 2, hits.Load())
}

func TestName_Unreachable(t *testing.T) {
	c := NewClient(config.ChemicalConfig{BaseURL: "http://127.0.0.1:1", TimeoutSecs: 1}, nil)
	assert.Equal(t, "", c.Name(context.Background(), "59"))
	assert.Equal(t, "", c.Name(context.Background(), ""))
}
