// Package mlclient talks to the two external ML services: the feature
// extraction service (/health, /analyze/text) and the scoring service
// (/health, /score). Both are opaque JSON-over-HTTP collaborators.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBody bounds any response read from the services.
const maxBody = 4 << 20

type base struct {
	url  string
	http *http.Client
}

func newBase(baseURL string, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return base{url: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mlclient: %s returned %d: %s", e.Path, e.Status, e.Body)
}

func (b base) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.url+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type healthReply struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// healthy reports whether GET /health answered with status "healthy".
func (b base) healthy(ctx context.Context) bool {
	if b.url == "" {
		return false
	}
	var h healthReply
	if err := b.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return false
	}
	return h.Status == "healthy"
}
