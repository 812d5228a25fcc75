package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/codequest/internal/domain/model"
)

const defaultMaxResponse = 1 << 20

// httpClient is the JSON transport shared by the backends.
type httpClient struct {
	baseURL     string
	client      *http.Client
	maxResponse int64
}

func newHTTPClient(baseURL string, opts ...ClientOption) httpClient {
	h := httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// The proxy's context carries the deadline.
		client:      &http.Client{},
		maxResponse: defaultMaxResponse,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// do sends body as JSON and decodes a 2xx response into out. Every failure
// wraps model.ErrExecutionUnavailable.
func (h httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", model.ErrExecutionUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrExecutionUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, h.maxResponse)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(limited, 512))
		return fmt.Errorf("%w: upstream status %d: %s", model.ErrExecutionUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed upstream response: %w", model.ErrExecutionUnavailable, err)
	}
	return nil
}
