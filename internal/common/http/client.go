// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "pmc-registration/internal/common/errors"
)

// Client talks JSON to the registration API. Non-2xx responses come back as
// *apperrors.StandardError so callers can branch on the code.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
}

// NewClient builds a client for baseURL. token, when set, supplies the bearer
// token for every request.
func NewClient(baseURL string, timeout time.Duration, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		token: token,
	}
}

// DoJSON sends in as the JSON body (when non-nil) and decodes the response
// into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	raw, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// DoRaw sends body as-is and returns the raw response bytes.
func (c *Client) DoRaw(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	return c.do(ctx, method, path, r, "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("registration api", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, decodeError(resp.StatusCode, raw)
}

func decodeError(status int, raw []byte) error {
	var body apperrors.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil && body.Error.Code != "" {
		return body.Error
	}
	return &apperrors.StandardError{
		Code:      apperrors.ErrCodeExternalService,
		Message:   fmt.Sprintf("unexpected status %d", status),
		Retryable: status >= 500,
		Timestamp: time.Now().UTC(),
	}
}
