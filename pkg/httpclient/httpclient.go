// Package httpclient performs the outbound JSON requests made by webhook and action nodes.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 1 << 20
)

var ErrResponseTooLarge = errors.New("response body too large")

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether err is an HTTPError with a 4xx status.
func IsClientError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}

	return false
}

// Request is an outbound JSON call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// Response is a completed 2xx call. JSON is nil when the body was not valid JSON.
type Response struct {
	StatusCode int
	Body       string
	JSON       any
}

// New returns a client with the default timeout.
func New() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Do sends the request and decodes the response. Any status outside 2xx is an *HTTPError.
func Do(ctx context.Context, client *http.Client, request Request) (*Response, error) {
	if client == nil {
		client = New()
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader

	if request.Body != nil && method != http.MethodGet && method != http.MethodHead {
		payload, err := json.Marshal(request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, request.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	if reqBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(respBody) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		result.JSON = decoded
	}

	return result, nil
}
