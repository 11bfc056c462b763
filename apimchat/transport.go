// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const completionsPath = "/chat/completions"

// transport is an unexported interface for HTTP communication with the
// gateway. The default implementation uses net/http; tests inject a mock
// http.Client through [WithHTTPClient].
type transport interface {
	do(ctx context.Context, token string, body *chatRequest) (*http.Response, error)
}

// httpTransport posts chat requests to the APIM gateway.
type httpTransport struct {
	client          *http.Client
	url             string
	subscriptionKey string
}

func newHTTPTransport(endpoint, subscriptionKey string, client *http.Client) *httpTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{
		client:          client,
		url:             strings.TrimRight(endpoint, "/") + completionsPath,
		subscriptionKey: subscriptionKey,
	}
}

// do issues one streaming request. The body is marshaled per call so a retry
// resends identical bytes. Responses with status >= 400 are consumed and
// returned as *StatusError.
func (t *httpTransport) do(ctx context.Context, token string, body *chatRequest) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", t.subscriptionKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp)
	}

	return resp, nil
}

// parseStatusError reads a non-2xx response body into a typed error.
func parseStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Code:       apiErr.Error.Code,
		Message:    msg,
	}
}

// wrapTransportError classifies a round-trip failure. Cancellation passes
// through untouched so callers can tell deliberate aborts from failures.
func wrapTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// stallReader resets the stall watchdog on every successful read, so the
// timeout measures the gap between arrivals rather than total stream time.
type stallReader struct {
	r     io.Reader
	timer *time.Timer
	reset time.Duration
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.reset)
	}
	return n, err
}
