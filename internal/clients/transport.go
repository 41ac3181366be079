// Package clients holds the HTTP plumbing shared by the KuCoin and Notion clients.
package clients

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/coinbook/internal/errs"
)

const (
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 20 * time.Second

	maxResponseBytes = 8 << 20
	maxErrorSnippet  = 512
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is one outbound call.
type Request struct {
	Op      string
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is a fully read 2xx response.
type Response struct {
	Status int
	Body   []byte
}

// NewHTTPClient creates an http.Client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Send executes req bounded by timeout and classifies every failure:
// transport errors and timeouts are transient, non-2xx statuses go through ClassifyStatus.
func Send(ctx context.Context, doer Doer, timeout time.Duration, req Request) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, errs.Configuration(req.Op, errs.WithCause(errors.Wrap(err, "failed to create HTTP request")))
	}
	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := doer.Do(httpReq)
	if err != nil {
		return nil, errs.Transient(req.Op, errs.WithCause(errors.Wrap(err, "HTTP request failed")))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.Transient(req.Op, errs.WithHTTP(resp.StatusCode), errs.WithCause(errors.Wrap(err, "failed to read response body")))
	}

	if err := ClassifyStatus(req.Op, resp.StatusCode, payload); err != nil {
		return nil, err
	}

	return &Response{Status: resp.StatusCode, Body: payload}, nil
}

// ClassifyStatus maps a non-2xx status to an error kind. It returns nil for 2xx.
func ClassifyStatus(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	opts := []errs.Option{errs.WithHTTP(status), errs.WithMessage("%s", snippet(body))}
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return errs.Transient(op, opts...)
	case status >= 400 && status < 500:
		return errs.Authentication(op, opts...)
	case status >= 500:
		return errs.Transient(op, opts...)
	default:
		return errs.DataIntegrity(op, opts...)
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
