// Package fetch performs JSON-returning HTTP requests with a per-attempt timeout, bounded
// retries and exponential backoff.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
)

const DEFAULT_TIMEOUT time.Duration = 30 * time.Second

const DEFAULT_MAX_ATTEMPTS int = 4

const DEFAULT_RETRY_DELAY time.Duration = 500 * time.Millisecond

// The maximum number of body bytes quoted in error messages.
const SNIPPET_LENGTH int = 200

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type Options struct {
	// Timeout is applied to each attempt individually.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// RetryDelay is the delay after the first failed attempt; it doubles after each attempt.
	RetryDelay time.Duration
	Label      string
	Client     *http.Client
	// Limiter, if not nil, is consulted before every attempt.
	Limiter ratelimit.Limiter
}

func DefaultOptions() *Options {

	opts := &Options{
		Timeout:     DEFAULT_TIMEOUT,
		MaxAttempts: DEFAULT_MAX_ATTEMPTS,
		RetryDelay:  DEFAULT_RETRY_DELAY,
		Label:       "fetch",
		Client:      http.DefaultClient,
	}

	return opts
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Snippet    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected status %s, %s", e.Status, e.Snippet)
}

// Transient reports whether a request answered with this status is worth repeating.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ContentTypeError is returned when a response does not declare a JSON content type or its
// body is not valid JSON.
type ContentTypeError struct {
	ContentType string
	Snippet     string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("Expected JSON but received '%s', %s", e.ContentType, e.Snippet)
}

// FetchJSON performs req and returns the (validated) JSON body of the response.
func FetchJSON(ctx context.Context, req *Request, opts *Options) ([]byte, error) {

	if opts == nil {
		opts = DefaultOptions()
	}

	cl := opts.Client

	if cl == nil {
		cl = http.DefaultClient
	}

	method := req.Method

	if method == "" {
		method = http.MethodGet
	}

	max_attempts := max(opts.MaxAttempts, 1)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.RetryDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = opts.RetryDelay << max_attempts
	bo.MaxElapsedTime = 0
	bo.Reset()

	var body []byte
	var last_err error
	var permanent bool

	attempt := 0

	op := func() error {

		if opts.Limiter != nil {
			opts.Limiter.Take()
		}

		rsp_body, err := doAttempt(ctx, cl, method, req, opts.Timeout)

		attempt += 1

		if err == nil {
			body = rsp_body
			return nil
		}

		last_err = err

		if ctx.Err() != nil || !isRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, d time.Duration) {
		slog.Warn("Request failed, retrying", "label", opts.Label, "method", method, "url", req.URL, "attempt", attempt, "delay", d, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max_attempts-1)), ctx)

	err := backoff.RetryNotify(op, b, notify)

	if err == nil {
		return body, nil
	}

	if permanent {
		return nil, fmt.Errorf("%s: %s %s failed, %w", opts.Label, method, req.URL, last_err)
	}

	if last_err == nil {
		last_err = err
	}

	return nil, fmt.Errorf("%s: %s %s failed after %d attempts, %w", opts.Label, method, req.URL, attempt, last_err)
}

func doAttempt(ctx context.Context, cl *http.Client, method string, req *Request, timeout time.Duration) ([]byte, error) {

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var br io.Reader

	if len(req.Body) > 0 {
		br = bytes.NewReader(req.Body)
	}

	http_req, err := http.NewRequestWithContext(ctx, method, req.URL, br)

	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("Failed to create request, %w", err))
	}

	for k, values := range req.Header {
		for _, v := range values {
			http_req.Header.Add(k, v)
		}
	}

	if http_req.Header.Get("Accept") == "" {
		http_req.Header.Set("Accept", "application/json")
	}

	rsp, err := cl.Do(http_req)

	if err != nil {
		return nil, err
	}

	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)

	if err != nil {
		return nil, fmt.Errorf("Failed to read response body, %w", err)
	}

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {

		status_err := &StatusError{
			StatusCode: rsp.StatusCode,
			Status:     rsp.Status,
			Snippet:    snippet(body),
		}

		return nil, status_err
	}

	content_type := rsp.Header.Get("Content-Type")

	if !isJSONContentType(content_type) || !gjson.ValidBytes(body) {

		ct_err := &ContentTypeError{
			ContentType: content_type,
			Snippet:     snippet(body),
		}

		return nil, ct_err
	}

	return body, nil
}

func isJSONContentType(content_type string) bool {

	media_type, _, err := mime.ParseMediaType(content_type)

	if err != nil {
		return false
	}

	return strings.Contains(media_type, "json") || strings.HasSuffix(media_type, "javascript")
}

// isRetryable reports whether err is a transient HTTP status, a timeout, or a
// connection-level transport failure.
func isRetryable(err error) bool {

	var perm *backoff.PermanentError

	if errors.As(err, &perm) {
		return false
	}

	var status_err *StatusError

	if errors.As(err, &status_err) {
		return status_err.Transient()
	}

	var ct_err *ContentTypeError

	if errors.As(err, &ct_err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var net_err net.Error

	if errors.As(err, &net_err) && net_err.Timeout() {
		return true
	}

	var op_err *net.OpError

	if errors.As(err, &op_err) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	return false
}

func snippet(body []byte) string {

	str_body := strings.TrimSpace(string(body))

	if len(str_body) > SNIPPET_LENGTH {
		str_body = str_body[:SNIPPET_LENGTH] + "..."
	}

	return str_body
}
