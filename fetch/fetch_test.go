package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func testOptions() *Options {

	opts := DefaultOptions()
	opts.RetryDelay = 10 * time.Millisecond
	opts.Timeout = 2 * time.Second
	opts.Label = "test"

	return opts
}

func TestFetchJSONRetry(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {

		n := atomic.AddInt32(&hits, 1)

		if n <= 2 {
			http.Error(rsp, "unavailable", http.StatusServiceUnavailable)
			return
		}

		rsp.Header().Set("Content-Type", "application/json; charset=utf-8")
		rsp.Write([]byte(`{"ok":true,"hits":3}`))
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	ctx := context.Background()
	opts := testOptions()

	req := &Request{
		URL: s.URL,
	}

	t1 := time.Now()

	body, err := FetchJSON(ctx, req, opts)

	if err != nil {
		t.Fatalf("Failed to fetch JSON, %v", err)
	}

	elapsed := time.Since(t1)

	if !gjson.GetBytes(body, "ok").Bool() {
		t.Fatalf("Unexpected body %s", string(body))
	}

	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", hits)
	}

	// 10ms after the first attempt, 20ms after the second
	if elapsed < 30*time.Millisecond {
		t.Fatalf("Expected to sleep between attempts, elapsed %v", elapsed)
	}
}

func TestFetchJSONExhausted(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(rsp, "slow down", http.StatusTooManyRequests)
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	ctx := context.Background()
	opts := testOptions()
	opts.MaxAttempts = 3

	req := &Request{
		Method: http.MethodPost,
		URL:    s.URL + "/query",
		Body:   []byte("data=1"),
	}

	_, err := FetchJSON(ctx, req, opts)

	if err == nil {
		t.Fatalf("Expected request to fail")
	}

	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", hits)
	}

	for _, expected := range []string{"test", "POST", s.URL + "/query", "3 attempts"} {

		if !strings.Contains(err.Error(), expected) {
			t.Fatalf("Expected error to contain '%s', got '%v'", expected, err)
		}
	}

	var status_err *StatusError

	if !errors.As(err, &status_err) || status_err.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected error to wrap StatusError, got %v", err)
	}
}

func TestFetchJSONConnectionReset(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {

		if atomic.AddInt32(&hits, 1) == 1 {

			hj, ok := rsp.(http.Hijacker)

			if !ok {
				t.Errorf("Response writer does not support hijacking")
				return
			}

			conn, _, err := hj.Hijack()

			if err != nil {
				t.Errorf("Failed to hijack connection, %v", err)
				return
			}

			conn.Close()
			return
		}

		rsp.Header().Set("Content-Type", "application/json")
		rsp.Write([]byte(`{"ok":1}`))
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	ctx := context.Background()
	opts := testOptions()

	req := &Request{
		URL: s.URL,
	}

	body, err := FetchJSON(ctx, req, opts)

	if err != nil {
		t.Fatalf("Expected request to succeed after dropped connection, %v", err)
	}

	if gjson.GetBytes(body, "ok").Int() != 1 {
		t.Fatalf("Unexpected body %s", body)
	}

	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", hits)
	}
}

func TestFetchJSONNotRetryable(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(rsp, "not found", http.StatusNotFound)
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	_, err := FetchJSON(context.Background(), &Request{URL: s.URL}, testOptions())

	if err == nil {
		t.Fatalf("Expected request to fail")
	}

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("Expected a single attempt, got %d", hits)
	}
}

func TestFetchJSONContentType(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		rsp.Header().Set("Content-Type", "text/html")
		rsp.Write([]byte(`<html><body>Service temporarily down for maintenance</body></html>`))
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	_, err := FetchJSON(context.Background(), &Request{URL: s.URL}, testOptions())

	if err == nil {
		t.Fatalf("Expected HTML response to fail")
	}

	var ct_err *ContentTypeError

	if !errors.As(err, &ct_err) {
		t.Fatalf("Expected ContentTypeError, got %v", err)
	}

	if !strings.Contains(err.Error(), "maintenance") {
		t.Fatalf("Expected error to include body snippet, got %v", err)
	}

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("Expected a single attempt, got %d", hits)
	}
}

func TestFetchJSONTimeout(t *testing.T) {

	var hits int32

	handler := func(rsp http.ResponseWriter, req *http.Request) {

		n := atomic.AddInt32(&hits, 1)

		if n == 1 {
			select {
			case <-req.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}

		rsp.Header().Set("Content-Type", "application/geo+json")
		rsp.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond

	body, err := FetchJSON(context.Background(), &Request{URL: s.URL}, opts)

	if err != nil {
		t.Fatalf("Failed to fetch JSON after timeout, %v", err)
	}

	if gjson.GetBytes(body, "type").String() != "FeatureCollection" {
		t.Fatalf("Unexpected body %s", string(body))
	}

	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", hits)
	}
}

func TestIsJSONContentType(t *testing.T) {

	tests := map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"application/geo+json":            true,
		"text/javascript":                 true,
		"text/html":                       false,
		"text/plain":                      false,
		"":                                false,
	}

	for content_type, expected := range tests {

		if isJSONContentType(content_type) != expected {
			t.Fatalf("Unexpected result for '%s'", content_type)
		}
	}
}
