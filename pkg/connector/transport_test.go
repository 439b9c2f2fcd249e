package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/rs/zerolog"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig failed: %v", err)
	}
	cfg.Poll.Timeout = 50 * time.Millisecond
	transport, err := NewTransport(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func testEndpoint(t *testing.T, name, rawURL, referer, origin string) *Endpoint {
	t.Helper()

	ep := &Endpoint{URL: rawURL, Referer: referer, Origin: origin}
	if err := ep.compile(name); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return ep
}

func TestTransportPostHeaders(t *testing.T) {
	var got *http.Request
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r
		form = r.PostForm
		_, _ = w.Write([]byte(`{"retcode":0}`))
	}))
	defer srv.Close()

	transport := newTestTransport(t)
	ep := testEndpoint(t, "login2", srv.URL+"/login2", "http://d1.web2.qq.com/proxy.html", "http://d1.web2.qq.com")

	resp, err := transport.Post(context.Background(), ep, `{"status":"online"}`)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	if got.Method != http.MethodPost {
		t.Errorf("Expected POST, got %s", got.Method)
	}
	if form.Get("r") != `{"status":"online"}` {
		t.Errorf("Unexpected form field r: %q", form.Get("r"))
	}
	headers := map[string]string{
		"User-Agent": qqid.UserAgent,
		"Referer":    "http://d1.web2.qq.com/proxy.html",
		"Origin":     "http://d1.web2.qq.com",
	}
	for name, want := range headers {
		if value := got.Header.Get(name); value != want {
			t.Errorf("Expected %s %q, got %q", name, want, value)
		}
	}
}

func TestTransportClosed(t *testing.T) {
	transport := newTestTransport(t)
	ep := testEndpoint(t, "account_info", "http://127.0.0.1:1/", "", "")

	if err := transport.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if !transport.IsClosed() {
		t.Error("Expected IsClosed to be true")
	}

	if _, err := transport.Get(context.Background(), ep); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
}

func TestTransportPollTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	transport := newTestTransport(t)
	ep := testEndpoint(t, "poll", srv.URL+"/poll2", "", "")

	_, err := transport.Poll(context.Background(), ep, "{}")
	if !IsTimeout(err) {
		t.Fatalf("Expected a timeout, got %v", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Endpoint != "poll" {
		t.Errorf("Expected TransportError from poll, got %v", err)
	}
}

func TestParseEnvelope(t *testing.T) {
	ep := testEndpoint(t, "poll", "http://example.com/poll2", "", "")

	tests := []struct {
		name        string
		status      int
		body        string
		wantResult  string
		wantRetCode int
		wantErr     func(error) bool
	}{
		{
			name:       "ok",
			status:     http.StatusOK,
			body:       `{"retcode":0,"result":[1,2]}`,
			wantResult: `[1,2]`,
		},
		{
			name:   "no data",
			status: http.StatusOK,
			body:   `{"retcode":100100,"errmsg":"error"}`,
		},
		{
			name:        "session invalid",
			status:      http.StatusOK,
			body:        `{"retcode":103,"errmsg":"error"}`,
			wantRetCode: 103,
			wantErr:     func(err error) bool { return errors.Is(err, ErrSessionInvalid) },
		},
		{
			name:        "other retcode",
			status:      http.StatusOK,
			body:        `{"retcode":116,"p":"abc"}`,
			wantRetCode: 116,
			wantErr:     func(err error) bool { var e *ProtocolError; return errors.As(err, &e) },
		},
		{
			name:    "missing retcode",
			status:  http.StatusOK,
			body:    `{"result":[]}`,
			wantErr: func(err error) bool { var e *ProtocolError; return errors.As(err, &e) },
		},
		{
			name:    "invalid json",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: func(err error) bool { var e *ProtocolError; return errors.As(err, &e) },
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			wantErr: func(err error) bool { var e *TransportError; return errors.As(err, &e) && e.StatusCode == 502 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseEnvelope(zerolog.Nop(), ep, &Response{StatusCode: tt.status, Body: []byte(tt.body)})
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("Unexpected error %v", err)
				}
				var protoErr *ProtocolError
				if tt.wantRetCode != 0 && (!errors.As(err, &protoErr) || protoErr.RetCode != tt.wantRetCode) {
					t.Errorf("Expected retcode %d in %v", tt.wantRetCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEnvelope failed: %v", err)
			}
			if result.Raw != tt.wantResult {
				t.Errorf("Expected result %q, got %q", tt.wantResult, result.Raw)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", &TransportError{Endpoint: "poll", Err: context.DeadlineExceeded}, true},
		{"closed", ErrTransportClosed, false},
		{"status", &TransportError{Endpoint: "poll", StatusCode: 500}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
