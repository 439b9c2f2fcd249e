package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// Response is a fully read reply. Bodies are small JSON or JavaScript
// snippets, except for the QR code image.
type Response struct {
	StatusCode int
	Body       []byte
	Cookies    []*http.Cookie

	requestURL *url.URL
	finalURL   *url.URL
}

// Transport sends browser-shaped requests over one pooled connection set and
// one cookie jar that live as long as the client.
type Transport struct {
	log zerolog.Logger

	jar        http.CookieJar
	transport  *http.Transport
	client     *http.Client
	pollClient *http.Client

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewTransport(cfg *Config, log zerolog.Logger) (*Transport, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := qqid.NewHTTPTransport(cfg.Transport.MaxConnsPerHost, cfg.Transport.MaxIdleConns)

	return &Transport{
		log:       log.With().Str("component", "transport").Logger(),
		jar:       jar,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.Transport.RequestTimeout,
		},
		pollClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.Poll.Timeout,
		},
	}, nil
}

func (t *Transport) Get(ctx context.Context, ep *Endpoint, args ...any) (*Response, error) {
	target, err := ep.Build(args...)
	if err != nil {
		return nil, err
	}
	return t.do(ctx, t.client, ep, http.MethodGet, target, nil)
}

// Post sends payload as the single form field r, the way the web client
// submits JSON.
func (t *Transport) Post(ctx context.Context, ep *Endpoint, payload string) (*Response, error) {
	target, err := ep.Build()
	if err != nil {
		return nil, err
	}
	return t.do(ctx, t.client, ep, http.MethodPost, target, strings.NewReader(formBody(payload)))
}

// Poll is Post with the long read timeout of the poll endpoint.
func (t *Transport) Poll(ctx context.Context, ep *Endpoint, payload string) (*Response, error) {
	target, err := ep.Build()
	if err != nil {
		return nil, err
	}
	return t.do(ctx, t.pollClient, ep, http.MethodPost, target, strings.NewReader(formBody(payload)))
}

// GetRetryNotFound repeats a GET answered with 404 up to retries more times.
// The web servers intermittently 404 right after login.
func (t *Transport) GetRetryNotFound(ctx context.Context, ep *Endpoint, retries int, args ...any) (*Response, error) {
	resp, err := t.Get(ctx, ep, args...)
	for ; err == nil && resp.StatusCode == http.StatusNotFound && retries > 0; retries-- {
		t.log.Debug().Str("endpoint", ep.Name()).Int("retries_left", retries).Msg("Got 404, retrying")
		resp, err = t.Get(ctx, ep, args...)
	}
	return resp, err
}

func formBody(payload string) string {
	return url.Values{"r": []string{payload}}.Encode()
}

func (t *Transport) do(ctx context.Context, client *http.Client, ep *Endpoint, method, target string, body io.Reader) (*Response, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.Name(), Err: err}
	}
	req.Header.Set("User-Agent", qqid.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	if ep.Referer != "" {
		req.Header.Set("Referer", ep.Referer)
	}
	if ep.Origin != "" {
		req.Header.Set("Origin", ep.Origin)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	t.log.Trace().Str("endpoint", ep.Name()).Str("method", method).Str("url", target).Msg("Sending request")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.Name(), Err: err}
	}

	data, err := qqid.ReadBody(resp)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.Name(), StatusCode: resp.StatusCode, Err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Cookies:    resp.Cookies(),
		requestURL: req.URL,
		finalURL:   resp.Request.URL,
	}, nil
}

// Cookie finds a cookie set by resp. Cookies set on redirect hops only reach
// the jar, so it is consulted for the final and the original URL as well.
func (t *Transport) Cookie(resp *Response, name string) string {
	for _, cookie := range resp.Cookies {
		if cookie.Name == name && cookie.Value != "" {
			return cookie.Value
		}
	}
	for _, u := range []*url.URL{resp.finalURL, resp.requestURL} {
		if u == nil {
			continue
		}
		for _, cookie := range t.jar.Cookies(u) {
			if cookie.Name == name && cookie.Value != "" {
				return cookie.Value
			}
		}
	}
	return ""
}

func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Close releases pooled connections. Requests issued afterwards fail with
// ErrTransportClosed. Calling Close more than once is harmless.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.transport.CloseIdleConnections()
		t.log.Debug().Msg("Transport closed")
	})
	return nil
}
