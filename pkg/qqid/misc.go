package qqid

import (
	"compress/gzip"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxResponseSize bounds every response body read. Real replies are a few
// kilobytes; the QR image is the largest at well under one.
const MaxResponseSize int64 = 8 << 20

// UserAgent is the browser the web client pretends to be.
var UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_11_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"

// NewHTTPTransport returns the pooled transport shared by every request of a
// client. Long-poll requests pin a connection for the whole server hold time,
// so open connections are capped per host. maxIdleConns only bounds the idle
// connections kept across all hosts; the total stays bounded because a client
// only ever talks to a handful of hosts.
func NewHTTPTransport(maxConnsPerHost, maxIdleConns int) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   true,
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

type gzipCloser struct {
	f io.Closer
	r *gzip.Reader
}

func NewGzipReadCloser(reader io.ReadCloser) (io.ReadCloser, error) {
	gzipReader, err := gzip.NewReader(reader)
	if err != nil {
		return nil, err
	}

	return &gzipCloser{
		f: reader,
		r: gzipReader,
	}, nil
}

func (g *gzipCloser) Read(p []byte) (n int, err error) {
	return g.r.Read(p)
}

func (g *gzipCloser) Close() error {
	_ = g.f.Close()

	return g.r.Close()
}

// ReadBody reads at most MaxResponseSize bytes of resp's body, unwrapping
// gzip when the server used it, and closes the body.
func ReadBody(resp *http.Response) ([]byte, error) {
	var reader io.ReadCloser = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := NewGzipReadCloser(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
		reader = gz
	}
	defer func() {
		_ = reader.Close()
	}()

	return io.ReadAll(io.LimitReader(reader, MaxResponseSize))
}
