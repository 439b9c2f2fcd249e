package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

const (
	testQRSig      = "qrsig-value"
	testPtwebqq    = "ptwebqq-value"
	testVfwebqq    = "vfwebqq-value"
	testPSessionID = "psessionid-value"
	testUin        = 10001
)

// fakeWebQQ serves the login chain and the poll endpoint from one test server.
type fakeWebQQ struct {
	srv *httptest.Server

	mu               sync.Mutex
	qrFetches        int
	verifyCalls      int
	verifyTokens     []string
	pendingScans     int
	expireOnce       bool
	omitRedirect     bool
	vfwebqqNotFound  int
	vfwebqqCalls     int
	vfwebqqRetCode   int
	calls            []string
	login2Payload    string
	login2Origin     string
	pollPayloads     []string
	accountInfoCalls int

	polls chan string
}

func newFakeWebQQ(t *testing.T) *fakeWebQQ {
	t.Helper()

	f := &fakeWebQQ{polls: make(chan string, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/ptqrshow", f.handleQRCode)
	mux.HandleFunc("/ptqrlogin", f.handleVerify)
	mux.HandleFunc("/check_sig", f.handleCheckSig)
	mux.HandleFunc("/proxy.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/getvfwebqq", f.handleVfwebqq)
	mux.HandleFunc("/login2", f.handleLogin2)
	mux.HandleFunc("/get_online_buddies2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retcode":0,"result":[{"uin":1,"status":"online","client_type":1},{"uin":2,"status":"away","client_type":21}]}`))
	})
	mux.HandleFunc("/get_self_info2", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.accountInfoCalls++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"retcode":0,"result":{"uin":10001,"nick":"tester","lnick":"hi","gender":"male","birthday":{"year":1990,"month":1,"day":2},"vip_info":0,"phone":"-"}}`))
	})
	mux.HandleFunc("/poll2", f.handlePoll)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeWebQQ) handleQRCode(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.qrFetches++
	f.calls = append(f.calls, "qr_code")
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "qrsig", Value: testQRSig, Path: "/"})
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(testPNG)
}

func (f *fakeWebQQ) handleVerify(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.verifyCalls++
	f.verifyTokens = append(f.verifyTokens, r.URL.Query().Get("ptqrtoken"))
	expire := f.expireOnce
	f.expireOnce = false
	pending := f.pendingScans > 0
	if pending {
		f.pendingScans--
	}
	omitRedirect := f.omitRedirect
	switch {
	case expire:
		f.calls = append(f.calls, "verify:expired")
	case pending:
		f.calls = append(f.calls, "verify:pending")
	default:
		f.calls = append(f.calls, "verify:confirmed")
	}
	f.mu.Unlock()

	switch {
	case expire:
		_, _ = w.Write([]byte("ptuiCB('65','0','','0','二维码已失效。(4004)', '');"))
	case pending:
		_, _ = w.Write([]byte("ptuiCB('66','0','','0','二维码未失效。(1000)', '');"))
	case omitRedirect:
		_, _ = w.Write([]byte("ptuiCB('0','0','','0','登录成功！', 'tester');"))
	default:
		fmt.Fprintf(w, "ptuiCB('0','0','%s/check_sig?uin=10001','0','登录成功！', 'tester');", f.srv.URL)
	}
}

func (f *fakeWebQQ) handleCheckSig(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "ptwebqq", Value: testPtwebqq, Path: "/"})
	http.Redirect(w, r, "/proxy.html", http.StatusFound)
}

func (f *fakeWebQQ) handleVfwebqq(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.vfwebqqCalls++
	notFound := f.vfwebqqNotFound > 0
	if notFound {
		f.vfwebqqNotFound--
	}
	retcode := f.vfwebqqRetCode
	f.mu.Unlock()

	if notFound {
		http.NotFound(w, r)
		return
	}
	if retcode != 0 {
		fmt.Fprintf(w, `{"retcode":%d}`, retcode)
		return
	}
	if r.URL.Query().Get("ptwebqq") != testPtwebqq {
		_, _ = w.Write([]byte(`{"retcode":100001}`))
		return
	}
	_, _ = w.Write([]byte(`{"retcode":0,"result":{"vfwebqq":"` + testVfwebqq + `"}}`))
}

func (f *fakeWebQQ) handleLogin2(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.login2Payload = r.PostFormValue("r")
	f.login2Origin = r.Header.Get("Origin")
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"retcode":0,"result":{"uin":10001,"psessionid":"` + testPSessionID + `","status":"online"}}`))
}

func (f *fakeWebQQ) handlePoll(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.pollPayloads = append(f.pollPayloads, r.PostFormValue("r"))
	f.mu.Unlock()

	select {
	case body := <-f.polls:
		_, _ = w.Write([]byte(body))
	case <-time.After(20 * time.Millisecond):
		_, _ = w.Write([]byte(`{"retcode":100100,"errmsg":"error"}`))
	}
}

func (f *fakeWebQQ) config(t *testing.T) *Config {
	t.Helper()

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig failed: %v", err)
	}
	cfg.Login.VerifyInterval = time.Millisecond
	cfg.Poll.Timeout = 5 * time.Second
	cfg.Poll.ErrorBackoff = time.Millisecond
	cfg.Transport.RequestTimeout = 5 * time.Second

	urls := map[string]string{
		EndpointQRCode:       f.srv.URL + "/ptqrshow",
		EndpointVerifyQRCode: f.srv.URL + "/ptqrlogin?ptqrtoken={1}",
		EndpointPtwebqq:      "{1}",
		EndpointVfwebqq:      f.srv.URL + "/getvfwebqq?ptwebqq={1}&clientid={2}",
		EndpointLogin2:       f.srv.URL + "/login2",
		EndpointFriendStatus: f.srv.URL + "/get_online_buddies2?vfwebqq={1}&clientid={2}&psessionid={3}",
		EndpointAccountInfo:  f.srv.URL + "/get_self_info2",
		EndpointPoll:         f.srv.URL + "/poll2",
	}
	cfg.Endpoints = make(map[string]*Endpoint, len(urls))
	for name, u := range urls {
		ep := &Endpoint{URL: u}
		if name == EndpointLogin2 || name == EndpointPoll {
			ep.Origin = f.srv.URL
		}
		if err := ep.compile(name); err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		cfg.Endpoints[name] = ep
	}
	return cfg
}

func (f *fakeWebQQ) connector(t *testing.T) *QQConnector {
	t.Helper()
	return NewConnector(f.config(t), zerolog.Nop())
}

// loggedInClient returns a client with a ready session, skipping the QR login.
func (f *fakeWebQQ) loggedInClient(t *testing.T, handler Handler) *QQClient {
	t.Helper()

	client, err := f.connector(t).newClient(handler)
	if err != nil {
		t.Fatalf("newClient failed: %v", err)
	}
	client.session.Ptwebqq = testPtwebqq
	client.session.Vfwebqq = testVfwebqq
	client.session.Uin = testUin
	client.session.PSessionID = testPSessionID
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func (f *fakeWebQQ) queuePoll(body string) {
	f.polls <- body
}

func nopSink() QRCodeSink {
	return QRCodeSinkFunc(func(context.Context, io.Reader) error { return nil })
}

func requireReceive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %s: %s", timeout, msg)
		var zero T
		return zero
	}
}
