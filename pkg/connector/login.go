package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

const (
	qrSuccessMarker = "成功"
	qrExpiredMarker = "已失效"
)

type LoginState int

const (
	LoginInit LoginState = iota
	LoginQRRequested
	LoginQRPendingScan
	LoginQRVerified
	LoginPtwebqqObtained
	LoginVfwebqqObtained
	LoginSessionEstablished
)

func (s LoginState) String() string {
	switch s {
	case LoginInit:
		return "init"
	case LoginQRRequested:
		return "qr_requested"
	case LoginQRPendingScan:
		return "qr_pending_scan"
	case LoginQRVerified:
		return "qr_verified"
	case LoginPtwebqqObtained:
		return "ptwebqq_obtained"
	case LoginVfwebqqObtained:
		return "vfwebqq_obtained"
	case LoginSessionEstablished:
		return "session_established"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// QRCodeSink receives every QR code image fetched during login. A login that
// outlives its QR code fetches a new one, so the sink may be called again.
type QRCodeSink interface {
	ShowQRCode(ctx context.Context, image io.Reader) error
}

type QRCodeSinkFunc func(ctx context.Context, image io.Reader) error

func (f QRCodeSinkFunc) ShowQRCode(ctx context.Context, image io.Reader) error {
	return f(ctx, image)
}

// FileQRCodeSink writes each QR code image to path, replacing the previous one.
func FileQRCodeSink(path string) QRCodeSink {
	return QRCodeSinkFunc(func(_ context.Context, image io.Reader) error {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if _, err = io.Copy(file, image); err != nil {
			_ = file.Close()
			return err
		}
		return file.Close()
	})
}

// QRLogin walks the token chain from a fresh QR code to an established
// session. Start shows the first QR code; Wait blocks until it is scanned and
// the remaining tokens are fetched.
type QRLogin struct {
	Client *QQClient
	Sink   QRCodeSink
	Log    zerolog.Logger

	state       LoginState
	redirectURL string
}

func (qc *QQClient) NewQRLogin(sink QRCodeSink) *QRLogin {
	return &QRLogin{
		Client: qc,
		Sink:   sink,
		Log:    qc.Log.With().Str("action", "login").Logger(),
	}
}

func (ql *QRLogin) State() LoginState {
	return ql.state
}

func (ql *QRLogin) setState(state LoginState) {
	ql.Log.Debug().Stringer("from", ql.state).Stringer("to", state).Msg("Login state changed")
	ql.state = state
}

func (ql *QRLogin) expectState(step string, state LoginState) error {
	if ql.state != state {
		return fmt.Errorf("cannot %s in login state %s", step, ql.state)
	}
	return nil
}

func (ql *QRLogin) Start(ctx context.Context) error {
	if err := ql.expectState("start login", LoginInit); err != nil {
		return err
	}
	return ql.fetchQRCode(ctx)
}

func (ql *QRLogin) Wait(ctx context.Context) error {
	if err := ql.expectState("wait for login", LoginQRPendingScan); err != nil {
		return err
	}

	if err := ql.waitForScan(ctx); err != nil {
		return err
	}
	if err := ql.fetchPtwebqq(ctx); err != nil {
		return fmt.Errorf("failed to get ptwebqq: %w", err)
	}
	if err := ql.fetchVfwebqq(ctx); err != nil {
		return fmt.Errorf("failed to get vfwebqq: %w", err)
	}
	if err := ql.fetchSession(ctx); err != nil {
		return fmt.Errorf("failed to get uin and psessionid: %w", err)
	}
	return ql.finalize(ctx)
}

func (ql *QRLogin) fetchQRCode(ctx context.Context) error {
	ep, err := ql.Client.Main.Config.Endpoint(EndpointQRCode)
	if err != nil {
		return err
	}

	ql.setState(LoginQRRequested)
	resp, err := ql.Client.Transport.Get(ctx, ep)
	if err != nil {
		return fmt.Errorf("failed to fetch QR code: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Endpoint: ep.Name(), StatusCode: resp.StatusCode}
	}

	mime := mimetype.Detect(resp.Body)
	if !strings.HasPrefix(mime.String(), "image/") {
		return &ProtocolError{Endpoint: ep.Name(), Reason: fmt.Sprintf("QR code response is %s, not an image", mime.String())}
	}

	if err := ql.Sink.ShowQRCode(ctx, bytes.NewReader(resp.Body)); err != nil {
		return fmt.Errorf("failed to show QR code: %w", err)
	}

	qrsig := ql.Client.Transport.Cookie(resp, "qrsig")
	if qrsig == "" {
		return &ProtocolError{Endpoint: ep.Name(), Reason: "response did not set the qrsig cookie"}
	}
	ql.Client.session.QRSig = qrsig

	ql.setState(LoginQRPendingScan)
	ql.Log.Info().Str("mime", mime.String()).Msg("Scan the QR code with the QQ mobile app to log in")

	return nil
}

func (ql *QRLogin) waitForScan(ctx context.Context) error {
	cfg := ql.Client.Main.Config
	ep, err := cfg.Endpoint(EndpointVerifyQRCode)
	if err != nil {
		return err
	}

	var deadline <-chan time.Time
	if cfg.Login.MaxWait > 0 {
		timer := time.NewTimer(cfg.Login.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("QR code was not scanned within %s", cfg.Login.MaxWait)
		case <-time.After(cfg.Login.VerifyInterval):
		}

		resp, err := ql.Client.Transport.Get(ctx, ep, hash33(ql.Client.session.QRSig))
		if err != nil {
			return fmt.Errorf("failed to get QR code status: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &TransportError{Endpoint: ep.Name(), StatusCode: resp.StatusCode}
		}

		body := string(resp.Body)
		switch {
		case strings.Contains(body, qrSuccessMarker):
			redirectURL, ok := extractRedirectURL(body)
			if !ok {
				return &ProtocolError{Endpoint: ep.Name(), Reason: "scan confirmed without a redirect URL"}
			}
			ql.redirectURL = redirectURL
			ql.setState(LoginQRVerified)
			ql.Log.Info().Msg("QR code confirmed, logging in")
			return nil
		case strings.Contains(body, qrExpiredMarker):
			ql.Log.Info().Msg("QR code expired, fetching a new one")
			if err := ql.fetchQRCode(ctx); err != nil {
				return err
			}
		default:
			ql.Log.Trace().Str("status", body).Msg("QR code not confirmed yet")
		}
	}
}

// extractRedirectURL picks the check_sig URL out of the
// ptuiCB('0','0','http://...','0','...') reply.
func extractRedirectURL(body string) (string, bool) {
	for _, part := range strings.Split(body, "','") {
		if strings.HasPrefix(part, "http") {
			return part, true
		}
	}
	return "", false
}

func (ql *QRLogin) fetchPtwebqq(ctx context.Context) error {
	if err := ql.expectState("fetch ptwebqq", LoginQRVerified); err != nil {
		return err
	}
	ep, err := ql.Client.Main.Config.Endpoint(EndpointPtwebqq)
	if err != nil {
		return err
	}

	resp, err := ql.Client.Transport.Get(ctx, ep, ql.redirectURL)
	if err != nil {
		return err
	}
	ptwebqq := ql.Client.Transport.Cookie(resp, "ptwebqq")
	if ptwebqq == "" {
		return &ProtocolError{Endpoint: ep.Name(), Reason: "response did not set the ptwebqq cookie"}
	}

	ql.Client.session.Ptwebqq = ptwebqq
	ql.setState(LoginPtwebqqObtained)
	return nil
}

func (ql *QRLogin) fetchVfwebqq(ctx context.Context) error {
	if err := ql.expectState("fetch vfwebqq", LoginPtwebqqObtained); err != nil {
		return err
	}
	cfg := ql.Client.Main.Config
	ep, err := cfg.Endpoint(EndpointVfwebqq)
	if err != nil {
		return err
	}

	session := &ql.Client.session
	resp, err := ql.Client.Transport.GetRetryNotFound(ctx, ep, cfg.Login.NotFoundRetries, session.Ptwebqq, session.ClientID)
	if err != nil {
		return err
	}
	result, err := parseEnvelope(ql.Log, ep, resp)
	if err != nil {
		return err
	}
	vfwebqq := result.Get("vfwebqq").String()
	if vfwebqq == "" {
		return &ProtocolError{Endpoint: ep.Name(), Reason: "result has no vfwebqq"}
	}

	session.Vfwebqq = vfwebqq
	ql.setState(LoginVfwebqqObtained)
	return nil
}

func (ql *QRLogin) fetchSession(ctx context.Context) error {
	if err := ql.expectState("fetch psessionid", LoginVfwebqqObtained); err != nil {
		return err
	}
	ep, err := ql.Client.Main.Config.Endpoint(EndpointLogin2)
	if err != nil {
		return err
	}

	session := &ql.Client.session
	payload, err := buildPayload(
		payloadField{"ptwebqq", session.Ptwebqq},
		payloadField{"clientid", session.ClientID},
		payloadField{"psessionid", ""},
		payloadField{"status", "online"},
	)
	if err != nil {
		return err
	}

	resp, err := ql.Client.Transport.Post(ctx, ep, payload)
	if err != nil {
		return err
	}
	result, err := parseEnvelope(ql.Log, ep, resp)
	if err != nil {
		return err
	}

	uin := result.Get("uin").Int()
	psessionid := result.Get("psessionid").String()
	if uin == 0 || psessionid == "" {
		return &ProtocolError{Endpoint: ep.Name(), Reason: "result has no uin or psessionid"}
	}

	session.Uin = uin
	session.PSessionID = psessionid
	return nil
}

// finalize confirms the session works by loading the friend status list and
// the account profile.
func (ql *QRLogin) finalize(ctx context.Context) error {
	if !ql.Client.session.Ready() {
		return fmt.Errorf("session is incomplete after login")
	}

	friends, err := ql.Client.GetFriendStatus(ctx)
	if err != nil {
		return err
	}
	account, err := ql.Client.GetAccountInfo(ctx)
	if err != nil {
		return err
	}
	ql.Client.account = account

	ql.setState(LoginSessionEstablished)
	ql.Log.Info().
		Str("uin", qqid.FormatUin(ql.Client.session.Uin)).
		Int("online_friends", len(friends)).
		Msgf("Logged in as %s", account.Nick)

	return nil
}
