package connector

import (
	"context"
	"fmt"

	"github.com/duo/webqq/pkg/msgconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

type QQConnector struct {
	Config  *Config
	MsgConv *msgconv.MessageConverter
	Log     zerolog.Logger
}

func NewConnector(cfg *Config, log zerolog.Logger) *QQConnector {
	return &QQConnector{
		Config:  cfg,
		MsgConv: msgconv.NewMessageConverter(log),
		Log:     log,
	}
}

// Connect logs in by QR code and, when handler is not nil, starts delivering
// messages to it. Without a handler the client can still make API calls.
// Connect blocks until the QR code has been scanned, ctx ends or the login
// fails.
func (qc *QQConnector) Connect(ctx context.Context, sink QRCodeSink, handler Handler) (*QQClient, error) {
	client, err := qc.newClient(handler)
	if err != nil {
		return nil, err
	}

	login := client.NewQRLogin(sink)
	if err := login.Start(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to start login: %w", err)
	}
	if err := login.Wait(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	if handler != nil {
		client.startLoops()
	}
	return client, nil
}

func (qc *QQConnector) newClient(handler Handler) (*QQClient, error) {
	transport, err := NewTransport(qc.Config, qc.Log)
	if err != nil {
		return nil, err
	}

	client := &QQClient{
		Main:      qc,
		Log:       qc.Log.With().Str("component", "client").Logger(),
		Transport: transport,
		Handler:   handler,
		done:      make(chan struct{}),
	}
	client.session.ClientID = qc.Config.ClientID
	client.messageID.Store(initialMessageID)

	if size := qc.Config.Poll.DedupeSize; size > 0 {
		if client.seen, err = lru.New[string, struct{}](size); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
		}
	}

	return client, nil
}
