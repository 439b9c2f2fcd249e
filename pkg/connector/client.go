package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/duo/webqq/pkg/qqid"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"
)

const initialMessageID = 43690001

type QQClient struct {
	Main      *QQConnector
	Log       zerolog.Logger
	Transport *Transport
	Handler   Handler

	session qqid.Session
	account *qqid.AccountInfo

	messageID atomic.Int64
	seen      *lru.Cache[string, struct{}]

	stopped     atomic.Bool
	stopLoops   atomic.Pointer[context.CancelFunc]
	loopStarted atomic.Bool
	done        chan struct{}
	doneOnce    sync.Once
}

// Session returns a copy of the current session tokens.
func (qc *QQClient) Session() qqid.Session {
	return qc.session
}

// Account is the profile loaded at the end of login.
func (qc *QQClient) Account() *qqid.AccountInfo {
	return qc.account
}

// NextMessageID returns a fresh id for outgoing messages.
func (qc *QQClient) NextMessageID() int64 {
	return qc.messageID.Add(1) - 1
}

func (qc *QQClient) IsLoggedIn() bool {
	return qc.session.Ready() && !qc.stopped.Load()
}

func (qc *QQClient) startLoops() {
	ctx, cancel := context.WithCancel(context.Background())
	oldStop := qc.stopLoops.Swap(&cancel)
	if oldStop != nil {
		(*oldStop)()
	}

	qc.loopStarted.Store(true)
	go qc.pollLoop(ctx)
}

// Done is closed once the client is closed and the poll loop has exited.
func (qc *QQClient) Done() <-chan struct{} {
	return qc.done
}

func (qc *QQClient) markDone() {
	qc.doneOnce.Do(func() {
		close(qc.done)
	})
}

// Close stops the poll loop and releases the connection pool. A poll already
// in flight is left to finish; its messages are still delivered.
func (qc *QQClient) Close() error {
	qc.stopped.Store(true)
	if stopPollLoop := qc.stopLoops.Swap(nil); stopPollLoop != nil {
		(*stopPollLoop)()
	}

	err := qc.Transport.Close()
	if !qc.loopStarted.Load() {
		qc.markDone()
	}
	return err
}

type payloadField struct {
	key   string
	value any
}

func buildPayload(fields ...payloadField) (string, error) {
	payload := "{}"
	for _, field := range fields {
		var err error
		if payload, err = sjson.Set(payload, field.key, field.value); err != nil {
			return "", err
		}
	}
	return payload, nil
}
