package connector

import (
	"errors"

	"github.com/duo/webqq/pkg/msgconv"
	"github.com/duo/webqq/pkg/qqid"

	"github.com/tidwall/gjson"
)

// handlePollItem decodes and delivers one element of a poll result. A broken
// element is logged and skipped so the rest of the batch still arrives.
func (qc *QQClient) handlePollItem(item gjson.Result) {
	pollType := qqid.PollType(item.Get("poll_type").String())

	msg, err := qc.Main.MsgConv.ToMessage(pollType, item.Get("value"))
	if errors.Is(err, msgconv.ErrUnsupportedPollType) {
		if pollType == qqid.PollKickMessage {
			qc.Log.Warn().
				Str("reason", item.Get("value.reason").String()).
				Msg("Kicked offline by another login")
		} else {
			qc.Log.Debug().Str("poll_type", string(pollType)).Msg("Ignoring poll item")
		}
		return
	} else if err != nil {
		qc.Log.Warn().Err(err).Str("poll_type", string(pollType)).Msg("Failed to decode poll item")
		return
	}

	if qc.isDuplicate(msg) {
		qc.Log.Debug().Str("key", qqid.MakeMessageKey(msg)).Msg("Dropping redelivered message")
		return
	}

	qc.dispatch(msg)
}

func (qc *QQClient) isDuplicate(msg qqid.Message) bool {
	if qc.seen == nil || msg.Header().ID == 0 {
		return false
	}
	found, _ := qc.seen.ContainsOrAdd(qqid.MakeMessageKey(msg), struct{}{})
	return found
}

func (qc *QQClient) dispatch(msg qqid.Message) {
	defer func() {
		if r := recover(); r != nil {
			qc.Log.Error().
				Any("panic", r).
				Str("key", qqid.MakeMessageKey(msg)).
				Msg("Message handler panicked")
		}
	}()

	switch m := msg.(type) {
	case *qqid.PrivateMessage:
		qc.handlePrivateMessage(m)
	case *qqid.GroupMessage:
		qc.handleGroupMessage(m)
	case *qqid.DiscussMessage:
		qc.handleDiscussMessage(m)
	default:
		qc.Log.Warn().Msgf("Unhandled message type %T", msg)
	}
}

func (qc *QQClient) handlePrivateMessage(msg *qqid.PrivateMessage) {
	qc.Log.Trace().
		Any("message", msg).
		Msg("Receive QQ private message")

	qc.Handler.OnPrivateMessage(msg)
}

func (qc *QQClient) handleGroupMessage(msg *qqid.GroupMessage) {
	qc.Log.Trace().
		Any("message", msg).
		Msg("Receive QQ group message")

	qc.Handler.OnGroupMessage(msg)
}

func (qc *QQClient) handleDiscussMessage(msg *qqid.DiscussMessage) {
	qc.Log.Trace().
		Any("message", msg).
		Msg("Receive QQ discussion message")

	qc.Handler.OnDiscussMessage(msg)
}
