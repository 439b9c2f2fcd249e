package connector

import (
	"github.com/duo/webqq/pkg/qqid"
)

// Handler receives decoded messages. Methods run synchronously on the poll
// goroutine in the order the server delivered the messages; the next poll is
// not sent until they return.
type Handler interface {
	OnPrivateMessage(msg *qqid.PrivateMessage)
	OnGroupMessage(msg *qqid.GroupMessage)
	OnDiscussMessage(msg *qqid.DiscussMessage)
}

// SessionInvalidHandler can additionally be implemented by a Handler to learn
// that the server revoked the session. Polling continues, but only a new
// login will make it deliver messages again.
type SessionInvalidHandler interface {
	OnSessionInvalid(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil functions drop the
// corresponding messages.
type HandlerFuncs struct {
	Private func(msg *qqid.PrivateMessage)
	Group   func(msg *qqid.GroupMessage)
	Discuss func(msg *qqid.DiscussMessage)
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) OnPrivateMessage(msg *qqid.PrivateMessage) {
	if h.Private != nil {
		h.Private(msg)
	}
}

func (h HandlerFuncs) OnGroupMessage(msg *qqid.GroupMessage) {
	if h.Group != nil {
		h.Group(msg)
	}
}

func (h HandlerFuncs) OnDiscussMessage(msg *qqid.DiscussMessage) {
	if h.Discuss != nil {
		h.Discuss(msg)
	}
}
