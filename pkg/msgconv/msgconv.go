package msgconv

import (
	"errors"
	"fmt"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/rs/zerolog"
)

// ErrUnsupportedPollType is returned for poll elements that do not carry a
// chat message, such as buddy status changes.
var ErrUnsupportedPollType = errors.New("unsupported poll type")

// DecodeError reports a poll element whose payload does not have the shape
// its poll type promises.
type DecodeError struct {
	PollType qqid.PollType
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.PollType, e.Reason)
}

type MessageConverter struct {
	Log zerolog.Logger
}

func NewMessageConverter(log zerolog.Logger) *MessageConverter {
	return &MessageConverter{
		Log: log.With().Str("component", "msgconv").Logger(),
	}
}
