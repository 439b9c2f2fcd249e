package msgconv

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/tidwall/gjson"
	"go.mau.fi/util/jsontime"
)

// ToMessage decodes the value of one poll result element. The poll type
// selects the shape.
func (mc *MessageConverter) ToMessage(pollType qqid.PollType, value gjson.Result) (qqid.Message, error) {
	var msg qqid.Message
	var err error

	switch pollType {
	case qqid.PollMessage:
		msg, err = mc.convertPrivateMessage(value)
	case qqid.PollGroupMessage:
		msg, err = mc.convertGroupMessage(value)
	case qqid.PollDiscussMessage:
		msg, err = mc.convertDiscussMessage(value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPollType, pollType)
	}

	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (mc *MessageConverter) convertPrivateMessage(value gjson.Result) (*qqid.PrivateMessage, error) {
	font, segments, err := parseContent(qqid.PollMessage, value)
	if err != nil {
		return nil, err
	}

	msg := &qqid.PrivateMessage{
		MessageHeader: makeHeader(value, "from_uin", font, segments[1:]),
	}
	mc.Log.Trace().
		Int64("msg_id", msg.ID).
		Int64("sender_id", msg.SenderID).
		Msg("Decoded private message")

	return msg, nil
}

func (mc *MessageConverter) convertGroupMessage(value gjson.Result) (*qqid.GroupMessage, error) {
	font, segments, err := parseContent(qqid.PollGroupMessage, value)
	if err != nil {
		return nil, err
	}

	msg := &qqid.GroupMessage{
		MessageHeader: makeHeader(value, "send_uin", font, conversationSegments(segments)),
		GroupID:       value.Get("group_code").Int(),
	}
	mc.Log.Trace().
		Int64("msg_id", msg.ID).
		Int64("group_id", msg.GroupID).
		Int64("sender_id", msg.SenderID).
		Msg("Decoded group message")

	return msg, nil
}

func (mc *MessageConverter) convertDiscussMessage(value gjson.Result) (*qqid.DiscussMessage, error) {
	font, segments, err := parseContent(qqid.PollDiscussMessage, value)
	if err != nil {
		return nil, err
	}

	msg := &qqid.DiscussMessage{
		MessageHeader: makeHeader(value, "send_uin", font, conversationSegments(segments)),
		DiscussID:     value.Get("did").Int(),
	}
	mc.Log.Trace().
		Int64("msg_id", msg.ID).
		Int64("discuss_id", msg.DiscussID).
		Int64("sender_id", msg.SenderID).
		Msg("Decoded discussion message")

	return msg, nil
}

func makeHeader(value gjson.Result, senderField string, font qqid.Font, segments []gjson.Result) qqid.MessageHeader {
	return qqid.MessageHeader{
		ID:       value.Get("msg_id").Int(),
		Time:     jsontime.Unix{Time: time.Unix(value.Get("time").Int(), 0)},
		SenderID: value.Get(senderField).Int(),
		Content:  toContent(segments),
		Font:     font,
	}
}

// parseContent validates the content array laid out as
// [["font", {...}], segment, ...] and returns the font along with the whole
// array.
func parseContent(pollType qqid.PollType, value gjson.Result) (qqid.Font, []gjson.Result, error) {
	var font qqid.Font

	content := value.Get("content")
	if !content.IsArray() {
		return font, nil, &DecodeError{PollType: pollType, Reason: "content is missing"}
	}
	segments := content.Array()
	if len(segments) == 0 {
		return font, nil, &DecodeError{PollType: pollType, Reason: "content is empty"}
	}

	fontPair := segments[0].Array()
	if !segments[0].IsArray() || len(fontPair) < 2 || !fontPair[1].IsObject() {
		return font, nil, &DecodeError{PollType: pollType, Reason: "content[0] is not a font descriptor"}
	}
	font = fontFromResult(fontPair[1])

	if len(segments) < 2 {
		return font, nil, &DecodeError{PollType: pollType, Reason: "content has no text segment"}
	}

	return font, segments, nil
}

// fontFromResult coerces each field the way the web client does, so a
// string size or a numeric color does not lose the message.
func fontFromResult(result gjson.Result) qqid.Font {
	font := qqid.Font{
		Size:  int(result.Get("size").Int()),
		Color: result.Get("color").String(),
		Name:  result.Get("name").String(),
		Raw:   json.RawMessage(result.Raw),
	}
	for _, style := range result.Get("style").Array() {
		font.Style = append(font.Style, int(style.Int()))
	}
	return font
}

// conversationSegments picks the text of group and discussion messages:
// index 1, plus index 3 when present. Index 2 is a structured element that
// carries no text.
func conversationSegments(segments []gjson.Result) []gjson.Result {
	picked := []gjson.Result{segments[1]}
	if len(segments) > 3 {
		picked = append(picked, segments[3])
	}
	return picked
}

func toContent(segments []gjson.Result) string {
	var content strings.Builder

	for _, seg := range segments {
		switch {
		case seg.Type == gjson.String:
			content.WriteString(seg.Str)
		case seg.IsArray():
			elem := seg.Array()
			if len(elem) == 2 && elem[0].String() == "face" {
				fmt.Fprintf(&content, "/[Face%d]", elem[1].Int())
			}
		}
	}

	return content.String()
}
