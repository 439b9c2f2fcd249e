package qqid

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.mau.fi/util/jsontime"
)

type ChatType int

const (
	ChatUnknown ChatType = iota
	ChatPrivate
	ChatGroup
	ChatDiscuss
)

func (ct ChatType) String() string {
	switch ct {
	case ChatPrivate:
		return "private"
	case ChatGroup:
		return "group"
	case ChatDiscuss:
		return "discuss"
	default:
		return "unknown"
	}
}

// PollType is the discriminator carried by every element of a poll result.
type PollType string

const (
	PollMessage        PollType = "message"
	PollGroupMessage   PollType = "group_message"
	PollDiscussMessage PollType = "discu_message"
	PollKickMessage    PollType = "kick_message"
)

// Font is the style descriptor sent alongside every message. Raw holds the
// descriptor exactly as received; the typed fields are best-effort reads of it.
type Font struct {
	Size  int    `json:"size"`
	Color string `json:"color"`
	Style []int  `json:"style"`
	Name  string `json:"name"`

	Raw json.RawMessage `json:"-"`
}

// Message is one of *PrivateMessage, *GroupMessage or *DiscussMessage.
type Message interface {
	ChatType() ChatType
	ChatID() int64
	Header() *MessageHeader
}

type MessageHeader struct {
	ID       int64
	Time     jsontime.Unix
	SenderID int64
	Content  string
	Font     Font
}

func (h *MessageHeader) Header() *MessageHeader {
	return h
}

type PrivateMessage struct {
	MessageHeader
}

func (m *PrivateMessage) ChatType() ChatType { return ChatPrivate }
func (m *PrivateMessage) ChatID() int64      { return m.SenderID }

type GroupMessage struct {
	MessageHeader
	GroupID int64
}

func (m *GroupMessage) ChatType() ChatType { return ChatGroup }
func (m *GroupMessage) ChatID() int64      { return m.GroupID }

type DiscussMessage struct {
	MessageHeader
	DiscussID int64
}

func (m *DiscussMessage) ChatType() ChatType { return ChatDiscuss }
func (m *DiscussMessage) ChatID() int64      { return m.DiscussID }

var (
	_ Message = (*PrivateMessage)(nil)
	_ Message = (*GroupMessage)(nil)
	_ Message = (*DiscussMessage)(nil)
)

// MakeMessageKey identifies a message within its conversation.
func MakeMessageKey(msg Message) string {
	return fmt.Sprintf("%s:%d:%d", msg.ChatType(), msg.ChatID(), msg.Header().ID)
}

type FriendStatus struct {
	Uin        int64  `json:"uin"`
	Status     string `json:"status"`
	ClientType int    `json:"client_type"`
}

type Birthday struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type AccountInfo struct {
	Uin        int64    `json:"uin"`
	Nick       string   `json:"nick"`
	LongNick   string   `json:"lnick"`
	Gender     string   `json:"gender"`
	Birthday   Birthday `json:"birthday"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Mobile     string   `json:"mobile"`
	Occupation string   `json:"occupation"`
	College    string   `json:"college"`
	Homepage   string   `json:"homepage"`
	Country    string   `json:"country"`
	Province   string   `json:"province"`
	City       string   `json:"city"`
	Personal   string   `json:"personal"`
	Shengxiao  int      `json:"shengxiao"`
	Constel    int      `json:"constel"`
	Blood      int      `json:"blood"`
	VipInfo    int      `json:"vip_info"`
	Allow      int      `json:"allow"`
}

func FormatUin(uin int64) string {
	return strconv.FormatInt(uin, 10)
}
