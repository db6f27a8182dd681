package model

// Real-time event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventStartTyping = "startTyping"
	EventStopTyping  = "stopTyping"
)

// ChatEvents are the inbound events a session listens to.
var ChatEvents = []string{EventSendMessage, EventStartTyping, EventStopTyping}

// RoomPayload is carried by joinRoom, leaveRoom, startTyping and stopTyping.
type RoomPayload struct {
	UserEmail string `json:"user_email"`
	ChatID    string `json:"chat_id"`
}

// ChatPayload is carried by sendMessage in both directions.
type ChatPayload struct {
	UserEmail string `json:"user_email"`
	ChatID    string `json:"chat_id"`
	Message   string `json:"message"`
	Date      string `json:"date"`
}

// HistoryPacket is one persisted message as returned by a history fetch.
type HistoryPacket struct {
	ID        string `json:"id,omitempty"`
	SentBy    string `json:"sent_by" validate:"required"`
	Message   string `json:"message" validate:"required"`
	CreatedAt string `json:"created_at" validate:"required"`
}

// HistoryResponse is the body of a history fetch, oldest first.
type HistoryResponse struct {
	Messages []HistoryPacket `json:"messages"`
}

// OutgoingMessage is the persistent send request. ChatID and Date are filled
// for sinks that partition or order by them; the HTTP backend ignores them.
type OutgoingMessage struct {
	ID      string `json:"id,omitempty"`
	SentBy  string `json:"sent_by"`
	SentTo  string `json:"sent_to"`
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
	Date    string `json:"date,omitempty"`
}

// RecentPacket is the latest message of one conversation on the home list.
type RecentPacket struct {
	SentBy    string  `json:"sentBy" validate:"required"`
	SentTo    string  `json:"sentTo" validate:"required"`
	Message   string  `json:"message" validate:"required"`
	CreatedAt string  `json:"created_at" validate:"required"`
	Image     *string `json:"image,omitempty"`
	Error     *string `json:"error,omitempty"`
}
