package chat

import (
	"context"

	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/roomid"
)

// HistoryRequest names the conversation whose history is fetched.
type HistoryRequest struct {
	LocalHandle  string
	FriendHandle string
	RoomID       roomid.ID
}

// HistoryFetcher returns persisted messages, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, req HistoryRequest) ([]model.HistoryPacket, error)
}

// Sender persists an outgoing message.
type Sender interface {
	SendMessage(ctx context.Context, msg model.OutgoingMessage) error
}

// IDSource mints ids for optimistic local messages.
type IDSource interface {
	NextID() string
}

// Listener receives view updates. Once Start succeeds, every call happens on
// the session's consumer goroutine, one at a time. The only exception is the
// Closed state change of a session that never reached Joining, reported on
// the goroutine that called Start or Close.
type Listener interface {
	StateChanged(state State)
	// TranscriptReloaded replaces the whole view after the history seed.
	TranscriptReloaded(messages []model.Message)
	// MessageAppended adds one message at index.
	MessageAppended(index int, msg model.Message)
	TypingChanged(handle string, typing bool)
	// Notice reports a non-fatal failure.
	Notice(err error)
}

// NopListener ignores everything. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) StateChanged(State) {}
func (NopListener) TranscriptReloaded([]model.Message) {}
func (NopListener) MessageAppended(int, model.Message) {}
func (NopListener) TypingChanged(string, bool) {}
func (NopListener) Notice(error) {}
