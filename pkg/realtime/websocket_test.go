package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/logchat/pkg/auth"
	"github.com/mahaj/logchat/pkg/model"
)

var testSecret = []byte("gateway-secret")

// newGateway starts a websocket server that records every client event and
// answers the first client frame with push.
func newGateway(t *testing.T, push []byte) (string, <-chan Event) {
	t.Helper()

	received := make(chan Event, 32)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.ValidateToken(testSecret, auth.StripBearer(r.Header.Get("Authorization"))); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		pushed := false
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			events, _ := decode(frame)
			for _, e := range events {
				received <- e
			}
			if !pushed {
				pushed = true
				if err := conn.WriteMessage(websocket.TextMessage, push); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), received
}

func token(t *testing.T, handle string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, handle, time.Hour)
	require.NoError(t, err)
	return tok
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gateway event")
		return Event{}
	}
}

func TestDialRejectsBadToken(t *testing.T) {
	url, _ := newGateway(t, nil)

	_, err := Dial(context.Background(), url, WSOptions{Token: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestWSChannelRoundTrip(t *testing.T) {
	push := []byte(`{"event":"sendMessage","data":{"user_email":"b@x.com","chat_id":"room","message":"sup","date":"2024-01-01T00:00:01.000Z"}}
{"event":"joinRoom","data":{"user_email":"b@x.com","chat_id":"room"}}
{"event":"startTyping","data":{"user_email":"b@x.com","chat_id":"room"}}`)
	url, received := newGateway(t, push)

	ctx := context.Background()
	ch, err := Dial(ctx, url, WSOptions{Token: token(t, "a@x.com")})
	require.NoError(t, err)

	sub, err := ch.Subscribe(ctx, model.ChatEvents...)
	require.NoError(t, err)

	require.NoError(t, ch.Emit(ctx, model.EventJoinRoom, model.RoomPayload{UserEmail: "a@x.com", ChatID: "room"}))

	join := next(t, received)
	assert.Equal(t, model.EventJoinRoom, join.Name)
	var room model.RoomPayload
	require.NoError(t, join.Decode(&room))
	assert.Equal(t, model.RoomPayload{UserEmail: "a@x.com", ChatID: "room"}, room)

	// The batched frame arrives split, in order, without the unsubscribed joinRoom.
	first := recv(t, sub)
	assert.Equal(t, model.EventSendMessage, first.Name)
	var chat model.ChatPayload
	require.NoError(t, first.Decode(&chat))
	assert.Equal(t, "sup", chat.Message)
	assert.Equal(t, model.EventStartTyping, recv(t, sub).Name)

	require.NoError(t, ch.Emit(ctx, model.EventSendMessage, model.ChatPayload{UserEmail: "a@x.com", ChatID: "room", Message: "yo"}))
	sent := next(t, received)
	assert.Equal(t, model.EventSendMessage, sent.Name)

	require.NoError(t, sub.Cancel())
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel not done after close")
	}

	_, err = ch.Subscribe(ctx, model.EventStopTyping)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ch.Emit(ctx, model.EventStopTyping, model.RoomPayload{}), ErrClosed)
}

func TestWSChannelSendQueueFull(t *testing.T) {
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}

	// The server never reads, so the client's writes back up.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-release
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch, err := Dial(context.Background(), url, WSOptions{SendQueue: 1, WriteWait: 200 * time.Millisecond})
	require.NoError(t, err)
	defer ch.Close()

	var full error
	for i := 0; i < 1_000_000 && full == nil; i++ {
		full = ch.Emit(context.Background(), model.EventStartTyping, model.RoomPayload{UserEmail: "a@x.com", ChatID: "room"})
	}
	assert.ErrorIs(t, full, ErrSendQueueFull)
}
