package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/logchat/pkg/model"
)

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "chat:event:sendMessage", eventChannel(model.EventSendMessage))
	assert.Equal(t, "chat:room:abc:users", presenceKey("abc"))
}

// Runs against a live server when REDIS_ADDR is set.
func TestRedisChannelRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx).Err())

	room := "test-room-" + time.Now().Format("150405.000000")
	defer rdb.Del(context.Background(), presenceKey(room))

	ch := NewRedisChannel(rdb, nil)
	sub, err := ch.Subscribe(ctx, model.ChatEvents...)
	require.NoError(t, err)

	require.NoError(t, ch.Emit(ctx, model.EventJoinRoom, model.RoomPayload{UserEmail: "a@x.com", ChatID: room}))
	require.NoError(t, ch.Emit(ctx, model.EventSendMessage, model.ChatPayload{UserEmail: "a@x.com", ChatID: room, Message: "hi"}))

	e := recv(t, sub)
	assert.Equal(t, model.EventSendMessage, e.Name)
	var chat model.ChatPayload
	require.NoError(t, e.Decode(&chat))
	assert.Equal(t, "hi", chat.Message)

	members, err := ch.Members(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, members)

	require.NoError(t, ch.Emit(ctx, model.EventLeaveRoom, model.RoomPayload{UserEmail: "a@x.com", ChatID: room}))
	require.NoError(t, ch.Close())

	members, err = ch.Members(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.ErrorIs(t, ch.Emit(ctx, model.EventStopTyping, model.RoomPayload{}), ErrClosed)
}
