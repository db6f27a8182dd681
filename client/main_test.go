package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/inbox"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/transcript"
)

func init() {
	color.Disable()
}

func TestParseInput(t *testing.T) {
	cases := []struct {
		in   string
		cmd  command
		text string
	}{
		{in: "", cmd: cmdNone},
		{in: "   ", cmd: cmdNone},
		{in: "/typing", cmd: cmdTyping},
		{in: "/stop", cmd: cmdStopTyping},
		{in: " /quit ", cmd: cmdQuit},
		{in: "  hello there ", cmd: cmdSend, text: "hello there"},
		{in: "/unknown", cmd: cmdSend, text: "/unknown"},
	}

	for _, tc := range cases {
		cmd, text := parseInput(tc.in)
		assert.Equal(t, tc.cmd, cmd, "input %q", tc.in)
		assert.Equal(t, tc.text, text, "input %q", tc.in)
	}
}

func TestTerminalViewLines(t *testing.T) {
	var buf bytes.Buffer
	v := newTerminalView(&buf, "me@x.com")

	me := &model.Identity{Handle: "me@x.com"}
	friend := &model.Identity{Handle: "bob@x.com", FirstName: "Bob"}

	v.TranscriptReloaded([]model.Message{
		{ID: "1", Sender: friend, Body: "hi", Date: "2024-01-01T00:00:01.000Z"},
	})
	v.MessageAppended(1, model.Message{ID: "2", Sender: me, Body: "yo", Date: "bad"})
	v.TypingChanged("bob@x.com", true)
	v.TypingChanged("bob@x.com", false)
	v.Notice(errors.New("send failed"))
	v.StateChanged(chat.Active)

	out := buf.String()
	assert.Contains(t, out, "Bob: hi")
	assert.Contains(t, out, "--:--:-- you: yo")
	assert.Contains(t, out, "bob@x.com is typing...")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("is typing")))
	assert.Contains(t, out, "! send failed")
	assert.Contains(t, out, "-- active")
}

func TestRenderInbox(t *testing.T) {
	convs := inbox.Build("me@x.com", [][]model.RecentPacket{
		{{SentBy: "bob@x.com", SentTo: "me@x.com", Message: "ping", CreatedAt: "2024-01-01T00:00:01.000Z"}},
		{{SentBy: "me@x.com", SentTo: "amy@x.com", Message: "pong", CreatedAt: "2024-01-01T00:00:02.000Z"}},
	})
	require.Len(t, convs, 2)

	var buf bytes.Buffer
	renderInbox(&buf, convs)

	out := buf.String()
	assert.Contains(t, out, "bob@x.com")
	assert.Contains(t, out, "ping")
	assert.Contains(t, out, "amy@x.com")
	assert.Contains(t, out, "you")
}

func TestOpenTranscriptReusesFriendProfile(t *testing.T) {
	convs := []inbox.Conversation{
		{Friend: model.Identity{Handle: "bob@x.com", FirstName: "Bob"}},
	}

	tr := openTranscript(convs, "bob@x.com", []transcript.Option{transcript.WithTimestampOrdering()})
	friend, ok := tr.FriendProfile()
	require.True(t, ok)
	assert.Equal(t, "Bob", friend.FirstName)

	fresh := openTranscript(convs, "amy@x.com", nil)
	_, ok = fresh.FriendProfile()
	assert.False(t, ok)
}

func TestExporterWritesAppendedMessages(t *testing.T) {
	var buf bytes.Buffer
	tr := transcript.New(transcript.WithOnAppend(newExporter(&buf, slog.Default()).Append))

	bob := &model.Identity{Handle: "bob@x.com"}
	_, err := tr.Append(model.Message{ID: "1", Sender: bob, Body: "hi", Date: "2024-01-01T00:00:01.000Z"})
	require.NoError(t, err)
	_, err = tr.Append(model.Message{ID: "1", Sender: bob, Body: "dupe"})
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var got exportedMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, exportedMessage{Index: 0, ID: "1", SentBy: "bob@x.com", Body: "hi", Date: "2024-01-01T00:00:01.000Z"}, got)
}
