package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityEqualComparesHandlesOnly(t *testing.T) {
	a := Identity{Handle: "a@x.com", FirstName: "Ann"}
	b := Identity{Handle: "a@x.com", FirstName: "Anne", Avatar: []byte{1}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Identity{Handle: "b@x.com"}))
}

func TestIdentityDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", Identity{Handle: "a", FirstName: "Ann", LastName: "Lee"}.DisplayName())
	assert.Equal(t, "Ann", Identity{Handle: "a", FirstName: "Ann"}.DisplayName())
	assert.Equal(t, "a@x.com", Identity{Handle: "a@x.com"}.DisplayName())
}

func TestFormatAndParseDate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 30, 15, 250*int(time.Millisecond), time.UTC)

	s := FormatDate(ts)
	require.Equal(t, "2024-01-01T12:30:15.250Z", s)

	got, err := ParseDate(s)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	got, err = ParseDate("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	_, err = ParseDate("yesterday")
	assert.Error(t, err)
}

func TestMessageSentBy(t *testing.T) {
	me := &Identity{Handle: "a@x.com"}
	m := Message{Sender: me, Body: "hi"}

	assert.True(t, m.SentBy("a@x.com"))
	assert.False(t, m.SentBy("b@x.com"))
	assert.False(t, Message{Body: "orphan"}.SentBy("a@x.com"))
}

func TestValidateHistoryPacket(t *testing.T) {
	ok := HistoryPacket{SentBy: "b@x.com", Message: "hi", CreatedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, Validate(ok))

	missing := ok
	missing.Message = ""
	assert.ErrorIs(t, Validate(missing), ErrMalformedRecord)

	noSender := ok
	noSender.SentBy = ""
	assert.ErrorIs(t, Validate(noSender), ErrMalformedRecord)
}

func TestValidateRecentPacket(t *testing.T) {
	p := RecentPacket{SentBy: "a", SentTo: "b", Message: "m", CreatedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, Validate(p))

	p.SentTo = ""
	assert.ErrorIs(t, Validate(p), ErrMalformedRecord)
}
