package transcript

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/logchat/pkg/model"
)

var (
	ann = &model.Identity{Handle: "a@x.com", FirstName: "Ann"}
	bob = &model.Identity{Handle: "b@x.com", FirstName: "Bob"}
)

func bodies(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestAppendKeepsDeliveryOrder(t *testing.T) {
	tr := New()

	for i, m := range []model.Message{
		{Sender: bob, Body: "hi", Date: "2024-01-01T00:00:05.000Z"},
		{Sender: ann, Body: "yo", Date: "2024-01-01T00:00:01.000Z"},
		{Sender: bob, Body: "sup", Date: "2024-01-01T00:00:03.000Z"},
	} {
		idx, err := tr.Append(m)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}

	assert.Equal(t, []string{"hi", "yo", "sup"}, bodies(tr.Snapshot()))
	assert.Equal(t, 3, tr.Len())

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "sup", last.Body)
	assert.True(t, last.SentBy("b@x.com"))
}

func TestAppendRejectsInvalidMessages(t *testing.T) {
	tr := New()

	_, err := tr.Append(model.Message{Body: "no sender"})
	assert.ErrorIs(t, err, model.ErrMalformedRecord)

	_, err = tr.Append(model.Message{Sender: &model.Identity{}, Body: "blank handle"})
	assert.ErrorIs(t, err, model.ErrMalformedRecord)

	_, err = tr.Append(model.Message{Sender: ann})
	assert.ErrorIs(t, err, model.ErrEmptyMessage)

	assert.Zero(t, tr.Len())
	_, ok := tr.Last()
	assert.False(t, ok)
}

func TestAppendRejectsDuplicateIDs(t *testing.T) {
	tr := New()

	_, err := tr.Append(model.Message{ID: "42", Sender: ann, Body: "one"})
	require.NoError(t, err)

	_, err = tr.Append(model.Message{ID: "42", Sender: ann, Body: "one again"})
	assert.ErrorIs(t, err, model.ErrDuplicateMessage)

	// Messages without ids are never treated as duplicates.
	_, err = tr.Append(model.Message{Sender: bob, Body: "same"})
	require.NoError(t, err)
	_, err = tr.Append(model.Message{Sender: bob, Body: "same"})
	require.NoError(t, err)

	assert.Equal(t, 3, tr.Len())
}

func TestTimestampOrdering(t *testing.T) {
	tr := New(WithTimestampOrdering())

	steps := []struct {
		msg     model.Message
		wantIdx int
	}{
		{model.Message{Sender: bob, Body: "b", Date: "2024-01-01T00:00:02.000Z"}, 0},
		{model.Message{Sender: bob, Body: "nodate", Date: "garbage"}, 1},
		{model.Message{Sender: ann, Body: "a", Date: "2024-01-01T00:00:01.000Z"}, 0},
		{model.Message{Sender: ann, Body: "c", Date: "2024-01-01T00:00:03Z"}, 2},
		{model.Message{Sender: bob, Body: "b2", Date: "2024-01-01T00:00:02.000Z"}, 2},
	}

	for _, s := range steps {
		idx, err := tr.Append(s.msg)
		require.NoError(t, err)
		assert.Equal(t, s.wantIdx, idx, s.msg.Body)
	}

	assert.Equal(t, []string{"a", "b", "b2", "c", "nodate"}, bodies(tr.Snapshot()))
}

func TestOnAppendHook(t *testing.T) {
	var got []int
	tr := New(WithOnAppend(func(index int, m model.Message) {
		got = append(got, index)
	}))

	_, err := tr.Append(model.Message{Sender: ann, Body: "x"})
	require.NoError(t, err)
	_, err = tr.Append(model.Message{Sender: ann})
	require.Error(t, err)
	_, err = tr.Append(model.Message{Sender: bob, Body: "y"})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, got)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := New()
	_, err := tr.Append(model.Message{Sender: ann, Body: "original"})
	require.NoError(t, err)

	snap := tr.Snapshot()
	snap[0].Body = "changed"

	last, _ := tr.Last()
	assert.Equal(t, "original", last.Body)
}

func TestFriendProfileIsSetOnce(t *testing.T) {
	tr := New()

	_, ok := tr.FriendProfile()
	assert.False(t, ok)

	require.ErrorIs(t, tr.SetFriendProfile(model.Identity{}), model.ErrInvalidIdentity)
	require.NoError(t, tr.SetFriendProfile(*bob))
	require.NoError(t, tr.SetFriendProfile(model.Identity{Handle: "b@x.com", FirstName: "Robert"}))

	err := tr.SetFriendProfile(*ann)
	assert.ErrorIs(t, err, model.ErrProfileMismatch)

	friend, ok := tr.FriendProfile()
	require.True(t, ok)
	assert.Equal(t, "Bob", friend.FirstName)
}

func TestConcurrentSnapshotDuringAppend(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = tr.Append(model.Message{Sender: ann, Body: "m"})
		}
	}()

	for i := 0; i < 100; i++ {
		snap := tr.Snapshot()
		assert.LessOrEqual(t, len(snap), 500)
	}
	wg.Wait()

	assert.Equal(t, 500, tr.Len())
}
