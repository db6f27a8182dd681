package inbox

import (
	"encoding/base64"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/logchat/pkg/model"
)

func TestBuild(t *testing.T) {
	avatar := []byte{0x89, 'P', 'N', 'G'}

	groups := [][]model.RecentPacket{
		{
			{SentBy: "b@x.com", SentTo: "a@x.com", Message: "latest", CreatedAt: "2024-01-02T00:00:00Z",
				Image: lo.ToPtr(base64.StdEncoding.EncodeToString(avatar))},
			{SentBy: "a@x.com", SentTo: "b@x.com", Message: "older", CreatedAt: "2024-01-01T00:00:00Z"},
		},
		{
			{SentBy: "a@x.com", SentTo: "c@x.com", Message: "mine", CreatedAt: "2024-01-03T00:00:00Z",
				Image: lo.ToPtr("%%% not base64"), Error: lo.ToPtr("image missing")},
		},
		{},
		{{SentBy: "b@x.com", SentTo: "a@x.com", CreatedAt: "2024-01-01T00:00:00Z"}},
		{{SentBy: "x@x.com", SentTo: "y@x.com", Message: "not ours", CreatedAt: "2024-01-01T00:00:00Z"}},
	}

	convs := Build("a@x.com", groups)
	require.Len(t, convs, 2)

	assert.Equal(t, "b@x.com", convs[0].Friend.Handle)
	assert.Equal(t, avatar, convs[0].Friend.Avatar)
	assert.Equal(t, "latest", convs[0].Last.Body)
	assert.True(t, convs[0].Last.SentBy("b@x.com"))
	assert.Empty(t, convs[0].Error)

	assert.Equal(t, "c@x.com", convs[1].Friend.Handle)
	assert.Nil(t, convs[1].Friend.Avatar)
	assert.True(t, convs[1].Last.SentBy("a@x.com"))
	assert.Equal(t, "image missing", convs[1].Error)
}

func TestConversationTranscript(t *testing.T) {
	conv := Conversation{Friend: model.Identity{Handle: "b@x.com"}}

	tr, err := conv.Transcript()
	require.NoError(t, err)
	assert.Zero(t, tr.Len())

	friend, ok := tr.FriendProfile()
	require.True(t, ok)
	assert.Equal(t, "b@x.com", friend.Handle)

	_, err = Conversation{}.Transcript()
	assert.ErrorIs(t, err, model.ErrInvalidIdentity)
}
