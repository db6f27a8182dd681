package inbox

import (
	"encoding/base64"

	"github.com/samber/lo"

	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/transcript"
)

// Conversation is one row of the home list: the friend and the latest message.
type Conversation struct {
	Friend model.Identity
	Last   model.Message
	// Error is a per-conversation error reported by the backend, if any.
	Error string
}

// Transcript opens a fresh transcript for the conversation with the friend
// profile already set.
func (c Conversation) Transcript(opts ...transcript.Option) (*transcript.Transcript, error) {
	tr := transcript.New(opts...)
	if err := tr.SetFriendProfile(c.Friend); err != nil {
		return nil, err
	}
	return tr, nil
}

// Build turns the recent-conversations response into home list rows. Each
// group's first packet is the latest message. Groups that are empty, lack
// required fields or do not involve the local user are skipped.
func Build(localHandle string, groups [][]model.RecentPacket) []Conversation {
	local := &model.Identity{Handle: localHandle}

	return lo.FilterMap(groups, func(group []model.RecentPacket, _ int) (Conversation, bool) {
		if len(group) == 0 {
			return Conversation{}, false
		}
		p := group[0]
		if model.Validate(p) != nil {
			return Conversation{}, false
		}

		var friend model.Identity
		switch localHandle {
		case p.SentBy:
			friend.Handle = p.SentTo
		case p.SentTo:
			friend.Handle = p.SentBy
		default:
			return Conversation{}, false
		}
		if p.Image != nil {
			if avatar, err := base64.StdEncoding.DecodeString(*p.Image); err == nil {
				friend.Avatar = avatar
			}
		}

		sender := local
		if p.SentBy == friend.Handle {
			sender = &friend
		}
		return Conversation{
			Friend: friend,
			Last:   model.Message{Sender: sender, Body: p.Message, Date: p.CreatedAt},
			Error:  lo.FromPtr(p.Error),
		}, true
	})
}
