package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/db"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/roomid"
	"github.com/mahaj/logchat/pkg/snowflake"
)

const defaultLimit = 200

// Archive reads and writes conversation history in ScyllaDB.
type Archive struct {
	session *gocql.Session
	ids     *snowflake.Node
	log     *slog.Logger
	limit   int
}

func New(session *db.Session, ids *snowflake.Node, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		session: session.Session,
		ids:     ids,
		log:     logger.With("component", "archive"),
		limit:   defaultLimit,
	}
}

// WithLimit caps how many messages FetchHistory reads.
func (a *Archive) WithLimit(n int) *Archive {
	if n > 0 {
		a.limit = n
	}
	return a
}

// FetchHistory returns the newest messages of the room, oldest first.
func (a *Archive) FetchHistory(ctx context.Context, req chat.HistoryRequest) ([]model.HistoryPacket, error) {
	iter := a.session.Query(
		`SELECT id, user_id, content, timestamp FROM messages WHERE channel_id = ? LIMIT ?`,
		req.RoomID.String(), a.limit,
	).WithContext(ctx).Iter()

	var (
		rows      []row
		id        int64
		userID    string
		content   string
		timestamp time.Time
	)
	for iter.Scan(&id, &userID, &content, &timestamp) {
		rows = append(rows, row{id: id, userID: userID, content: content, timestamp: timestamp})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read history %s: %w: %v", req.RoomID.Short(), model.ErrNetworkFailure, err)
	}

	return toPackets(rows), nil
}

// SendMessage stores the message and bumps both participants' conversation lists.
func (a *Archive) SendMessage(ctx context.Context, msg model.OutgoingMessage) error {
	chatID := msg.ChatID
	if chatID == "" {
		room, err := roomid.Derive(msg.SentBy, msg.SentTo)
		if err != nil {
			return err
		}
		chatID = room.String()
	}

	id := a.messageID(msg.ID)
	ts := timestampOf(msg.Date)

	err := a.session.Query(
		`INSERT INTO messages (channel_id, id, user_id, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		chatID, id, msg.SentBy, msg.Message, ts,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("store message: %w: %v", model.ErrNetworkFailure, err)
	}

	for _, pair := range [][2]string{{msg.SentBy, msg.SentTo}, {msg.SentTo, msg.SentBy}} {
		err := a.session.Query(
			`INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`,
			pair[0], pair[1], ts,
		).WithContext(ctx).Exec()
		if err != nil {
			a.log.Error("failed to update conversation", "user", pair[0], "err", err)
		}
	}

	a.log.Debug("message stored", "id", id, "room", chatID)
	return nil
}

// RecentConversations lists the user's conversations, each as a one-packet
// group holding the latest message.
func (a *Archive) RecentConversations(ctx context.Context, handle string) ([][]model.RecentPacket, error) {
	iter := a.session.Query(
		`SELECT other_user_id FROM user_conversations WHERE user_id = ?`, handle,
	).WithContext(ctx).Iter()

	var (
		friends []string
		other   string
	)
	for iter.Scan(&other) {
		friends = append(friends, other)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list conversations: %w: %v", model.ErrNetworkFailure, err)
	}

	groups := make([][]model.RecentPacket, 0, len(friends))
	for _, friend := range friends {
		room, err := roomid.Derive(handle, friend)
		if err != nil {
			continue
		}

		var r row
		err = a.session.Query(
			`SELECT id, user_id, content, timestamp FROM messages WHERE channel_id = ? LIMIT 1`, room.String(),
		).WithContext(ctx).Scan(&r.id, &r.userID, &r.content, &r.timestamp)
		if err == gocql.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest message with %s: %w: %v", friend, model.ErrNetworkFailure, err)
		}
		groups = append(groups, []model.RecentPacket{r.recent(handle, friend)})
	}
	return groups, nil
}

func (a *Archive) messageID(local string) int64 {
	if id, err := strconv.ParseInt(local, 10, 64); err == nil && id > 0 {
		return id
	}
	return int64(a.ids.Generate())
}

type row struct {
	id        int64
	userID    string
	content   string
	timestamp time.Time
}

func (r row) packet() model.HistoryPacket {
	return model.HistoryPacket{
		ID:        strconv.FormatInt(r.id, 10),
		SentBy:    r.userID,
		Message:   r.content,
		CreatedAt: model.FormatDate(r.timestamp),
	}
}

func (r row) recent(handle, friend string) model.RecentPacket {
	sentTo := friend
	if r.userID == friend {
		sentTo = handle
	}
	return model.RecentPacket{
		SentBy:    r.userID,
		SentTo:    sentTo,
		Message:   r.content,
		CreatedAt: model.FormatDate(r.timestamp),
	}
}

// toPackets converts rows read newest first into packets oldest first.
func toPackets(rows []row) []model.HistoryPacket {
	packets := make([]model.HistoryPacket, len(rows))
	for i, r := range rows {
		packets[len(rows)-1-i] = r.packet()
	}
	return packets
}

func timestampOf(date string) time.Time {
	if ts, err := model.ParseDate(date); err == nil {
		return ts
	}
	return time.Now().UTC()
}

var (
	_ chat.HistoryFetcher = (*Archive)(nil)
	_ chat.Sender         = (*Archive)(nil)
)
