package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/model"
)

var ErrNoToken = errors.New("login response carried no token")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the authenticated user. Username is the user's handle.
type LoginResult struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Login authenticates and keeps the returned token for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/user/login", nil, loginRequest{Username: username, Password: password}, &res); err != nil {
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, ErrNoToken
	}
	if res.Username == "" {
		res.Username = username
	}

	c.SetToken(res.Token)
	c.log.Info("logged in", "user", res.Username)
	return res, nil
}

type historyResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// FetchHistory returns the persisted conversation with the friend, oldest
// first. Entries that do not decode are skipped one by one.
func (c *Client) FetchHistory(ctx context.Context, req chat.HistoryRequest) ([]model.HistoryPacket, error) {
	var res historyResponse
	q := url.Values{"friend": {req.FriendHandle}}
	if err := c.do(ctx, http.MethodGet, "/messages", q, nil, &res); err != nil {
		return nil, err
	}

	packets := make([]model.HistoryPacket, 0, len(res.Messages))
	for i, raw := range res.Messages {
		var p model.HistoryPacket
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warn("skipping malformed history entry", "index", i, "err", err)
			continue
		}
		packets = append(packets, p)
	}
	return packets, nil
}

type sendRequest struct {
	SentBy  string `json:"sent_by"`
	SentTo  string `json:"sent_to"`
	Message string `json:"message"`
}

// SendMessage stores a message on the backend.
func (c *Client) SendMessage(ctx context.Context, msg model.OutgoingMessage) error {
	body := sendRequest{SentBy: msg.SentBy, SentTo: msg.SentTo, Message: msg.Message}
	if err := c.do(ctx, http.MethodPost, "/messages", nil, body, nil); err != nil {
		return err
	}
	c.log.Debug("message stored", "id", msg.ID)
	return nil
}

// RecentConversations returns one group of packets per conversation, newest
// message first within each group.
func (c *Client) RecentConversations(ctx context.Context) ([][]model.RecentPacket, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/messages/recent", nil, nil, &raw); err != nil {
		return nil, err
	}

	groups := make([][]model.RecentPacket, 0, len(raw))
	for i, r := range raw {
		var group []model.RecentPacket
		if err := json.Unmarshal(r, &group); err != nil {
			c.log.Warn("skipping malformed conversation", "index", i, "err", err)
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

var (
	_ chat.HistoryFetcher = (*Client)(nil)
	_ chat.Sender         = (*Client)(nil)
)
