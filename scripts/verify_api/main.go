package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/mahaj/logchat/pkg/api"
	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/config"
	"github.com/mahaj/logchat/pkg/logging"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/roomid"
)

func main() {
	cfg, err := config.Load()
	log := logging.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(2)
	}

	friend := flag.String("dm", "test_friend", "friend handle")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := api.New(cfg.APIURL, api.WithLogger(log))

	// 1. Login
	res, err := client.Login(ctx, cfg.User, cfg.Password)
	if err != nil {
		log.Error("login failed", "err", err)
		os.Exit(1)
	}

	// 2. Get history for the DM
	room, err := roomid.Derive(res.Username, *friend)
	if err != nil {
		log.Error("invalid handles", "err", err)
		os.Exit(1)
	}
	packets, err := client.FetchHistory(ctx, chat.HistoryRequest{LocalHandle: res.Username, FriendHandle: *friend, RoomID: room})
	if err != nil {
		log.Error("history request failed", "err", err)
		os.Exit(1)
	}
	log.Info("history", "room", room.Short(), "messages", len(packets))

	// 3. Send one message
	msg := model.OutgoingMessage{
		SentBy:  res.Username,
		SentTo:  *friend,
		Message: "verify_api ping",
		ChatID:  room.String(),
		Date:    model.FormatDate(time.Now()),
	}
	if err := client.SendMessage(ctx, msg); err != nil {
		log.Error("send failed", "err", err)
		os.Exit(1)
	}
	log.Info("message sent")
}
