package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mahaj/logchat/pkg/chat"
	"github.com/mahaj/logchat/pkg/model"
)

type HistoryFetcherMock struct {
	mock.Mock
}

func (m *HistoryFetcherMock) FetchHistory(ctx context.Context, req chat.HistoryRequest) ([]model.HistoryPacket, error) {
	args := m.Called(ctx, req)
	var packets []model.HistoryPacket
	if val := args.Get(0); val != nil {
		packets = val.([]model.HistoryPacket)
	}
	return packets, args.Error(1)
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) SendMessage(ctx context.Context, msg model.OutgoingMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
