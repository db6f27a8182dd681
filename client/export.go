package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/mahaj/logchat/pkg/model"
)

type exportedMessage struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	SentBy string `json:"sent_by"`
	Body   string `json:"message"`
	Date   string `json:"date"`
}

// exporter writes every transcript append as one JSON line, for the
// TRANSCRIPT_LOG file.
type exporter struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *slog.Logger
}

func newExporter(w io.Writer, log *slog.Logger) *exporter {
	return &exporter{enc: json.NewEncoder(w), log: log}
}

// Append matches the transcript append hook.
func (e *exporter) Append(index int, m model.Message) {
	var sentBy string
	if m.Sender != nil {
		sentBy = m.Sender.Handle
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.enc.Encode(exportedMessage{Index: index, ID: m.ID, SentBy: sentBy, Body: m.Body, Date: m.Date})
	if err != nil {
		e.log.Warn("transcript export failed", "err", err)
	}
}
