package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/model"
	"github.com/mahaj/logchat/pkg/realtime"
	"github.com/mahaj/logchat/pkg/roomid"
	"github.com/mahaj/logchat/pkg/snowflake"
	"github.com/mahaj/logchat/pkg/transcript"
)

// Options wires a Session. Channel, History and Sender are required.
type Options struct {
	Local  model.Identity
	Friend model.Identity

	Channel realtime.Channel
	History HistoryFetcher
	Sender  Sender

	Listener Listener
	Logger   *slog.Logger
	IDs      IDSource
	Clock    func() time.Time

	// Transcript seeds the session with an existing transcript, such as one
	// opened from the conversation list. Otherwise a new one is built from
	// TranscriptOptions.
	Transcript        *transcript.Transcript
	TranscriptOptions []transcript.Option
}

// Session runs one conversation between the local user and a friend.
//
// A single consumer goroutine owns every transcript mutation and every
// listener call. History results, send failures and channel events are
// posted onto it.
type Session struct {
	id     string
	local  *model.Identity
	friend *model.Identity

	ch       realtime.Channel
	history  HistoryFetcher
	sender   Sender
	listener Listener
	ids      IDSource
	clock    func() time.Time
	log      *slog.Logger
	tr       *transcript.Transcript

	mu       sync.Mutex
	state    State
	starting bool
	room     roomid.ID
	sub      realtime.Subscription

	cmds     chan func()
	pending  []realtime.Event
	ready    chan struct{}
	done     chan struct{}
	loopDone chan struct{}
}

func New(opts Options) (*Session, error) {
	switch {
	case opts.Channel == nil:
		return nil, errors.New("chat: channel is required")
	case opts.History == nil:
		return nil, errors.New("chat: history fetcher is required")
	case opts.Sender == nil:
		return nil, errors.New("chat: sender is required")
	}

	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IDs == nil {
		node, err := snowflake.NewNode(0)
		if err != nil {
			return nil, err
		}
		opts.IDs = node
	}
	if opts.Transcript == nil {
		opts.Transcript = transcript.New(opts.TranscriptOptions...)
	}

	local, friend := opts.Local, opts.Friend
	id := uuid.NewString()
	s := &Session{
		id:       id,
		local:    &local,
		friend:   &friend,
		ch:       opts.Channel,
		history:  opts.History,
		sender:   opts.Sender,
		listener: opts.Listener,
		ids:      opts.IDs,
		clock:    opts.Clock,
		log:      opts.Logger.With("session_id", id),
		tr:       opts.Transcript,
		state:    Idle,
		cmds:     make(chan func()),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	metrics.MoveSession("", Idle.String())
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID is empty until Start derives it.
func (s *Session) RoomID() roomid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Transcript returns a snapshot of the conversation.
func (s *Session) Transcript() []model.Message { return s.tr.Snapshot() }

func (s *Session) Local() model.Identity  { return *s.local }
func (s *Session) Friend() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.friend
}

// Ready is closed when the session becomes Active.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed when the session is Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start joins the room and begins loading history. It returns once the
// session is Joining; Ready is closed when the history seed completes.
// The session lock is not held across channel calls.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle || s.starting {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start from %s: %w", state, model.ErrNotReady)
	}
	s.starting = true
	s.mu.Unlock()

	room, err := roomid.Derive(s.local.Handle, s.friend.Handle)
	if err != nil {
		s.abort()
		return fmt.Errorf("start session: %w", err)
	}
	if err := s.tr.SetFriendProfile(*s.friend); err != nil {
		s.abort()
		return fmt.Errorf("start session: %w", err)
	}
	// Friend messages carry the transcript's profile, which may be richer
	// than the identity the session was built with.
	friend, _ := s.tr.FriendProfile()

	sub, err := s.ch.Subscribe(ctx, model.ChatEvents...)
	if err != nil {
		s.abort()
		return fmt.Errorf("subscribe: %w", networkFailure(err))
	}

	join := model.RoomPayload{UserEmail: s.local.Handle, ChatID: room.String()}
	if err := s.ch.Emit(ctx, model.EventJoinRoom, join); err != nil {
		sub.Cancel()
		s.abort()
		return fmt.Errorf("join room: %w", networkFailure(err))
	}

	s.mu.Lock()
	s.starting = false
	if s.state != Idle {
		// Closed while joining.
		s.mu.Unlock()
		sub.Cancel()
		leave := model.RoomPayload{UserEmail: s.local.Handle, ChatID: room.String()}
		if err := s.ch.Emit(context.WithoutCancel(ctx), model.EventLeaveRoom, leave); err != nil {
			s.log.Warn("emit failed", "event", model.EventLeaveRoom, "err", err)
		}
		return fmt.Errorf("start: closed while joining: %w", model.ErrNotReady)
	}
	s.room = room
	s.sub = sub
	s.friend = &friend
	s.log = s.log.With("room", room.Short())
	s.state = Joining
	s.mu.Unlock()

	metrics.MoveSession(Idle.String(), Joining.String())
	s.log.Info("joined room", "local", s.local.Handle, "friend", friend.Handle)

	req := HistoryRequest{LocalHandle: s.local.Handle, FriendHandle: friend.Handle, RoomID: room}
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		packets, err := s.history.FetchHistory(fetchCtx, req)
		s.post(func() { s.seed(packets, err) })
	}()

	go s.run(sub)
	return nil
}

// abort moves a session whose start failed straight to Closed, unless a
// concurrent Close already did.
func (s *Session) abort() {
	s.mu.Lock()
	s.starting = false
	if s.state != Idle {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	close(s.done)
	close(s.loopDone)
	s.mu.Unlock()

	metrics.MoveSession(Idle.String(), Closed.String())
	s.listener.StateChanged(Closed)
}

// Send appends text to the transcript right away, then persists it and
// notifies the friend. Persistence and notification failures surface as
// notices; the message stays in the transcript.
func (s *Session) Send(ctx context.Context, text string) error {
	if text == "" {
		return model.ErrEmptyMessage
	}
	if state := s.State(); state != Active {
		return fmt.Errorf("send while %s: %w", state, model.ErrNotReady)
	}

	errc := make(chan error, 1)
	select {
	case s.cmds <- func() { errc <- s.send(ctx, text) }:
	case <-s.loopDone:
		return fmt.Errorf("send after close: %w", model.ErrNotReady)
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

func (s *Session) StartTyping(ctx context.Context) error {
	return s.emitTyping(ctx, model.EventStartTyping)
}

func (s *Session) StopTyping(ctx context.Context) error {
	return s.emitTyping(ctx, model.EventStopTyping)
}

func (s *Session) emitTyping(ctx context.Context, event string) error {
	if state := s.State(); state != Active {
		return fmt.Errorf("%s while %s: %w", event, state, model.ErrNotReady)
	}
	if err := s.ch.Emit(ctx, event, s.roomPayload()); err != nil {
		return networkFailure(err)
	}
	return nil
}

// Close leaves the room and releases the subscription. It is safe to call
// more than once. In-flight history and send requests are not cancelled;
// their results are ignored. A session that never reached Joining is closed
// on the caller's goroutine.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Closed
		close(s.done)
		close(s.loopDone)
		s.mu.Unlock()
		metrics.MoveSession(Idle.String(), Closed.String())
		s.listener.StateChanged(Closed)
		return nil
	case Closed:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.post(s.teardown)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the consumer goroutine. Once the loop has exited fn is
// dropped.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.loopDone:
	}
}

func (s *Session) run(sub realtime.Subscription) {
	defer close(s.loopDone)

	s.listener.StateChanged(Joining)

	events, subDone := sub.Events(), sub.Done()
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case e := <-events:
			s.handle(e)
		case <-subDone:
			for drained := false; !drained; {
				select {
				case e := <-events:
					s.handle(e)
				default:
					drained = true
				}
			}
			subDone, events = nil, nil
			if state := s.State(); state == Joining || state == Active {
				s.log.Warn("real-time channel closed")
				s.notice("real-time channel", realtime.ErrClosed)
			}
		}

		if s.State() == Closed {
			return
		}
	}
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	metrics.MoveSession(from.String(), to.String())
	s.log.Debug("state changed", "from", from.String(), "to", to.String())
	s.listener.StateChanged(to)
}

// seed applies the history fetch result and enters Active.
func (s *Session) seed(packets []model.HistoryPacket, fetchErr error) {
	if s.State() != Joining {
		s.log.Debug("ignoring late history result")
		return
	}

	if fetchErr != nil {
		s.log.Error("history fetch failed", "err", fetchErr)
		s.notice("fetch history", fetchErr)
	}

	for _, p := range packets {
		msg, reason := s.fromPacket(p)
		if reason != "" {
			s.drop(reason, "id", p.ID, "sent_by", p.SentBy)
			continue
		}
		if _, err := s.tr.Append(msg); err != nil {
			s.drop(reasonOf(err), "id", p.ID, "err", err)
			continue
		}
		metrics.IncAppend("history")
	}

	s.setState(Active)
	close(s.ready)
	s.listener.TranscriptReloaded(s.tr.Snapshot())

	pending := s.pending
	s.pending = nil
	for _, e := range pending {
		s.handle(e)
	}
}

func (s *Session) fromPacket(p model.HistoryPacket) (model.Message, string) {
	if err := model.Validate(p); err != nil {
		return model.Message{}, "malformed"
	}

	var sender *model.Identity
	switch p.SentBy {
	case s.friend.Handle:
		sender = s.friend
	case s.local.Handle:
		sender = s.local
	default:
		return model.Message{}, "unknown_sender"
	}

	return model.Message{ID: p.ID, Sender: sender, Body: p.Message, Date: p.CreatedAt}, ""
}

func (s *Session) handle(e realtime.Event) {
	switch s.State() {
	case Joining:
		s.pending = append(s.pending, e)
		return
	case Active:
	default:
		return
	}

	switch e.Name {
	case model.EventSendMessage:
		var p model.ChatPayload
		if err := e.Decode(&p); err != nil {
			s.drop("malformed", "event", e.Name, "err", err)
			return
		}
		if reason := s.filter(p.UserEmail, p.ChatID); reason != "" {
			s.drop(reason, "event", e.Name, "user", p.UserEmail)
			return
		}
		if p.Message == "" {
			s.drop("empty", "event", e.Name)
			return
		}

		date := p.Date
		if date == "" {
			date = model.FormatDate(s.clock())
		}
		msg := model.Message{Sender: s.friend, Body: p.Message, Date: date}
		idx, err := s.tr.Append(msg)
		if err != nil {
			s.drop(reasonOf(err), "event", e.Name, "err", err)
			return
		}
		metrics.IncAppend("remote")
		s.listener.MessageAppended(idx, msg)

	case model.EventStartTyping, model.EventStopTyping:
		var p model.RoomPayload
		if err := e.Decode(&p); err != nil {
			s.drop("malformed", "event", e.Name, "err", err)
			return
		}
		if reason := s.filter(p.UserEmail, p.ChatID); reason != "" {
			s.drop(reason, "event", e.Name, "user", p.UserEmail)
			return
		}
		s.listener.TypingChanged(s.friend.Handle, e.Name == model.EventStartTyping)
	}
}

// filter rejects events from another room, our own echoes and strangers.
// Empty fields are accepted for transports scoped by connection.
func (s *Session) filter(user, chatID string) string {
	switch {
	case chatID != "" && chatID != s.room.String():
		return "other_room"
	case user == s.local.Handle:
		return "echo"
	case user != "" && user != s.friend.Handle:
		return "unknown_sender"
	}
	return ""
}

func (s *Session) send(ctx context.Context, text string) error {
	if state := s.State(); state != Active {
		return fmt.Errorf("send while %s: %w", state, model.ErrNotReady)
	}

	msg := model.Message{
		ID:     s.ids.NextID(),
		Sender: s.local,
		Body:   text,
		Date:   model.FormatDate(s.clock()),
	}
	idx, err := s.tr.Append(msg)
	if err != nil {
		return err
	}
	metrics.IncAppend("local")
	s.listener.MessageAppended(idx, msg)

	out := model.OutgoingMessage{
		ID:      msg.ID,
		SentBy:  s.local.Handle,
		SentTo:  s.friend.Handle,
		Message: text,
		ChatID:  s.room.String(),
		Date:    msg.Date,
	}
	persistCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.sender.SendMessage(persistCtx, out); err != nil {
			metrics.IncSendFailure("persist")
			s.log.Error("persist failed", "id", out.ID, "err", err)
			s.post(func() {
				if s.State() == Active {
					s.notice("persist message", err)
				}
			})
		}
	}()

	room := s.roomPayload()
	if err := s.ch.Emit(ctx, model.EventStopTyping, room); err != nil {
		s.log.Warn("emit failed", "event", model.EventStopTyping, "err", err)
	}
	chat := model.ChatPayload{UserEmail: room.UserEmail, ChatID: room.ChatID, Message: text, Date: msg.Date}
	if err := s.ch.Emit(ctx, model.EventSendMessage, chat); err != nil {
		metrics.IncSendFailure("notify")
		s.log.Error("emit failed", "event", model.EventSendMessage, "err", err)
		s.notice("notify friend", err)
	}
	return nil
}

func (s *Session) teardown() {
	switch s.State() {
	case Leaving, Closed:
		return
	}
	s.setState(Leaving)

	if err := s.sub.Cancel(); err != nil {
		s.log.Warn("unsubscribe failed", "err", err)
	}
	if err := s.ch.Emit(context.Background(), model.EventLeaveRoom, s.roomPayload()); err != nil {
		s.log.Warn("emit failed", "event", model.EventLeaveRoom, "err", err)
	}

	s.setState(Closed)
	close(s.done)
	s.log.Info("left room", "transcript_len", s.tr.Len())
}

func (s *Session) roomPayload() model.RoomPayload {
	return model.RoomPayload{UserEmail: s.local.Handle, ChatID: s.RoomID().String()}
}

func (s *Session) notice(op string, err error) {
	s.listener.Notice(fmt.Errorf("%s: %w", op, networkFailure(err)))
}

func (s *Session) drop(reason string, args ...any) {
	metrics.IncDropped(reason)
	s.log.Debug("dropped record", append([]any{"reason", reason}, args...)...)
}

func networkFailure(err error) error {
	if errors.Is(err, model.ErrNetworkFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrNetworkFailure, err)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, model.ErrDuplicateMessage):
		return "duplicate"
	case errors.Is(err, model.ErrEmptyMessage):
		return "empty"
	}
	return "malformed"
}
