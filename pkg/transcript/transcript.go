package transcript

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/logchat/pkg/model"
)

// Option configures a Transcript.
type Option func(*Transcript)

// WithTimestampOrdering inserts messages by parsed Date instead of at the end.
// Equal dates keep delivery order; unparsable dates are appended last.
func WithTimestampOrdering() Option {
	return func(t *Transcript) { t.ordered = true }
}

// WithOnAppend registers a hook called after each successful append, with
// the index the message landed at. The hook runs with the lock released.
func WithOnAppend(fn func(index int, m model.Message)) Option {
	return func(t *Transcript) { t.onAppend = fn }
}

// Transcript is the ordered message log of one conversation.
type Transcript struct {
	mu       sync.RWMutex
	messages []model.Message
	dates    []time.Time
	ids      map[string]struct{}
	friend   *model.Identity

	ordered  bool
	onAppend func(int, model.Message)
}

func New(opts ...Option) *Transcript {
	t := &Transcript{ids: make(map[string]struct{})}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append adds m and returns its index.
func (t *Transcript) Append(m model.Message) (int, error) {
	if m.Sender == nil || m.Sender.Handle == "" {
		return -1, fmt.Errorf("append: missing sender: %w", model.ErrMalformedRecord)
	}
	if m.Body == "" {
		return -1, fmt.Errorf("append: %w", model.ErrEmptyMessage)
	}

	t.mu.Lock()
	if m.ID != "" {
		if _, ok := t.ids[m.ID]; ok {
			t.mu.Unlock()
			return -1, fmt.Errorf("append %s: %w", m.ID, model.ErrDuplicateMessage)
		}
		t.ids[m.ID] = struct{}{}
	}

	idx := len(t.messages)
	var date time.Time
	if t.ordered {
		date = parseOrZero(m.Date)
		if !date.IsZero() {
			idx = sort.Search(len(t.dates), func(i int) bool {
				return t.dates[i].IsZero() || t.dates[i].After(date)
			})
		}
	}

	t.messages = append(t.messages, model.Message{})
	copy(t.messages[idx+1:], t.messages[idx:])
	t.messages[idx] = m

	if t.ordered {
		t.dates = append(t.dates, time.Time{})
		copy(t.dates[idx+1:], t.dates[idx:])
		t.dates[idx] = date
	}
	hook := t.onAppend
	t.mu.Unlock()

	if hook != nil {
		hook(idx, m)
	}
	return idx, nil
}

// Snapshot returns a copy of the messages in transcript order.
func (t *Transcript) Snapshot() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the final message, if any.
func (t *Transcript) Last() (model.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return model.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// SetFriendProfile fixes the conversation partner. Setting the same handle
// again is a no-op; a different handle is rejected.
func (t *Transcript) SetFriendProfile(id model.Identity) error {
	if id.Handle == "" {
		return fmt.Errorf("set friend profile: %w", model.ErrInvalidIdentity)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.friend != nil {
		if t.friend.Equal(id) {
			return nil
		}
		return fmt.Errorf("friend is %s, got %s: %w", t.friend.Handle, id.Handle, model.ErrProfileMismatch)
	}
	friend := id
	t.friend = &friend
	return nil
}

func (t *Transcript) FriendProfile() (model.Identity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.friend == nil {
		return model.Identity{}, false
	}
	return *t.friend, true
}

func parseOrZero(s string) time.Time {
	ts, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
