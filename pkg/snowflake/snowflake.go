package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrNodeRange = errors.New("node number must be between 0 and 1023")

// ID is a time-ordered 63-bit message id.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Time returns the millisecond timestamp embedded in the id.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timeShift) + epoch)
}

// Node returns the generator node that minted the id.
func (id ID) Node() int64 {
	return (int64(id) >> nodeShift) & nodeMax
}

// Node generates ids for optimistic local messages. One node per client
// device keeps ids unique across a user's devices.
type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{node: node, now: time.Now}, nil
}

func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()

	if now < n.time {
		// Clock moved backwards, keep the last timestamp
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = n.now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ID(((now - epoch) << timeShift) | (n.node << nodeShift) | n.step)
}

// NextID satisfies the id source used by chat sessions.
func (n *Node) NextID() string {
	return n.Generate().String()
}
