package hub

import (
	"sync"

	"main/internal/session"

	"github.com/yanun0323/logs"
)

// link is the transport side of one registered connection. Production links
// wrap gorilla conns; tests substitute fakes.
type link interface {
	WriteMessage(data []byte) error
	Close() error
}

const defaultSendQueue = 64

// client is one registered realtime connection with its write pump. All
// writes to the transport happen on the pump goroutine.
type client struct {
	subjectType session.SubjectType
	subjectID   string

	link link
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(subjectType session.SubjectType, subjectID string, l link) *client {
	return &client{
		subjectType: subjectType,
		subjectID:   subjectID,
		link:        l,
		send:        make(chan []byte, defaultSendQueue),
	}
}

// run drains the send queue onto the transport until the queue closes or a
// write fails.
func (c *client) run() {
	defer func() {
		_ = c.link.Close()
	}()

	for data := range c.send {
		if err := c.link.WriteMessage(data); err != nil {
			logs.Warnf("write to %s:%s failed, err: %+v", c.subjectType, c.subjectID, err)
			return
		}
	}
}

// enqueue offers a payload without blocking. A full queue means the
// consumer is too slow; the caller drops it.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the write pump down exactly once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
