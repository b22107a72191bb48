package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"main/internal/notify"
	"main/internal/session"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

// ViewState reports whether a timetable view is currently active and can
// force a full reload of it. Implemented at the composition boundary.
type ViewState interface {
	TimetableActive() bool
	ReloadTimetable()
}

// Config wires a Client with its collaborators. There is no process-wide
// singleton; the owner constructs one client per authenticated session.
type Config struct {
	// BaseURL is the websocket base address; the endpoint is derived as
	// {BaseURL}/{subject-type}/{subject-id}.
	BaseURL string
	Session session.Session

	Dialer      Dialer
	Notifier    notify.Notifier
	Broadcaster notify.Broadcaster
	View        ViewState
	Retry       RetryPolicy
}

// Client owns one logical realtime connection: it classifies inbound
// messages by their type tag, dispatches them to the notification surface
// and local broadcast bus, and re-establishes the connection on abnormal
// loss with a linear backoff schedule.
type Client struct {
	cfg Config

	mu         sync.Mutex
	state      State
	retries    int
	conn       Conn
	retryTimer *time.Timer
	gen        uint64

	// afterFunc is swapped out in tests to drive the retry timer manually.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewClient(cfg Config) *Client {
	cfg.Retry = cfg.Retry.normalized()
	if cfg.Dialer == nil {
		cfg.Dialer = NewDialer()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = notify.NopBroadcaster{}
	}
	return &Client{
		cfg:       cfg,
		afterFunc: time.AfterFunc,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retries returns the current retry counter.
func (c *Client) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Endpoint is the derived connection URL.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") +
		"/" + string(c.cfg.Session.SubjectType) +
		"/" + c.cfg.Session.SubjectID
}

// Connect opens the connection. A session without subject type or subject
// id makes this a no-op: the precondition is simply not met yet.
func (c *Client) Connect(ctx context.Context) {
	if !c.cfg.Session.Valid() {
		return
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	conn, err := c.cfg.Dialer.Dial(ctx, c.Endpoint())

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		logs.Warnf("realtime dial failed, err: %+v", err)
		c.scheduleRetryLocked(ctx)
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.retries = 0
	c.mu.Unlock()

	c.cfg.Notifier.Notify("Connected to real-time updates", notify.SeverityInfo)
	go c.readLoop(ctx, conn, gen)
}

func (c *Client) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(ctx, gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) handleClosed(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}
	c.conn = nil

	code := closeCode(err)
	if code == CloseNormal || c.state == StateClosing {
		c.state = StateDisconnected
		return
	}

	logs.Warnf("realtime connection lost, code: %d, err: %+v", code, err)
	c.scheduleRetryLocked(ctx)
}

// scheduleRetryLocked runs under c.mu. The state guard, not only the
// counter, prevents duplicate timers when closes race.
func (c *Client) scheduleRetryLocked(ctx context.Context) {
	if c.state == StateReconnecting {
		return
	}
	if c.cfg.Retry.Exhausted(c.retries) {
		c.state = StateDisconnected
		logs.Warnf("realtime reconnect exhausted after %d attempts", c.retries)
		return
	}

	c.retries++
	delay := c.cfg.Retry.Delay(c.retries)
	c.state = StateReconnecting
	gen := c.gen
	logs.Infof("realtime reconnect attempt %d scheduled in %s", c.retries, delay)
	c.retryTimer = c.afterFunc(delay, func() {
		c.redial(ctx, gen)
	})
}

func (c *Client) redial(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.retryTimer = nil
	c.mu.Unlock()

	c.dial(ctx, gen)
}

// Send serializes and transmits the payload. Outside the Open state the
// send is silently dropped; there is no queueing.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen && conn != nil
	c.mu.Unlock()

	if !open {
		return
	}

	data, err := sonic.ConfigFastest.Marshal(v)
	if err != nil {
		logs.Warnf("realtime send marshal failed, err: %+v", err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		logs.Warnf("realtime send failed, err: %+v", err)
	}
}

// Close tears the connection down intentionally. Any pending retry timer is
// cleared so no stale reconnection can fire afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosing
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteClose(CloseNormal, "client closing")
		_ = conn.Close()
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.retries = 0
	c.mu.Unlock()
}
