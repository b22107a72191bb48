package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"main/internal/notify"
	"main/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readResult struct {
	data []byte
	err  error
}

type fakeConn struct {
	reads chan readResult

	mu         sync.Mutex
	sent       [][]byte
	closeCodes []int
	closed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan readResult, 16)}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	r, ok := <-c.reads
	if !ok {
		return nil, &CloseError{Code: CloseAbnormal}
	}
	return r.data, r.err
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) WriteClose(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCodes = append(c.closeCodes, code)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) emit(data []byte) {
	c.reads <- readResult{data: data}
}

func (c *fakeConn) dropWithCode(code int) {
	c.reads <- readResult{err: &CloseError{Code: code}}
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeDialer struct {
	mu      sync.Mutex
	failAll bool
	conns   []*fakeConn
	urls    []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.failAll {
		return nil, &CloseError{Code: CloseAbnormal, Reason: "dial refused"}
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) url(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

type timerRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (r *timerRecorder) hook(d time.Duration, f func()) *time.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	r.fns = append(r.fns, f)
	// far-future timer so nothing fires unless the test fires it
	return time.NewTimer(time.Hour)
}

func (r *timerRecorder) fire(i int) {
	r.mu.Lock()
	fn := r.fns[i]
	r.mu.Unlock()
	fn()
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

func (r *timerRecorder) delay(i int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delays[i]
}

type notifierRecorder struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	message  string
	severity notify.Severity
}

func (n *notifierRecorder) Notify(message string, severity notify.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{message: message, severity: severity})
}

func (n *notifierRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *notifierRecorder) call(i int) notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[i]
}

func adminSession() session.Session {
	return session.Session{SubjectType: session.SubjectAdmin, SubjectID: "a-1", Token: "tok"}
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeDialer, *timerRecorder, *notifierRecorder) {
	t.Helper()

	dialer := &fakeDialer{}
	timers := &timerRecorder{}
	notifier := &notifierRecorder{}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "ws://hub.local/ws"
	}
	if !cfg.Session.Valid() && cfg.Session == (session.Session{}) {
		cfg.Session = adminSession()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notifier
	}

	c := NewClient(cfg)
	c.afterFunc = timers.hook
	return c, dialer, timers, notifier
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventuallyf(t, func() bool {
		return c.State() == want
	}, time.Second, time.Millisecond, "state should become %s, got %s", want, c.State())
}

func TestConnectRequiresSubject(t *testing.T) {
	for _, sess := range []session.Session{
		{},
		{SubjectType: session.SubjectAdmin},
		{SubjectID: "a-1"},
	} {
		dialer := &fakeDialer{}
		c := NewClient(Config{
			BaseURL:  "ws://hub.local/ws",
			Session:  sess,
			Dialer:   dialer,
			Notifier: &notifierRecorder{},
		})

		c.Connect(context.Background())

		assert.Equal(t, StateDisconnected, c.State())
		assert.Zero(t, dialer.dialCount())
	}
}

func TestConnectOpensAndNotifies(t *testing.T) {
	c, dialer, _, notifier := newTestClient(t, Config{})

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	assert.Equal(t, "ws://hub.local/ws/admin/a-1", dialer.url(0))
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, notify.SeverityInfo, notifier.call(0).severity)
	assert.Zero(t, c.Retries())

	c.Close()
}

func TestAbnormalCloseSchedulesLinearRetry(t *testing.T) {
	c, dialer, timers, _ := newTestClient(t, Config{})

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	dialer.conn(0).dropWithCode(CloseGoingAway)
	waitState(t, c, StateReconnecting)

	require.Equal(t, 1, timers.count())
	assert.Equal(t, 5*time.Second, timers.delay(0))
	assert.Equal(t, 1, c.Retries())

	// timer fires, second dial succeeds, counter resets
	timers.fire(0)
	waitState(t, c, StateOpen)
	assert.Equal(t, 2, dialer.dialCount())
	assert.Zero(t, c.Retries())

	// a later abnormal close starts the schedule over at 5s
	dialer.conn(1).dropWithCode(CloseAbnormal)
	waitState(t, c, StateReconnecting)
	require.Equal(t, 2, timers.count())
	assert.Equal(t, 5*time.Second, timers.delay(1))

	c.Close()
}

func TestRetryExhaustionStopsSilently(t *testing.T) {
	c, dialer, timers, notifier := newTestClient(t, Config{})
	dialer.failAll = true

	c.Connect(context.Background())
	waitState(t, c, StateReconnecting)

	for i := 0; i < 5; i++ {
		require.Equal(t, i+1, timers.count())
		assert.Equal(t, time.Duration(i+1)*5*time.Second, timers.delay(i))
		timers.fire(i)
	}

	// five retries consumed the ceiling; the sixth failure gives up
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 5, timers.count())
	assert.Equal(t, 6, dialer.dialCount())
	assert.Zero(t, notifier.count())
}

func TestServerCleanCloseDoesNotReconnect(t *testing.T) {
	c, dialer, timers, _ := newTestClient(t, Config{})

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	dialer.conn(0).dropWithCode(CloseNormal)
	waitState(t, c, StateDisconnected)

	assert.Zero(t, timers.count())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestCloseCancelsPendingRetry(t *testing.T) {
	c, dialer, timers, _ := newTestClient(t, Config{})

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	dialer.conn(0).dropWithCode(CloseAbnormal)
	waitState(t, c, StateReconnecting)
	require.Equal(t, 1, timers.count())

	c.Close()
	assert.Equal(t, StateDisconnected, c.State())

	// a stale timer firing after Close must not reconnect
	timers.fire(0)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestCloseSendsIntentionalCode(t *testing.T) {
	c, dialer, _, _ := newTestClient(t, Config{})

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	c.Close()

	conn := dialer.conn(0)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.closeCodes, 1)
	assert.Equal(t, CloseNormal, conn.closeCodes[0])
	assert.True(t, conn.closed)
}

func TestSendDroppedUnlessOpen(t *testing.T) {
	c, dialer, _, _ := newTestClient(t, Config{})

	c.Send(map[string]string{"type": "ping"}) // disconnected, no-op

	c.Connect(context.Background())
	waitState(t, c, StateOpen)

	c.Send(map[string]string{"type": "ping"})
	conn := dialer.conn(0)
	require.Eventually(t, func() bool { return conn.sentCount() == 1 }, time.Second, time.Millisecond)

	c.Close()
	c.Send(map[string]string{"type": "ping"})
	assert.Equal(t, 1, conn.sentCount())
}
