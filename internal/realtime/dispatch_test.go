package realtime

import (
	"sync"
	"testing"

	"main/internal/notify"
	"main/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busRecorder struct {
	mu    sync.Mutex
	calls []busCall
}

type busCall struct {
	signal  notify.Signal
	payload []byte
}

func (b *busRecorder) Publish(signal notify.Signal, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, busCall{signal: signal, payload: payload})
}

func (b *busRecorder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *busRecorder) call(i int) busCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[i]
}

type fakeView struct {
	active  bool
	reloads int
}

func (v *fakeView) TimetableActive() bool { return v.active }
func (v *fakeView) ReloadTimetable()      { v.reloads++ }

func newDispatchClient(sess session.Session, view ViewState) (*Client, *notifierRecorder, *busRecorder) {
	notifier := &notifierRecorder{}
	bus := &busRecorder{}
	c := NewClient(Config{
		BaseURL:     "ws://hub.local/ws",
		Session:     sess,
		Dialer:      &fakeDialer{},
		Notifier:    notifier,
		Broadcaster: bus,
		View:        view,
	})
	return c, notifier, bus
}

func TestDispatchHeartbeatIsSilent(t *testing.T) {
	c, notifier, bus := newDispatchClient(adminSession(), nil)

	c.dispatch([]byte(`{"type":"heartbeat","server_status":"online"}`))

	assert.Zero(t, notifier.count())
	assert.Zero(t, bus.count())
}

func TestDispatchGenerationCompleteAdminBroadcasts(t *testing.T) {
	payload := `{"type":"generation_complete","message":"Done"}`

	c, notifier, bus := newDispatchClient(adminSession(), nil)
	c.dispatch([]byte(payload))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "Done", notifier.call(0).message)
	assert.Equal(t, notify.SeveritySuccess, notifier.call(0).severity)

	require.Equal(t, 1, bus.count())
	assert.Equal(t, notify.SignalGenerationComplete, bus.call(0).signal)
	assert.JSONEq(t, payload, string(bus.call(0).payload))
}

func TestDispatchGenerationCompleteTeacherDoesNotBroadcast(t *testing.T) {
	c, notifier, bus := newDispatchClient(session.Session{
		SubjectType: session.SubjectTeacher,
		SubjectID:   "t-1",
	}, nil)

	c.dispatch([]byte(`{"type":"generation_complete","message":"Done"}`))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, notify.SeveritySuccess, notifier.call(0).severity)
	assert.Zero(t, bus.count())
}

func TestDispatchMalformedPayloadIsContained(t *testing.T) {
	c, notifier, bus := newDispatchClient(adminSession(), nil)

	c.dispatch([]byte("{{{ not json"))
	c.dispatch(nil)
	c.dispatch([]byte(`{"message":"no type tag"}`))

	assert.Zero(t, notifier.count())
	assert.Zero(t, bus.count())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDispatchTimetableUpdatedReloadsActiveView(t *testing.T) {
	view := &fakeView{active: true}
	c, notifier, _ := newDispatchClient(adminSession(), view)

	c.dispatch([]byte(`{"type":"timetable_updated","message":"X"}`))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, notify.SeverityInfo, notifier.call(0).severity)
	assert.Equal(t, 1, view.reloads)
}

func TestDispatchTimetableUpdatedInactiveViewOnlyNotifies(t *testing.T) {
	view := &fakeView{active: false}
	c, notifier, _ := newDispatchClient(adminSession(), view)

	c.dispatch([]byte(`{"type":"timetable_updated","message":"X"}`))

	assert.Equal(t, 1, notifier.count())
	assert.Zero(t, view.reloads)
}

func TestDispatchOptimizationProgressBroadcastOnly(t *testing.T) {
	payload := `{"type":"optimization_progress","progress":60,"generation":12,"fitness":0.8}`
	c, notifier, bus := newDispatchClient(adminSession(), nil)

	c.dispatch([]byte(payload))

	assert.Zero(t, notifier.count())
	require.Equal(t, 1, bus.count())
	assert.Equal(t, notify.SignalOptimizationProgress, bus.call(0).signal)
	assert.JSONEq(t, payload, string(bus.call(0).payload))
}

func TestDispatchSeverities(t *testing.T) {
	tests := []struct {
		payload  string
		message  string
		severity notify.Severity
	}{
		{`{"type":"generation_error","message":"boom"}`, "boom", notify.SeverityError},
		{`{"type":"teacher_leave_update","message":"leave processed"}`, "leave processed", notify.SeverityInfo},
		{`{"type":"room_change_complete","message":"room moved"}`, "room moved", notify.SeverityInfo},
		{`{"type":"emergency_update","message":"evacuate"}`, "evacuate", notify.SeverityWarning},
		{`{"type":"system_maintenance","message":"tonight 2am"}`, "System Maintenance: tonight 2am", notify.SeverityWarning},
	}

	for _, tt := range tests {
		c, notifier, bus := newDispatchClient(adminSession(), nil)
		c.dispatch([]byte(tt.payload))

		require.Equalf(t, 1, notifier.count(), "payload %s", tt.payload)
		assert.Equal(t, tt.message, notifier.call(0).message)
		assert.Equal(t, tt.severity, notifier.call(0).severity)
		assert.Zero(t, bus.count())
	}
}

func TestDispatchUnknownKindIsIgnored(t *testing.T) {
	c, notifier, bus := newDispatchClient(adminSession(), nil)

	c.dispatch([]byte(`{"type":"cafeteria_menu","message":"soup"}`))

	assert.Zero(t, notifier.count())
	assert.Zero(t, bus.count())
}

func TestDispatchConnectionEstablishedLogOnly(t *testing.T) {
	c, notifier, bus := newDispatchClient(adminSession(), nil)

	c.dispatch([]byte(`{"type":"connection_established","message":"Successfully connected"}`))

	assert.Zero(t, notifier.count())
	assert.Zero(t, bus.count())
}
