package hub

import (
	"context"
	"sync"
	"time"

	"main/internal/obs"
	"main/internal/schema"
	"main/internal/session"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

const defaultHeartbeatInterval = 30 * time.Second

// Manager is the server-side registry of realtime connections, keyed by
// subject type and subject id. At most one connection per identity; a newer
// connection replaces the older one.
type Manager struct {
	mu      sync.RWMutex
	conns   map[session.SubjectType]map[string]*client
	metrics *obs.Metrics
}

func NewManager() *Manager {
	return &Manager{
		conns: map[session.SubjectType]map[string]*client{
			session.SubjectAdmin:   {},
			session.SubjectTeacher: {},
			session.SubjectStudent: {},
		},
		metrics: obs.NewMetrics(),
	}
}

// Register stores the connection, starts its write pump and acknowledges
// with a connection_established event.
func (m *Manager) Register(subjectType session.SubjectType, subjectID string, l link) *client {
	c := newClient(subjectType, subjectID, l)

	m.mu.Lock()
	if m.conns[subjectType] == nil {
		m.conns[subjectType] = make(map[string]*client)
	}
	if old, ok := m.conns[subjectType][subjectID]; ok {
		old.close()
	}
	m.conns[subjectType][subjectID] = c
	m.mu.Unlock()

	go c.run()
	logs.Infof("realtime connection established: %s:%s", subjectType, subjectID)

	m.sendTo(c, schema.NewConnectionEstablished(string(subjectType), subjectID))
	return c
}

// Unregister drops the connection if it is still the registered one.
func (m *Manager) Unregister(c *client) {
	if c == nil {
		return
	}

	m.mu.Lock()
	if cur, ok := m.conns[c.subjectType][c.subjectID]; ok && cur == c {
		delete(m.conns[c.subjectType], c.subjectID)
	}
	m.mu.Unlock()

	c.close()
	logs.Infof("realtime connection closed: %s:%s", c.subjectType, c.subjectID)
}

// SendTo delivers an event to one identity, if connected.
func (m *Manager) SendTo(subjectType session.SubjectType, subjectID string, env schema.Envelope) {
	m.mu.RLock()
	c := m.conns[subjectType][subjectID]
	m.mu.RUnlock()

	if c == nil {
		logs.Warnf("not connected: %s:%s", subjectType, subjectID)
		return
	}
	m.sendTo(c, env)
}

// BroadcastTo delivers an event to every connection of one subject type.
func (m *Manager) BroadcastTo(subjectType session.SubjectType, env schema.Envelope) {
	data, err := env.Encode()
	if err != nil {
		m.metrics.IncEncodeError()
		logs.Errorf("encode %s event, err: %+v", env.Type, err)
		return
	}
	m.metrics.ObserveEvent(schema.ParseKind(env.Type))

	start := time.Now()
	for _, c := range m.snapshot(subjectType) {
		m.deliver(c, data)
	}
	m.metrics.ObserveFanout(time.Since(start))
}

// BroadcastAll delivers an event to every connection.
func (m *Manager) BroadcastAll(env schema.Envelope) {
	data, err := env.Encode()
	if err != nil {
		m.metrics.IncEncodeError()
		logs.Errorf("encode %s event, err: %+v", env.Type, err)
		return
	}
	m.metrics.ObserveEvent(schema.ParseKind(env.Type))

	m.mu.RLock()
	all := make([]*client, 0, 16)
	for _, byID := range m.conns {
		for _, c := range byID {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()

	start := time.Now()
	for _, c := range all {
		m.deliver(c, data)
	}
	m.metrics.ObserveFanout(time.Since(start))
}

func (m *Manager) snapshot(subjectType session.SubjectType) []*client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*client, 0, len(m.conns[subjectType]))
	for _, c := range m.conns[subjectType] {
		out = append(out, c)
	}
	return out
}

func (m *Manager) sendTo(c *client, env schema.Envelope) {
	data, err := env.Encode()
	if err != nil {
		m.metrics.IncEncodeError()
		logs.Errorf("encode %s event, err: %+v", env.Type, err)
		return
	}
	m.metrics.ObserveEvent(schema.ParseKind(env.Type))
	m.deliver(c, data)
}

// deliver enqueues onto the write pump; a consumer that cannot keep up is
// dropped and deregistered.
func (m *Manager) deliver(c *client, data []byte) {
	if c.enqueue(data) {
		return
	}
	m.metrics.IncQueueDrop()
	logs.Warnf("dropping slow consumer: %s:%s", c.subjectType, c.subjectID)
	m.Unregister(c)
}

// NotifyTimetableUpdate tells everyone the timetable changed.
func (m *Manager) NotifyTimetableUpdate(batchIDs []string) {
	m.BroadcastAll(schema.NewTimetableUpdated(batchIDs))
}

// NotifyOptimizationProgress streams generation progress to admins.
func (m *Manager) NotifyOptimizationProgress(progress, generation int, fitness float64) {
	m.BroadcastTo(session.SubjectAdmin, schema.NewOptimizationProgress(progress, generation, fitness))
}

// NotifyGenerationComplete announces a finished timetable generation run.
func (m *Manager) NotifyGenerationComplete(message string) {
	m.BroadcastAll(schema.NewGenerationComplete(message))
}

// NotifyGenerationError reports a failed generation run to admins.
func (m *Manager) NotifyGenerationError(message string) {
	m.BroadcastTo(session.SubjectAdmin, schema.NewGenerationError(message))
}

// NotifyTeacherLeaveUpdate announces a processed leave and the resulting
// timetable changes.
func (m *Manager) NotifyTeacherLeaveUpdate(facultyID string, details map[string]any) {
	m.BroadcastAll(schema.NewTeacherLeaveUpdate(facultyID, details))
}

// NotifyRoomChangeComplete announces a completed room reassignment.
func (m *Manager) NotifyRoomChangeComplete(message string) {
	m.BroadcastAll(schema.NewRoomChangeComplete(message))
}

// NotifyEmergencyUpdate pushes an urgent schedule change to everyone.
func (m *Manager) NotifyEmergencyUpdate(message string) {
	m.BroadcastAll(schema.NewEmergencyUpdate(message))
}

// NotifySystemMaintenance warns every connected user about maintenance.
func (m *Manager) NotifySystemMaintenance(message string, details map[string]any) {
	m.BroadcastAll(schema.NewSystemMaintenance(message, details))
}

// Stats summarizes the current connection population.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	byType := make(map[string]int, len(m.conns))
	for subjectType, byID := range m.conns {
		byType[string(subjectType)] = len(byID)
		total += len(byID)
	}
	return map[string]any{
		"total_connections": total,
		"by_user_type":      byType,
		"counters":          m.metrics.Snapshot(),
	}
}

// RunHeartbeat broadcasts keep-alives until the context ends.
func (m *Manager) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.BroadcastAll(schema.NewHeartbeat())
		}
	}
}

type inboundMessage struct {
	Type    string `json:"type"`
	BatchID string `json:"batch_id"`
}

// HandleInbound processes one message from a connected client.
func (m *Manager) HandleInbound(c *client, raw []byte) {
	var msg inboundMessage
	if err := sonic.ConfigFastest.Unmarshal(raw, &msg); err != nil {
		logs.Errorf("invalid message from %s:%s, err: %+v", c.subjectType, c.subjectID, err)
		return
	}

	switch msg.Type {
	case "ping":
		m.sendTo(c, schema.NewPong())
	case "get_status":
		m.sendTo(c, schema.NewStatus(m.Stats()))
	case "subscribe_to_batch":
		if c.subjectType == session.SubjectStudent && msg.BatchID != "" {
			logs.Infof("student %s subscribed to batch %s", c.subjectID, msg.BatchID)
		}
	default:
		logs.Warnf("unknown message type from %s:%s: %s", c.subjectType, c.subjectID, msg.Type)
	}
}
