package schema

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

var ErrMalformedEvent = errors.New("schema: malformed event payload")

// EventKind is the closed set of inbound event discriminants.
type EventKind uint8

const (
	_kind_beg EventKind = iota
	KindConnectionEstablished
	KindTimetableUpdated
	KindGenerationComplete
	KindGenerationError
	KindOptimizationProgress
	KindTeacherLeaveUpdate
	KindRoomChangeComplete
	KindEmergencyUpdate
	KindSystemMaintenance
	KindHeartbeat
	_kind_end

	KindUnknown EventKind = 255
)

func (k EventKind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

var kindNames = map[EventKind]string{
	KindConnectionEstablished: "connection_established",
	KindTimetableUpdated:      "timetable_updated",
	KindGenerationComplete:    "generation_complete",
	KindGenerationError:       "generation_error",
	KindOptimizationProgress:  "optimization_progress",
	KindTeacherLeaveUpdate:    "teacher_leave_update",
	KindRoomChangeComplete:    "room_change_complete",
	KindEmergencyUpdate:       "emergency_update",
	KindSystemMaintenance:     "system_maintenance",
	KindHeartbeat:             "heartbeat",
}

var kindByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for kind, name := range kindNames {
		m[name] = kind
	}
	return m
}()

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire tag onto an EventKind. Unrecognized tags map to
// KindUnknown rather than failing.
func ParseKind(tag string) EventKind {
	if kind, ok := kindByName[tag]; ok {
		return kind
	}
	return KindUnknown
}

// Event is one decoded inbound message. Raw always holds the full original
// JSON so kinds forwarded whole to local broadcast lose nothing.
type Event struct {
	Kind      EventKind
	Tag       string
	Message   string
	Timestamp string

	AffectedBatches []string
	Progress        int
	Generation      int
	Fitness         float64
	FacultyID       string
	LeaveDetails    map[string]any
	Details         map[string]any

	Raw []byte
}

type wireEvent struct {
	Type            string         `json:"type"`
	Message         string         `json:"message"`
	Timestamp       string         `json:"timestamp"`
	AffectedBatches []string       `json:"affected_batches"`
	Progress        int            `json:"progress"`
	Generation      int            `json:"generation"`
	Fitness         float64        `json:"fitness"`
	FacultyID       string         `json:"faculty_id"`
	LeaveDetails    map[string]any `json:"leave_details"`
	Details         map[string]any `json:"details"`
}

// DecodeEvent parses one wire payload. An unknown type tag is not an error;
// undecodable JSON is.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := sonic.ConfigFastest.Unmarshal(data, &w); err != nil {
		return Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if w.Type == "" {
		return Event{}, ErrMalformedEvent
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	return Event{
		Kind:            ParseKind(w.Type),
		Tag:             w.Type,
		Message:         w.Message,
		Timestamp:       w.Timestamp,
		AffectedBatches: w.AffectedBatches,
		Progress:        w.Progress,
		Generation:      w.Generation,
		Fitness:         w.Fitness,
		FacultyID:       w.FacultyID,
		LeaveDetails:    w.LeaveDetails,
		Details:         w.Details,
		Raw:             raw,
	}, nil
}
