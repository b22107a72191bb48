package schema

import (
	"time"

	"github.com/bytedance/sonic"
)

// Envelope is the shape of every message the hub emits. Zero-valued fields
// stay off the wire.
type Envelope struct {
	Type            string         `json:"type"`
	Message         string         `json:"message,omitempty"`
	Timestamp       string         `json:"timestamp"`
	SubjectType     string         `json:"user_type,omitempty"`
	SubjectID       string         `json:"user_id,omitempty"`
	AffectedBatches []string       `json:"affected_batches,omitempty"`
	Progress        int            `json:"progress,omitempty"`
	Generation      int            `json:"generation,omitempty"`
	Fitness         float64        `json:"fitness,omitempty"`
	FacultyID       string         `json:"faculty_id,omitempty"`
	LeaveDetails    map[string]any `json:"leave_details,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	Stats           map[string]any `json:"stats,omitempty"`
	ServerStatus    string         `json:"server_status,omitempty"`
}

func (e Envelope) Encode() ([]byte, error) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return sonic.ConfigFastest.Marshal(e)
}

func NewConnectionEstablished(subjectType, subjectID string) Envelope {
	return Envelope{
		Type:        KindConnectionEstablished.String(),
		Message:     "Successfully connected to real-time updates",
		SubjectType: subjectType,
		SubjectID:   subjectID,
	}
}

func NewTimetableUpdated(batchIDs []string) Envelope {
	return Envelope{
		Type:            KindTimetableUpdated.String(),
		Message:         "Timetable has been updated",
		AffectedBatches: batchIDs,
	}
}

func NewOptimizationProgress(progress, generation int, fitness float64) Envelope {
	return Envelope{
		Type:       KindOptimizationProgress.String(),
		Progress:   progress,
		Generation: generation,
		Fitness:    fitness,
	}
}

func NewGenerationComplete(message string) Envelope {
	return Envelope{Type: KindGenerationComplete.String(), Message: message}
}

func NewGenerationError(message string) Envelope {
	return Envelope{Type: KindGenerationError.String(), Message: message}
}

func NewTeacherLeaveUpdate(facultyID string, details map[string]any) Envelope {
	return Envelope{
		Type:         KindTeacherLeaveUpdate.String(),
		Message:      "Teacher leave has been processed and timetable updated",
		FacultyID:    facultyID,
		LeaveDetails: details,
	}
}

func NewRoomChangeComplete(message string) Envelope {
	return Envelope{Type: KindRoomChangeComplete.String(), Message: message}
}

func NewEmergencyUpdate(message string) Envelope {
	return Envelope{Type: KindEmergencyUpdate.String(), Message: message}
}

func NewSystemMaintenance(message string, details map[string]any) Envelope {
	return Envelope{Type: KindSystemMaintenance.String(), Message: message, Details: details}
}

func NewHeartbeat() Envelope {
	return Envelope{Type: KindHeartbeat.String(), ServerStatus: "online"}
}

func NewPong() Envelope {
	return Envelope{Type: "pong"}
}

func NewStatus(stats map[string]any) Envelope {
	return Envelope{Type: "status", Stats: stats}
}
