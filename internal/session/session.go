package session

import (
	"time"
)

// SubjectType is the authenticated role the realtime connection is scoped to.
type SubjectType string

const (
	SubjectAdmin   SubjectType = "admin"
	SubjectTeacher SubjectType = "teacher"
	SubjectStudent SubjectType = "student"
)

func (s SubjectType) IsAvailable() bool {
	switch s {
	case SubjectAdmin, SubjectTeacher, SubjectStudent:
		return true
	default:
		return false
	}
}

// Session is the authenticated identity carried from login to logout. The
// realtime connection endpoint is derived from SubjectType and SubjectID.
type Session struct {
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`
	Token       string      `json:"token"`
	IssuedAt    time.Time   `json:"issued_at"`
}

// Valid reports whether the session can scope a realtime connection.
func (s Session) Valid() bool {
	return s.SubjectType != "" && s.SubjectID != ""
}
