package notify

import (
	"github.com/yanun0323/logs"
)

// Severity classifies a user-facing notification.
type Severity uint8

const (
	_severity_beg Severity = iota
	SeverityInfo
	SeveritySuccess
	SeverityWarning
	SeverityError
	_severity_end
)

func (s Severity) IsAvailable() bool {
	return s > _severity_beg && s < _severity_end
}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier is the user-visible notification surface.
type Notifier interface {
	Notify(message string, severity Severity)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string, severity Severity)

func (f NotifierFunc) Notify(message string, severity Severity) {
	f(message, severity)
}

// LogNotifier surfaces notifications on the process log. Used by the CLI
// where there is no richer display.
type LogNotifier struct{}

func (LogNotifier) Notify(message string, severity Severity) {
	switch severity {
	case SeverityWarning:
		logs.Warnf("[%s] %s", severity, message)
	case SeverityError:
		logs.Errorf("[%s] %s", severity, message)
	default:
		logs.Infof("[%s] %s", severity, message)
	}
}
