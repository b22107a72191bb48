package realtime

import (
	"time"
)

const (
	DefaultRetryCeiling = 5
	DefaultRetryStep    = 5 * time.Second
)

// RetryPolicy governs reconnection after abnormal closure. The delay grows
// linearly with the attempt number; once the ceiling is reached no further
// automatic attempts are made.
type RetryPolicy struct {
	Ceiling int
	Step    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Ceiling <= 0 {
		p.Ceiling = DefaultRetryCeiling
	}
	if p.Step <= 0 {
		p.Step = DefaultRetryStep
	}
	return p
}

// Delay returns the wait before the given attempt, attempt numbering from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.Step
}

// Exhausted reports whether the attempt counter has used up the ceiling.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.Ceiling
}
