package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyLinearDelay(t *testing.T) {
	p := RetryPolicy{}.normalized()

	assert.Equal(t, 5*time.Second, p.Delay(1))
	assert.Equal(t, 10*time.Second, p.Delay(2))
	assert.Equal(t, 25*time.Second, p.Delay(5))
	assert.Zero(t, p.Delay(0))
}

func TestRetryPolicyCeiling(t *testing.T) {
	p := RetryPolicy{}.normalized()

	assert.Equal(t, DefaultRetryCeiling, p.Ceiling)
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))
}

func TestRetryPolicyNormalizedKeepsOverrides(t *testing.T) {
	p := RetryPolicy{Ceiling: 2, Step: time.Millisecond}.normalized()

	assert.Equal(t, 2, p.Ceiling)
	assert.Equal(t, 2*time.Millisecond, p.Delay(2))
	assert.True(t, p.Exhausted(2))
}
