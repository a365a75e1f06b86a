package relayws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: 0, want: time.Second},
		{retry: 1, want: time.Second},
		{retry: 5, want: time.Second},
		{retry: 6, want: 5 * time.Second},
		{retry: 10, want: 5 * time.Second},
		{retry: 11, want: 7 * time.Second},
		{retry: 20, want: 7 * time.Second},
		{retry: 21, want: 10 * time.Second},
		{retry: 1000, want: 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StepBackoff(tt.retry), "retry #%d", tt.retry)
	}
}

func TestExponentialBackoffSeconds(t *testing.T) {
	assert.Equal(t, time.Duration(0), ExponentialBackoffSeconds(0))
	assert.Equal(t, time.Duration(0), ExponentialBackoffSeconds(1))
	assert.Equal(t, time.Second, ExponentialBackoffSeconds(2))
	assert.Equal(t, 3*time.Second, ExponentialBackoffSeconds(3))
	assert.Equal(t, 7*time.Second, ExponentialBackoffSeconds(4))
	assert.Equal(t, 255*time.Second, ExponentialBackoffSeconds(9))
	assert.Equal(t, 5*time.Minute, ExponentialBackoffSeconds(10))
	assert.Equal(t, 5*time.Minute, ExponentialBackoffSeconds(2000))
}

func TestManager_ExponentialBackoff(t *testing.T) {
	h := newHarness(t, defaultConfig(), WithBackoff(ExponentialBackoffSeconds))
	h.connect(t)

	for k, want := range []time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second} {
		h.transport.last().closeDirty()
		assert.Equal(t, want, h.scheduler.last().delay, "retry #%d", k+1)
		h.scheduler.fire(h.scheduler.last())
	}
}

func TestManager_CustomBackoff(t *testing.T) {
	h := newHarness(t, defaultConfig(), WithBackoff(func(retry int) time.Duration {
		return time.Duration(retry) * time.Minute
	}))
	h.connect(t).closeDirty()
	h.scheduler.fire(h.scheduler.last())
	h.transport.last().closeDirty()

	assert.Equal(t, 2*time.Minute, h.scheduler.last().delay)
}
