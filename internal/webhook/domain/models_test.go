package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffSchedule(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
		ok       bool
	}{
		{0, 5 * time.Minute, true},
		{1, 5 * time.Minute, true},
		{2, 15 * time.Minute, true},
		{3, time.Hour, true},
		{4, 6 * time.Hour, true},
		{5, 24 * time.Hour, true},
		{6, 0, false},
		{10, 0, false},
	}
	for _, tc := range cases {
		got, ok := NextBackoff(tc.attempts)
		assert.Equal(t, tc.ok, ok, "attempts %d", tc.attempts)
		assert.Equal(t, tc.want, got, "attempts %d", tc.attempts)
	}
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 6, MaxAttempts)
}
