package test

import (
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
)

// ReferenceTime is the fixed "now" used across tests.
var ReferenceTime = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

// NewClock returns a mock clock set to ReferenceTime.
func NewClock(t *testing.T) *time2.MockClock {
	t.Helper()
	return time2.NewMockClock(ReferenceTime)
}
