package tracer

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTraceID returns "t-" followed by 12 hex characters.
func NewTraceID() string {
	return prefixedID("t", 12)
}

// NewSpanID returns "s-" followed by 8 hex characters.
func NewSpanID() string {
	return prefixedID("s", 8)
}

// TimeFormat is the event timestamp layout: UTC, millisecond precision, Z suffix.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// UTCNowISO returns the current UTC time in TimeFormat.
func UTCNowISO() string {
	return time.Now().UTC().Format(TimeFormat)
}

func prefixedID(prefix string, hexLen int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + hex[:hexLen]
}
