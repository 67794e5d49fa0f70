package service

import "time"

// TimestampLayout is the journal key format, UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Call is the per-request context handed to every handler: who is calling
// and the request timestamp. The timestamp is taken once so retries of the
// same request journal under the same key.
type Call struct {
	CallerID  string
	Timestamp string
}

func NewCall(callerID string, now time.Time) Call {
	return Call{CallerID: callerID, Timestamp: FormatTimestamp(now)}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Clock is the timestamp source.
type Clock func() time.Time
