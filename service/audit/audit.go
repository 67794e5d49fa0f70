// Package audit stores failed webhook requests for later inspection.
package audit

import (
	"context"
	"time"

	"PRoom/logger"

	"go.uber.org/zap"
)

// FailureRecord is one rejected or failed request.
type FailureRecord struct {
	Id        string    `bson:"_id" json:"id"`
	Timestamp string    `bson:"ts" json:"ts"`
	Message   string    `bson:"message" json:"message"`
	Payload   any       `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// LogSink writes failures to the process log only.
type LogSink struct{}

func (LogSink) RecordFailure(_ context.Context, timestamp string, payload any, message string) {
	logger.Warn("webhook failure",
		zap.String("ts", timestamp),
		zap.String("message", message),
		zap.Any("payload", payload))
}
