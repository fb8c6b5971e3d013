package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRateLimit logs a provider rate-limit signal
func LogRateLimit(account string, pauseSeconds int) {
	GetLogger().WithFields(map[string]interface{}{
		"account":       account,
		"pause_seconds": pauseSeconds,
		"action":        "rate_limited",
	}).Warn("Rate limit reached, pausing job")
}

// LogJobEvent logs a status event emitted by a job runner
func LogJobEvent(account, status, message string, likes int64) {
	GetLogger().WithFields(map[string]interface{}{
		"account": account,
		"status":  status,
		"likes":   likes,
	}).Info(message)
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, fields map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
