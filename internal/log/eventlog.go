package log

import (
	"github.com/rs/zerolog"
)

// EventLog writes activity events as structured log lines. It satisfies
// core.EventLog.
type EventLog struct {
	logger zerolog.Logger
}

// NewEventLog builds an activity sink on top of logger.
func NewEventLog(logger *zerolog.Logger) *EventLog {
	return &EventLog{logger: logger.With().Str("component", "activity").Logger()}
}

// Log records one activity event. Failures of the writer are swallowed.
func (l *EventLog) Log(event string, fields map[string]any) {
	defer func() {
		_ = recover()
	}()

	entry := l.logger.Info()
	if event == "error" {
		entry = l.logger.Error()
	}
	entry.Str("event", event).Fields(fields).Msg(event)
}
