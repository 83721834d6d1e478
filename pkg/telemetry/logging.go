package telemetry

import (
	"resilience-pipeline/pkg/logging"

	"go.uber.org/zap"
)

// LoggingListener records every Event as a structured log line, grounded
// on the reference corpus's resilience layer logging style: policy/key
// fields plus whatever strategy-specific fields apply to this event.
type LoggingListener struct {
	logger *logging.Logger
}

// NewLoggingListener builds a listener over logger.
func NewLoggingListener(logger *logging.Logger) *LoggingListener {
	if logger == nil {
		logger = logging.Global()
	}
	return &LoggingListener{logger: logger.Named("telemetry")}
}

// OnEvent implements Listener.
func (l *LoggingListener) OnEvent(e Event) {
	fields := []zap.Field{
		zap.String("strategy", e.Strategy),
		zap.String("event", e.Name),
		zap.String("operation_key", e.OperationKey),
	}
	if e.Delay != "" {
		fields = append(fields, zap.String("delay", e.Delay))
	}
	if e.Duration != "" {
		fields = append(fields, zap.String("duration", e.Duration))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
		l.logger.Warn("resilience event", fields...)
		return
	}
	l.logger.Info("resilience event", fields...)
}
