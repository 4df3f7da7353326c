package logger

// Logger is the logging contract used by the planning and control packages.
// Implementations live under infra; core code never touches a concrete
// logging backend.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
