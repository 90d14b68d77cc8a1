package core

// Logger is implemented by the logging services (std, rollbar).
// Extra args may carry errors, maps or a user.User to enrich the report.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
