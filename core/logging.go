package core

// Logger is the app-wide structured logger.
// Implementations may attach extra args (errors, maps, user records) to
// each entry for the error tracker.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
