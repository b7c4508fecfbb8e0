package logger

// NoopLogger discards everything. Handy default for tests and for
// components that treat logging as optional.
type NoopLogger struct{}

var _ ILogger = NoopLogger{}

func (NoopLogger) Debug(module, message string, details map[string]interface{}) {}
func (NoopLogger) Info(module, message string, details map[string]interface{})  {}
func (NoopLogger) Warn(module, message string, details map[string]interface{})  {}
func (NoopLogger) Error(module, message string, details map[string]interface{}) {}
func (NoopLogger) Sync() error                                                  { return nil }
