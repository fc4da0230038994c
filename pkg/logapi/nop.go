package logapi

type nopFactory struct{}

func (nopFactory) GetLogger(name string) Logger { return Nop(name) }

// Nop returns a logger that never writes anything.
func Nop(name string) Logger { return nopLogger{name: name} }

type nopLogger struct{ name string }

func (l nopLogger) Name() string                           { return l.name }
func (nopLogger) Enabled(Level) bool                       { return false }
func (nopLogger) Trace(string, ...any)                     {}
func (nopLogger) Debug(string, ...any)                     {}
func (nopLogger) Info(string, ...any)                      {}
func (nopLogger) Warn(string, ...any)                      {}
func (nopLogger) Error(string, ...any)                     {}
func (nopLogger) Log(Level, Marker, error, string, ...any) {}
