package commons

// nopLogger discards everything. Used as the default Logger in unit tests
// that don't assert on log output.
type nopLogger struct{}

// NewNop returns a Logger that discards all output.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}

func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}

func (n nopLogger) With(...any) Logger { return n }
