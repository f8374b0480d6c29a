package commons

import "testing"

func TestNewDevelopmentLogger(t *testing.T) {
	logger, err := New(Options{Development: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Exercise every method; a panic here is the failure signal.
	logger.Debugf("debug %d", 1)
	logger.Infof("info %s", "x")
	logger.Warnf("warn")
	logger.Errorf("err")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	logger.Infow("infow", "k", "v")
	scoped := logger.With("session_id", "abc123")
	scoped.Warnw("dropped frame", "reason", "channel_full")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NewNop()
	l = l.With("a", 1)
	l.Infof("noop")
}
