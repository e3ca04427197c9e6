package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	log, err := New("debug")
	if err != nil {
		t.Fatalf("New(debug) error = %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("debug level not enabled")
	}

	log, err = New("")
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("default level should be info")
	}

	if _, err := New("loud"); err == nil {
		t.Errorf("New(loud) should fail")
	}
}
