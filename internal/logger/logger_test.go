package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	if New(true) == nil || New(false) == nil {
		t.Fatal("Expected logger to not be nil")
	}
}

func TestNewWithWriter_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)
	logger.Debug("test debug message")

	out := buf.String()
	if !strings.Contains(out, "test debug message") {
		t.Errorf("Expected log output to contain 'test debug message', got %q", out)
	}
	if !strings.Contains(out, `"service":"toolbroker"`) {
		t.Errorf("Expected service attribute in %q", out)
	}
}

func TestNewWithWriter_InfoSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Debug("test debug message")
	logger.Info("test info message")

	if strings.Contains(buf.String(), "test debug message") {
		t.Errorf("Expected debug message to be suppressed")
	}
	if !strings.Contains(buf.String(), "test info message") {
		t.Errorf("Expected info message to be logged")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
