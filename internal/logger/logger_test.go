package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func reset() {
	SetVerbose(false)
	_ = SetLevel("warn")
	_ = SetFormat("text")
	_ = Close()
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false after SetVerbose(false)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	if got := buf.String(); got != "[DEBUG] test message arg\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestDebugAndInfo_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("test message")
	Info("info message")

	if buf.Len() > 0 {
		t.Errorf("expected no output when verbose is disabled, got %q", buf.String())
	}
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Section("Hidden")
	if buf.Len() > 0 {
		t.Error("expected no section header when verbose is disabled")
	}

	SetVerbose(true)
	Section("Test Section")

	if got := buf.String(); got != "\n=== Test Section ===\n" {
		t.Errorf("unexpected section output: %q", got)
	}
}

func TestInfo(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Info("info message %d", 42)

	if got := buf.String(); got != "[INFO] info message 42\n" {
		t.Errorf("unexpected info output: %q", got)
	}
}

func TestWarnAndError_AlwaysPrinted(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Warn("warning message")
	Error("error %s", "message")

	want := "[WARN] warning message\n[ERROR] error message\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestSetLevel(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	if err := SetLevel("info"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Info("visible")
	Debug("hidden")

	if got := buf.String(); got != "[INFO] visible\n" {
		t.Errorf("unexpected output: %q", got)
	}

	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestWithFields(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(Fields{"collection": "docs", "count": 3}).Warn("ingested")

	if got := buf.String(); got != "[WARN] ingested collection=docs count=3\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestSetFormat_JSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	if err := SetFormat("json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	WithFields(Fields{"collection": "docs"}).Warn("degraded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "degraded" || entry["collection"] != "docs" || entry["level"] != "warning" {
		t.Errorf("unexpected entry: %v", entry)
	}

	if err := SetFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConfigure_File(t *testing.T) {
	defer reset()

	path := filepath.Join(t.TempDir(), "kbengine.log")
	if err := Configure(Options{Level: "info", Format: "text", File: path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Info("to file")
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] to file") {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestConcurrentAccess(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			SetVerbose(true)
			Debug("concurrent %d", i)
			IsVerbose()
			SetVerbose(false)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
