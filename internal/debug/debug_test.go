package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useTempLogPath(t *testing.T) string {
	t.Helper()
	resetForTest()

	dir := t.TempDir()
	path := filepath.Join(dir, LogDirName, LogFileName)
	orig := getLogPath
	getLogPath = func() (string, error) { return path, nil }
	t.Cleanup(func() {
		getLogPath = orig
		resetForTest()
	})
	return path
}

func TestInitDisabledIsNoop(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	if err := Init(false, ""); err != nil {
		t.Fatalf("Init(false) returned error: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() should be false")
	}
	if Path() != "" {
		t.Fatalf("Path() = %q, want empty", Path())
	}
	Log("ignored")
	Logf("ignored %d", 1)
	Scope("query").Logf("ignored %s", "too")
}

func TestInitWritesDefaultPath(t *testing.T) {
	path := useTempLogPath(t)

	if err := Init(true, ""); err != nil {
		t.Fatalf("Init(true) returned error: %v", err)
	}
	if Path() != path {
		t.Fatalf("Path() = %q, want %q", Path(), path)
	}

	Log("plain message")
	Logf("formatted %s %d", "entry", 42)
	Scope("profile").Logf("registered %s", "device_1")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(content)
	for _, want := range []string{"fflux debug log started", "plain message", "formatted entry 42", "[profile] registered device_1"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q:\n%s", want, text)
		}
	}
}

func TestInitExplicitPath(t *testing.T) {
	useTempLogPath(t)
	custom := filepath.Join(t.TempDir(), "logs", "custom.log")

	if err := Init(true, custom); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	Logf("hello")
	Close()

	content, err := os.ReadFile(custom)
	if err != nil {
		t.Fatalf("read custom log: %v", err)
	}
	if !strings.Contains(string(content), "hello") {
		t.Fatalf("custom log missing entry: %s", content)
	}
}

func TestInitTruncatesExistingLog(t *testing.T) {
	path := useTempLogPath(t)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("stale content\n"), 0600); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	if err := Init(true, ""); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(content), "stale content") {
		t.Fatal("log was not truncated")
	}
}

func TestReinitClosesPreviousFile(t *testing.T) {
	useTempLogPath(t)

	if err := Init(true, ""); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if err := Init(false, ""); err != nil {
		t.Fatalf("Init(false) returned error: %v", err)
	}
	if Enabled() || Path() != "" {
		t.Fatalf("expected logging off after re-init, path %q", Path())
	}
	Close()
	Close()
}

func TestDefaultPathSuffix(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath returned error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(LogDirName, LogFileName)) {
		t.Fatalf("DefaultPath() = %q", path)
	}
}

func resetForTest() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	enabled = false
	logger = nil
}
