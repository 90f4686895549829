package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"ERROR", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLevel(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(Entry{Message: fmt.Sprintf("msg-%d", i), Timestamp: time.Now()})
	}

	if rb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rb.Len())
	}

	entries := rb.Snapshot()
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, w := range want {
		if entries[i].Message != w {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Message, w)
		}
	}
}

func TestTeeHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}

	logger := slog.New(h)
	logger.Info("startup complete")

	if !strings.Contains(a.String(), "startup complete") {
		t.Errorf("info sink missing record: %q", a.String())
	}
	if b.Len() != 0 {
		t.Errorf("error sink received an info record: %q", b.String())
	}

	logger.Error("disk full")
	if !strings.Contains(b.String(), "disk full") {
		t.Errorf("error sink missing record: %q", b.String())
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer(4)
	if got := rb.Snapshot(); got != nil {
		t.Errorf("Snapshot() on empty buffer = %v, want nil", got)
	}
}

func TestModuleLevelOverride(t *testing.T) {
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"supervisor": "debug",
		},
	})

	if got := levelFor("supervisor"); got != slog.LevelDebug {
		t.Errorf("levelFor(supervisor) = %v, want debug", got)
	}
	if got := levelFor("health"); got != slog.LevelInfo {
		t.Errorf("levelFor(health) = %v, want info", got)
	}
}

func TestGetLoggerReusesInstance(t *testing.T) {
	a := GetLogger("lockfile")
	b := GetLogger("lockfile")
	if a != b {
		t.Error("GetLogger returned different instances for the same module")
	}
}

func TestFlattenAttrGroups(t *testing.T) {
	attrs := make(map[string]any)
	flattenAttr(attrs, nil, slog.Group("child", slog.Int("pid", 42), slog.String("state", "running")))

	if attrs["child.pid"] != int64(42) {
		t.Errorf("child.pid = %v, want 42", attrs["child.pid"])
	}
	if attrs["child.state"] != "running" {
		t.Errorf("child.state = %v, want running", attrs["child.state"])
	}
}
