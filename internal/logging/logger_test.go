package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoggerRespectsMinLevel(t *testing.T) {
	output := &bytes.Buffer{}
	logger := NewLoggerWithOutput(NewBuffer(10), LevelWarning, output)

	logger.Debug("dropped debug", nil)
	logger.Info("dropped info", nil)
	logger.Warn("kept warning", nil)
	logger.Error("kept error", nil)

	entries := logger.Buffer().List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning || entries[1].Level != LevelError {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	if !strings.Contains(output.String(), `msg="kept warning"`) {
		t.Fatalf("warning not written to output: %q", output.String())
	}
}

func TestLoggerSetMinLevelAppliesAtRuntime(t *testing.T) {
	logger := NewLoggerWithOutput(NewBuffer(10), LevelError, nil)

	logger.Info("before", nil)
	logger.SetMinLevel(LevelDebug)
	logger.Debug("after", nil)

	entries := logger.Buffer().List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "after" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestLoggerWithMergesFields(t *testing.T) {
	logger := NewLoggerWithOutput(NewBuffer(10), LevelInfo, nil)
	scoped := logger.With(map[string]string{"component": "dispatch"})

	scoped.Info("event", map[string]string{"mission": "MISSION-001"})

	entries := logger.Buffer().List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].Fields
	if fields["component"] != "dispatch" || fields["mission"] != "MISSION-001" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoggerSubscribeReceivesEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewBuffer(10), LevelInfo, nil)
	entries, cancel := logger.Subscribe()
	defer cancel()

	logger.Info("hello", nil)

	select {
	case entry := <-entries:
		if entry.Message != "hello" {
			t.Fatalf("unexpected entry: %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatalf("no entry received")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warn", LevelWarning, true},
		{" warning ", LevelWarning, true},
		{"error", LevelError, true},
		{"fatal", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFormatEntrySortsFields(t *testing.T) {
	entry := Entry{
		Level:   LevelInfo,
		Message: "m",
		Fields:  map[string]string{"b": "2", "a": "1"},
	}
	got := formatEntry(entry)
	want := `level=info msg="m" a="1" b="2"`
	if got != want {
		t.Fatalf("formatEntry = %q, want %q", got, want)
	}
}
