package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := map[string]statusKind{
		"ok":      statusOK,
		"WARN":    statusWarn,
		"warning": statusWarn,
		"error":   statusError,
		"info":    statusInfo,
		"":        statusInfo,
	}
	for severity, want := range cases {
		if got := statusKindFromSeverity(severity); got != want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", severity, got, want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"ID", "Name"}, [][]string{{"1"}}, []columnAlignment{alignRight})
	requireContains(t, out, "ID")
	requireContains(t, out, "NAME")
	if lines := strings.Split(strings.TrimRight(out, "\n"), "\n"); len(lines) != 5 {
		t.Fatalf("expected header, one row and borders, got %d lines:\n%s", len(lines), out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("закалочная печь"); got != "Закалочная Печь" {
		t.Fatalf("displayName = %q", got)
	}
}

func TestAPIBaseURL(t *testing.T) {
	tests := map[string]string{
		"0.0.0.0:8040":   "http://127.0.0.1:8040",
		":8040":          "http://127.0.0.1:8040",
		"10.0.0.5:9000":  "http://10.0.0.5:9000",
		"[::]:8040":      "http://127.0.0.1:8040",
		"localhost:8040": "http://localhost:8040",
	}
	for bind, want := range tests {
		cfg := &config.Config{API: config.API{Bind: bind}}
		if got := apiBaseURL(cfg); got != want {
			t.Fatalf("apiBaseURL(%q) = %q, want %q", bind, got, want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	msg := broadcast.NewMessage(broadcast.GroupTask, 12, broadcast.EventCreated)
	msg.Seq = 4
	msg.Time = time.Time{}
	if got := formatMessage(msg); got != "#4 task/created 12" {
		t.Fatalf("formatMessage = %q", got)
	}
	if got := formatMessage(broadcast.Message{Group: broadcast.GroupQueue, Event: broadcast.EventReordered}); got != "queue/reordered" {
		t.Fatalf("formatMessage = %q", got)
	}
}
