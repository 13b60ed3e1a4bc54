package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSender) SendAlert(_ context.Context, text string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{raw: "debug", want: zerolog.DebugLevel},
		{raw: " WARNING ", want: zerolog.WarnLevel},
		{raw: "error", want: zerolog.ErrorLevel},
		{raw: "bogus", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"task failed","task":"ask_status","queue":"fast"}` + "\n")
	got := formatAlert(line)
	want := "[WARN] task failed\n- queue=fast\n- task=ask_status"
	if got != want {
		t.Fatalf("formatAlert = %q, want %q", got, want)
	}

	raw := formatAlert([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("formatAlert(non-json) = %q", raw)
	}
}

func TestAlertSinkRespectsMinLevel(t *testing.T) {
	sender := &recordingSender{}
	svc, log := New(Config{
		Level: "debug",
		Alert: AlertConfig{Enabled: true, MinLevel: "error", RatePerSec: 100},
	}, sender)
	defer svc.Close()

	log.Warn("below threshold")
	log.Error("store save failed", String("key", "report"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sender.count() != 1 {
		t.Fatalf("alerts sent = %d, want 1", sender.count())
	}
	sender.mu.Lock()
	msg := sender.msgs[0]
	sender.mu.Unlock()
	if !strings.HasPrefix(msg, "[ERROR] store save failed") {
		t.Fatalf("unexpected alert text %q", msg)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("dropped")
	Nop().With(String("comp", "test")).Error("dropped too")
}
