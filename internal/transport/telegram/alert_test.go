package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "standupbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{name: "short", in: "hello", limit: 10, want: []string{"hello"}},
		{name: "hard cut", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "newline", in: "abcdef\nghij", limit: 8, want: []string{"abcdef", "ghij"}},
		{name: "tiny head not split on newline", in: "a\nbcdefghij", limit: 6, want: []string{"a\nbcde", "fghij"}},
	}
	for _, tt := range tests {
		got := splitText(tt.in, tt.limit)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("%s: splitText = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewRequiresTarget(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New(Config{Token: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestSendAlert(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"}}}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "T0K", ChatID: 42, APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SendAlert(context.Background(), "[ERROR] store save failed"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/botT0K/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if body["text"] != "[ERROR] store save failed" || body["chat_id"] != "42" {
		t.Fatalf("body = %v", body)
	}
}
