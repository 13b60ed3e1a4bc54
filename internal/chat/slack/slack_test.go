package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	slackapi "github.com/slack-go/slack"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

type frame struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

type fakeSlack struct {
	t        *testing.T
	srv      *httptest.Server
	stop     chan struct{}
	mu       sync.Mutex
	posted   []map[string]string
	connects int
	frames   chan string
	received chan frame
}

func newFakeSlack(t *testing.T) *fakeSlack {
	f := &fakeSlack{
		t:        t,
		stop:     make(chan struct{}),
		frames:   make(chan string, 8),
		received: make(chan frame, 8),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", f.api)
	mux.HandleFunc("/ws", f.ws)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	t.Cleanup(func() { close(f.stop) })
	return f
}

func (f *fakeSlack) client() *Client {
	return New(Config{Token: "xoxb-test", APIURL: f.srv.URL + "/api", RatePerSec: 100}, logx.Nop())
}

func (f *fakeSlack) api(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	if r.Form.Get("token") != "xoxb-test" {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "not_authed"})
		return
	}
	method := strings.TrimPrefix(r.URL.Path, "/api/")
	var out any
	switch method {
	case "chat.postMessage":
		if r.Form.Get("channel") == "#missing" {
			out = map[string]any{"ok": false, "error": "channel_not_found"}
			break
		}
		f.mu.Lock()
		f.posted = append(f.posted, map[string]string{
			"channel":     r.Form.Get("channel"),
			"text":        r.Form.Get("text"),
			"as_user":     r.Form.Get("as_user"),
			"attachments": r.Form.Get("attachments"),
		})
		f.mu.Unlock()
		out = map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "1700000000.000100"}
	case "users.list":
		if r.Form.Get("cursor") == "" {
			out = map[string]any{
				"ok": true,
				"members": []map[string]any{{
					"id": "U1", "name": "sasha", "presence": "away",
					"profile": map[string]any{"real_name": "Sasha", "image_192": "https://img/u1.png"},
				}},
				"response_metadata": map[string]any{"next_cursor": "page2"},
			}
		} else {
			out = map[string]any{
				"ok":      true,
				"members": []map[string]any{{"id": "U2", "name": "kim", "deleted": true}},
			}
		}
	case "conversations.list":
		if r.Form.Get("cursor") == "" {
			out = map[string]any{
				"ok":                true,
				"channels":          []map[string]any{{"id": "D1", "user": "U1", "is_im": true}},
				"response_metadata": map[string]any{"next_cursor": "more"},
			}
		} else {
			out = map[string]any{"ok": true, "channels": []map[string]any{{"id": "D2", "user": "U2", "is_im": true}}}
		}
	case "users.getPresence":
		out = map[string]any{"ok": true, "presence": "active"}
	case "rtm.connect":
		f.mu.Lock()
		f.connects++
		f.mu.Unlock()
		out = map[string]any{
			"ok":   true,
			"url":  "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws",
			"self": map[string]any{"id": "UBOT", "name": "standup"},
		}
	default:
		out = map[string]any{"ok": false, "error": "unknown_method"}
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeSlack) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"api.slack.com"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			var msg frame
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				cancel()
				return
			}
			f.received <- msg
		}
	}()
	for {
		select {
		case <-f.stop:
			return
		case <-ctx.Done():
			return
		case raw := <-f.frames:
			if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
				return
			}
		}
	}
}

func (f *fakeSlack) rtmConnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func TestWebAPI(t *testing.T) {
	f := newFakeSlack(t)
	c := f.client()
	ctx := context.Background()

	users, err := c.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers = %+v, %v", users, err)
	}
	if users[0].Profile.RealName != "Sasha" || users[0].Profile.Image192 != "https://img/u1.png" || users[0].Presence != chat.PresenceAway {
		t.Fatalf("first user = %+v", users[0])
	}
	if !users[1].Deleted {
		t.Fatalf("second page user should be deleted: %+v", users[1])
	}

	ims, err := c.ListIMs(ctx)
	if err != nil || len(ims) != 2 || !ims[0].IsIM || ims[0].User != "U1" || ims[1].ID != "D2" {
		t.Fatalf("ListIMs = %+v, %v", ims, err)
	}

	presence, err := c.GetPresence(ctx, "U1")
	if err != nil || presence != chat.PresenceActive {
		t.Fatalf("GetPresence = %q, %v", presence, err)
	}

	err = c.PostMessage(ctx, "#dev", "Summary for Dev", []chat.Attachment{{Title: "Sasha", Text: "shipping", Color: "#aabbcc", Ts: 1700000000}})
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posted) != 1 {
		t.Fatalf("posted = %+v", f.posted)
	}
	got := f.posted[0]
	if got["channel"] != "#dev" || got["text"] != "Summary for Dev" || got["as_user"] != "true" {
		t.Fatalf("posted = %+v", got)
	}
	if !strings.Contains(got["attachments"], `"title":"Sasha"`) || !strings.Contains(got["attachments"], `"ts":1700000000`) {
		t.Fatalf("attachments = %s", got["attachments"])
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	f := newFakeSlack(t)
	err := f.client().PostMessage(context.Background(), "#missing", "hi", nil)
	var apiErr slackapi.SlackErrorResponse
	if !errors.As(err, &apiErr) || apiErr.Err != "channel_not_found" {
		t.Fatalf("err = %v, want channel_not_found", err)
	}
	if !strings.Contains(err.Error(), "chat.postMessage") {
		t.Fatalf("err = %v, want the method named", err)
	}

	bad := New(Config{Token: "wrong", APIURL: f.srv.URL + "/api"}, logx.Nop())
	if _, err := bad.ListUsers(context.Background()); !errors.As(err, &apiErr) || apiErr.Err != "not_authed" {
		t.Fatalf("err = %v, want not_authed", err)
	}
}

func TestRTMSession(t *testing.T) {
	f := newFakeSlack(t)
	rtm := NewRTM(f.client())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := rtm.Read(ctx); !errors.Is(err, chat.ErrNotConnected) {
		t.Fatalf("Read before Connect = %v, want ErrNotConnected", err)
	}
	if err := rtm.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer rtm.Close()

	f.frames <- `{"type":"hello"}`
	// An undecodable frame is skipped and the session stays up.
	f.frames <- `{"type":"message","channel":"D1","user":"U1","text":5}`
	f.frames <- `{"type":"message","channel":"D1","user":"U1","text":"all green","ts":"1.2"}`
	f.frames <- `{"type":"presence_change","user":"U1","presence":"away"}`
	f.frames <- `{"type":"message","subtype":"message_changed","hidden":true,"channel":"D1","message":{"user":"U1","text":"edited"},"previous_message":{"user":"U1","text":"old"}}`

	ev, err := rtm.Read(ctx)
	if err != nil || ev.Type != chat.EventHello {
		t.Fatalf("first event = %+v, %v", ev, err)
	}
	ev, err = rtm.Read(ctx)
	if err != nil || ev.Message == nil || ev.Message.Text != "all green" || ev.Message.Channel != "D1" || ev.Message.TS != "1.2" {
		t.Fatalf("second event = %+v, %v", ev, err)
	}
	ev, err = rtm.Read(ctx)
	if err != nil || ev.Presence == nil || ev.Presence.User != "U1" || ev.Presence.Presence != chat.PresenceAway {
		t.Fatalf("third event = %+v, %v", ev, err)
	}
	ev, err = rtm.Read(ctx)
	if err != nil || ev.Message == nil || ev.Message.Subtype != chat.SubtypeMessageChanged || !ev.Message.Hidden {
		t.Fatalf("edit event = %+v, %v", ev, err)
	}
	if ev.Message.Message == nil || ev.Message.Message.Text != "edited" || ev.Message.PreviousMessage == nil || ev.Message.PreviousMessage.Text != "old" {
		t.Fatalf("edit versions = %+v", ev.Message)
	}

	if err := rtm.SendTyping(ctx, "D1"); err != nil {
		t.Fatal(err)
	}
	typing := <-f.received
	if err := rtm.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	ping := <-f.received
	if typing.Type != "typing" || typing.Channel != "D1" || ping.Type != "ping" || ping.ID <= typing.ID {
		t.Fatalf("outbound frames = %+v, %+v", typing, ping)
	}

	f.frames <- `{"type":"goodbye"}`
	ev, err = rtm.Read(ctx)
	if err != nil || ev.Type != chat.EventGoodbye {
		t.Fatalf("goodbye = %+v, %v", ev, err)
	}
	if err := rtm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := rtm.Read(ctx); !errors.Is(err, chat.ErrNotConnected) {
		t.Fatalf("Read after Close = %v, want ErrNotConnected", err)
	}

	if err := rtm.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := f.rtmConnects(); got < 2 {
		t.Fatalf("rtm.connect calls = %d, want a fresh session", got)
	}
}

func TestRTMConnectRejectsBadToken(t *testing.T) {
	f := newFakeSlack(t)
	bad := New(Config{Token: "wrong", APIURL: f.srv.URL + "/api"}, logx.Nop())
	rtm := NewRTM(bad)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rtm.Connect(ctx); err == nil {
		t.Fatal("Connect with a bad token should fail")
	}
	if _, err := rtm.Read(ctx); !errors.Is(err, chat.ErrNotConnected) {
		t.Fatalf("Read after failed Connect = %v", err)
	}
}
