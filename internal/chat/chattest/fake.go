// Package chattest provides an in-memory chat platform for tests.
package chattest

import (
	"context"
	"sync"

	"standupbot/internal/chat"
)

type Post struct {
	Channel     string
	Text        string
	Attachments []chat.Attachment
}

// Platform implements chat.Client and the typing side of chat.RealTime.
type Platform struct {
	mu       sync.Mutex
	users    []chat.User
	ims      []chat.IM
	presence map[string]string

	posts    []Post
	typing   []string
	calls    map[string]int
	failures map[string]error
}

var _ chat.Client = (*Platform)(nil)

func New() *Platform {
	return &Platform{
		presence: map[string]string{},
		calls:    map[string]int{},
		failures: map[string]error{},
	}
}

func (p *Platform) SetUsers(users ...chat.User) {
	p.mu.Lock()
	p.users = append([]chat.User(nil), users...)
	p.mu.Unlock()
}

func (p *Platform) SetIMs(ims ...chat.IM) {
	p.mu.Lock()
	p.ims = append([]chat.IM(nil), ims...)
	p.mu.Unlock()
}

func (p *Platform) SetPresence(userID, presence string) {
	p.mu.Lock()
	p.presence[userID] = presence
	p.mu.Unlock()
}

// Fail makes every later call to method ("PostMessage", "ListUsers",
// "ListIMs", "GetPresence", "SendTyping") return err. A nil err clears it.
func (p *Platform) Fail(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, method)
		return
	}
	p.failures[method] = err
}

func (p *Platform) begin(method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[method]++
	return p.failures[method]
}

// Calls reports how often method was invoked.
func (p *Platform) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *Platform) Posts() []Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Post(nil), p.posts...)
}

func (p *Platform) Typing() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typing...)
}

func (p *Platform) PostMessage(_ context.Context, channel, text string, attachments []chat.Attachment) error {
	if err := p.begin("PostMessage"); err != nil {
		return err
	}
	p.mu.Lock()
	p.posts = append(p.posts, Post{Channel: channel, Text: text, Attachments: attachments})
	p.mu.Unlock()
	return nil
}

func (p *Platform) ListUsers(context.Context) ([]chat.User, error) {
	if err := p.begin("ListUsers"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.User(nil), p.users...), nil
}

func (p *Platform) ListIMs(context.Context) ([]chat.IM, error) {
	if err := p.begin("ListIMs"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.IM(nil), p.ims...), nil
}

func (p *Platform) GetPresence(_ context.Context, userID string) (string, error) {
	if err := p.begin("GetPresence"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.presence[userID]; ok {
		return v, nil
	}
	return chat.PresenceAway, nil
}

func (p *Platform) SendTyping(_ context.Context, channel string) error {
	if err := p.begin("SendTyping"); err != nil {
		return err
	}
	p.mu.Lock()
	p.typing = append(p.typing, channel)
	p.mu.Unlock()
	return nil
}
