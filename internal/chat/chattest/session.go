package chattest

import (
	"context"
	"sync"

	"standupbot/internal/chat"
)

// Session is an in-memory realtime stream. Events pushed with Emit are
// delivered to the currently connected reader; a session closed with
// Close or Drop answers Read with chat.ErrNotConnected until the next
// Connect.
type Session struct {
	*Platform

	events chan chat.Event

	mu        sync.Mutex
	connected bool
	closed    chan struct{}
	connects  int
	pings     int
}

var _ chat.RealTime = (*Session)(nil)

func NewSession(p *Platform) *Session {
	if p == nil {
		p = New()
	}
	return &Session{Platform: p, events: make(chan chat.Event, 64)}
}

func (s *Session) Emit(ev chat.Event) { s.events <- ev }

func (s *Session) Connect(context.Context) error {
	if err := s.begin("Connect"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		close(s.closed)
	}
	s.connected = true
	s.closed = make(chan struct{})
	s.connects++
	return nil
}

func (s *Session) Read(ctx context.Context) (chat.Event, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return chat.Event{}, chat.ErrNotConnected
	}
	closed := s.closed
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return chat.Event{}, ctx.Err()
	case <-closed:
		return chat.Event{}, chat.ErrNotConnected
	case ev := <-s.events:
		return ev, nil
	}
}

func (s *Session) Ping(context.Context) error {
	if err := s.begin("Ping"); err != nil {
		return err
	}
	s.mu.Lock()
	s.pings++
	s.mu.Unlock()
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		close(s.closed)
		s.connected = false
	}
	return nil
}

// Drop simulates the server closing the connection.
func (s *Session) Drop() { _ = s.Close() }

func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Session) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}
