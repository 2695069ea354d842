package realtime

import (
	"sync"

	"connect-kitchen/internal/models"
)

// maxInflightCommands bounds the commands one session may have running.
const maxInflightCommands = 8

// Session is one connected client. Frames queued for it are drained by the
// transport that owns the connection.
type Session struct {
	ID string

	mu      sync.Mutex
	actor   models.Actor
	rooms   []string
	send    chan []byte
	done    chan struct{}
	slots   chan struct{}
	closed  bool
	syncing bool
	pending [][]byte
}

func newSession(id string, actor models.Actor, rooms []string, buffer int) *Session {
	return &Session{
		ID:      id,
		actor:   actor,
		rooms:   rooms,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		slots:   make(chan struct{}, maxInflightCommands),
		syncing: true,
	}
}

func (s *Session) Actor() models.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

func (s *Session) Rooms() []string {
	return s.rooms
}

// AdoptTab binds a guest session without a tab to tabID, so the guest can
// edit the order it just placed.
func (s *Session) AdoptTab(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actor.Role == models.RoleGuest && s.actor.TabID == "" {
		s.actor.TabID = tabID
	}
}

// Send yields queued frames in order.
func (s *Session) Send() <-chan []byte {
	return s.send
}

// Done is closed when the session ends, from either side.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// enqueue queues frame without blocking. While the initial snapshot is being
// prepared, frames are held back so they follow it. It reports false when
// the session is closed or its buffer overflowed.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.syncing {
		if len(s.pending) >= cap(s.send) {
			return false
		}
		s.pending = append(s.pending, frame)
		return true
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// finishSync queues first, then everything held back since registration.
func (s *Session) finishSync(first []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.syncing = false

	frames := append([][]byte{first}, s.pending...)
	s.pending = nil
	for _, frame := range frames {
		if frame == nil {
			continue
		}
		select {
		case s.send <- frame:
		default:
			return false
		}
	}
	return true
}

// beginCommand waits for a free command slot. It reports false when the
// session ended first.
func (s *Session) beginCommand() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) endCommand() {
	<-s.slots
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	close(s.done)
}
