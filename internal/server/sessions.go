package server

import (
	"net"
	"sync"

	"github.com/kelindar/bitmap"
)

type SessionID uint32

// sessions hands out the lowest free session id and keeps the live
// connections so that Close can sever them.
type sessions struct {
	mu     sync.Mutex
	ids    bitmap.Bitmap
	conns  map[SessionID]net.Conn
	closed bool
}

func newSessions() *sessions {
	return &sessions{
		conns: make(map[SessionID]net.Conn),
	}
}

// add registers conn under the lowest free id. It reports false once
// closeAll has run.
func (s *sessions) add(conn net.Conn) (SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}

	var id uint32
	for s.ids.Contains(id) {
		id++
	}
	s.ids.Set(id)
	s.conns[SessionID(id)] = conn
	return SessionID(id), true
}

func (s *sessions) remove(id SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids.Remove(uint32(id))
	delete(s.conns, id)
}

func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Count()
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.ids.Range(func(id uint32) {
		if conn, ok := s.conns[SessionID(id)]; ok {
			_ = conn.Close()
		}
	})
}
