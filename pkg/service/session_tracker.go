package service

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/session"
)

// sessionTracker tracks open protocol sessions and when they were opened.
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[*session.Session]time.Time
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{
		sessions: make(map[*session.Session]time.Time),
	}
}

// Add registers a session with the current time.
func (st *sessionTracker) Add(s *session.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s] = time.Now()
}

// Remove deregisters a session. Safe to call on absent sessions.
func (st *sessionTracker) Remove(s *session.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, s)
}

// List returns a description of every session, oldest first.
func (st *sessionTracker) List() []SessionInfo {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]SessionInfo, 0, len(st.sessions))
	for s, since := range st.sessions {
		out = append(out, SessionInfo{
			ID:         s.ID(),
			RemoteAddr: s.RemoteAddr(),
			SID:        s.SID(),
			State:      s.State().String(),
			Since:      since,
			AppInfo:    s.AppInfo(),
		})
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CloseAll closes every tracked session and returns how many there were.
func (st *sessionTracker) CloseAll() int {
	st.mu.Lock()
	sessions := make([]*session.Session, 0, len(st.sessions))
	for s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return len(sessions)
}

// Len returns the number of tracked sessions.
func (st *sessionTracker) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
