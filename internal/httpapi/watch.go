package httpapi

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"valentine/internal/wire"
)

const (
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

// Hub fans challenge status changes out to websocket watchers. Each
// subscriber holds at most one pending status; newer ones replace it.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan string]struct{}{}}
}

func (h *Hub) ChallengeChanged(sessionID, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- status:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- status
		}
	}
}

func (h *Hub) subscribe(sessionID string) (<-chan string, func()) {
	ch := make(chan string, 1)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[chan string]struct{}{}
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[sessionID], ch)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
	}
}

func (h *Hub) watchers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(s.cfg.CORSOrigins) == 0 || slices.Contains(s.cfg.CORSOrigins, origin)
	}}
}

// handleChallengeWatch streams the session's challenge status: the current
// value first, then every change, closing after approval.
func (s *Server) handleChallengeWatch(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	updates, cancel := s.hub.subscribe(sessionID)
	defer cancel()

	status, err := s.backend.ChallengeStatus(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("watch upgrade failed", "session", sessionID, "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(st string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
		return conn.WriteJSON(wire.ChallengeStatus{Status: st})
	}
	if err := send(status); err != nil {
		return
	}
	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()
	for status != wire.ChallengeApproved {
		select {
		case st := <-updates:
			status = st
			if err := send(status); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, wire.ChallengeApproved),
		time.Now().Add(watchWriteWait))
}
