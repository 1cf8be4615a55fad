package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"valentine/internal/client"
	"valentine/internal/wire"
)

type fakeBackend struct {
	mu        sync.Mutex
	password  string
	sessions  []wire.AdminSession
	listCalls atomic.Int32
	failList  atomic.Bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Admin-Password") != b.password {
				writeJSON(w, http.StatusForbidden, wire.ErrorBody{Detail: "Invalid admin password"})
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("POST /api/admin/login", auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, wire.OK{OK: true})
	}))
	mux.HandleFunc("GET /api/admin/sessions", auth(func(w http.ResponseWriter, r *http.Request) {
		b.listCalls.Add(1)
		if b.failList.Load() {
			writeJSON(w, http.StatusInternalServerError, wire.ErrorBody{Detail: "boom"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.sessions)
	}))
	mux.HandleFunc("GET /api/admin/session/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, s := range b.sessions {
			if s.SessionID == r.PathValue("id") {
				writeJSON(w, http.StatusOK, wire.AdminSessionDetail{Session: s, TotalWrong: 2})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, wire.ErrorBody{Detail: "Session not found"})
	}))
	mux.HandleFunc("POST /api/admin/approve/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.sessions {
			if s.SessionID == r.PathValue("id") && s.ChallengeStatus == wire.ChallengePending {
				b.sessions[i].ChallengeStatus = wire.ChallengeApproved
				writeJSON(w, http.StatusOK, wire.ChallengeStatus{Status: wire.ChallengeApproved})
				return
			}
		}
		writeJSON(w, http.StatusConflict, wire.ErrorBody{Detail: "Challenge not pending"})
	}))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newMonitor(t *testing.T, b *fakeBackend, opts ...Option) *Monitor {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return New(client.New(srv.URL+"/api", nil), opts...)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	m := newMonitor(t, &fakeBackend{password: "pw"})
	ctx := context.Background()

	err := m.Login(ctx, "nope")
	require.Error(t, err)
	require.ErrorIs(t, m.Refresh(ctx), ErrNotLoggedIn)

	require.NoError(t, m.Login(ctx, "pw"))
	require.NoError(t, m.Refresh(ctx))
}

func TestApprovePendingRefreshesListAndDetail(t *testing.T) {
	b := &fakeBackend{password: "pw", sessions: []wire.AdminSession{
		{SessionID: "a", ChallengeStatus: wire.ChallengePending},
		{SessionID: "b", ChallengeStatus: wire.ChallengeNone},
	}}
	m := newMonitor(t, b)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, "pw"))

	var updates atomic.Int32
	m.OnUpdate(func([]wire.AdminSession) { updates.Add(1) })
	require.NoError(t, m.Refresh(ctx))
	require.Len(t, Pending(m.Sessions()), 1)

	require.True(t, m.Approve(ctx, "a"))
	require.Empty(t, Pending(m.Sessions()))
	d, ok := m.CachedDetail("a")
	require.True(t, ok)
	require.Equal(t, wire.ChallengeApproved, d.Session.ChallengeStatus)
	require.Equal(t, int32(2), updates.Load())

	require.False(t, m.Approve(ctx, "b"), "approving a session that never submitted must fail quietly")
	require.False(t, m.Approve(ctx, "missing"))
}

func TestRefreshFailureKeepsList(t *testing.T) {
	b := &fakeBackend{password: "pw", sessions: []wire.AdminSession{{SessionID: "a"}}}
	m := newMonitor(t, b)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, "pw"))
	require.NoError(t, m.Refresh(ctx))

	b.failList.Store(true)
	require.Error(t, m.Refresh(ctx))
	require.Len(t, m.Sessions(), 1)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	b := &fakeBackend{password: "pw"}
	m := newMonitor(t, b, WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	require.ErrorIs(t, m.Run(ctx), ErrNotLoggedIn)
	require.NoError(t, m.Login(ctx, "pw"))

	b.failList.Store(true)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return b.listCalls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
