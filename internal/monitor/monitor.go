// Package monitor is the operator's view of all sessions: it keeps a session
// list fresh and approves pending push-up challenges.
package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"valentine/internal/wire"
)

var ErrNotLoggedIn = errors.New("monitor: not logged in")

type API interface {
	AdminLogin(ctx context.Context, password string) error
	AdminSessions(ctx context.Context, password string) ([]wire.AdminSession, error)
	AdminSessionDetail(ctx context.Context, password, sessionID string) (wire.AdminSessionDetail, error)
	AdminApprove(ctx context.Context, password, sessionID string) (string, error)
}

// Listener is called with the session list after every successful refresh.
type Listener func([]wire.AdminSession)

type Monitor struct {
	api      API
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	password  string
	sessions  []wire.AdminSession
	details   map[string]wire.AdminSessionDetail
	listeners []Listener
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func New(api API, opts ...Option) *Monitor {
	m := &Monitor{api: api, interval: 5 * time.Second, details: map[string]wire.AdminSessionDetail{}}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard)
	}
	return m
}

// Login checks the password with the backend and keeps it for later calls.
func (m *Monitor) Login(ctx context.Context, password string) error {
	if err := m.api.AdminLogin(ctx, password); err != nil {
		return err
	}
	m.mu.Lock()
	m.password = password
	m.mu.Unlock()
	return nil
}

func (m *Monitor) OnUpdate(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Monitor) credentials() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.password == "" {
		return "", ErrNotLoggedIn
	}
	return m.password, nil
}

// Refresh reloads the session list. On failure the previous list is kept.
func (m *Monitor) Refresh(ctx context.Context) error {
	pw, err := m.credentials()
	if err != nil {
		return err
	}
	list, err := m.api.AdminSessions(ctx, pw)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions = list
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(list)
	}
	return nil
}

// Run refreshes immediately and then on every interval until ctx is done.
// Refresh failures are logged and otherwise ignored.
func (m *Monitor) Run(ctx context.Context) error {
	if _, err := m.credentials(); err != nil {
		return err
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.Debug("refresh sessions failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Monitor) Sessions() []wire.AdminSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wire.AdminSession(nil), m.sessions...)
}

func (m *Monitor) Detail(ctx context.Context, sessionID string) (wire.AdminSessionDetail, error) {
	pw, err := m.credentials()
	if err != nil {
		return wire.AdminSessionDetail{}, err
	}
	d, err := m.api.AdminSessionDetail(ctx, pw, sessionID)
	if err != nil {
		return wire.AdminSessionDetail{}, err
	}
	m.mu.Lock()
	m.details[sessionID] = d
	m.mu.Unlock()
	return d, nil
}

// CachedDetail returns the last detail fetched for sessionID.
func (m *Monitor) CachedDetail(sessionID string) (wire.AdminSessionDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[sessionID]
	return d, ok
}

// Approve reports whether the backend accepted the approval. Failures are
// not errors for the operator; the list simply does not change.
func (m *Monitor) Approve(ctx context.Context, sessionID string) bool {
	pw, err := m.credentials()
	if err != nil {
		return false
	}
	if _, err := m.api.AdminApprove(ctx, pw, sessionID); err != nil {
		m.logger.Debug("approve failed", "session", sessionID, "err", err)
		return false
	}
	if err := m.Refresh(ctx); err != nil {
		m.logger.Debug("refresh after approve failed", "err", err)
	}
	if _, err := m.Detail(ctx, sessionID); err != nil {
		m.logger.Debug("detail after approve failed", "session", sessionID, "err", err)
	}
	return true
}

// Pending lists sessions waiting for approval.
func Pending(list []wire.AdminSession) []wire.AdminSession {
	var out []wire.AdminSession
	for _, s := range list {
		if s.ChallengeStatus == wire.ChallengePending {
			out = append(out, s)
		}
	}
	return out
}
