// Package flow drives a visitor through the stages of a session: it keeps the
// session status current, routes to the component for each stage and submits
// answers.
package flow

import (
	"context"
	"fmt"
	"sync"

	"valentine/internal/client"
	"valentine/internal/wire"
)

// API is the slice of the REST client the visitor flow needs.
type API interface {
	StartSession(ctx context.Context, fingerprint string) (wire.SessionStatus, error)
	SessionStatus(ctx context.Context, sessionID string) (wire.SessionStatus, error)
	Puzzle(ctx context.Context, sessionID string, stage int) (wire.Puzzle, error)
	Captcha(ctx context.Context, stage int) (wire.CaptchaData, error)
	CheckAnswer(ctx context.Context, sessionID string, stage int, answer string) (wire.CheckResult, error)
	Advance(ctx context.Context, sessionID string, stage int) error
}

type Identity interface {
	Fingerprint() (string, error)
	SetSessionID(id string) error
}

type Outcome string

const (
	OutcomeEntry   Outcome = "entry"
	OutcomeExpired Outcome = "expired"
	OutcomeReveal  Outcome = "reveal"
)

// Tracker holds the latest known session status.
type Tracker struct {
	api API
	ids Identity

	mu      sync.Mutex
	status  wire.SessionStatus
	present bool
}

func NewTracker(api API, ids Identity) *Tracker {
	return &Tracker{api: api, ids: ids}
}

// Init starts or restores the session bound to this device's fingerprint.
// Failures are returned so the caller can offer a retry.
func (t *Tracker) Init(ctx context.Context) (wire.SessionStatus, error) {
	fp, err := t.ids.Fingerprint()
	if err != nil {
		return wire.SessionStatus{}, fmt.Errorf("load fingerprint: %w", err)
	}
	st, err := t.api.StartSession(ctx, fp)
	if err != nil {
		return wire.SessionStatus{}, fmt.Errorf("start session: %w", err)
	}
	if err := t.ids.SetSessionID(st.SessionID); err != nil {
		return wire.SessionStatus{}, fmt.Errorf("save session id: %w", err)
	}
	t.set(st)
	return st, nil
}

// Refresh re-reads the status. A 404 marks the session absent. Any other
// failure leaves the last known status in place and is returned.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	id, present := t.status.SessionID, t.present
	t.mu.Unlock()
	if !present {
		return nil
	}
	st, err := t.api.SessionStatus(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			t.mu.Lock()
			t.present = false
			t.mu.Unlock()
			return nil
		}
		return err
	}
	t.set(st)
	return nil
}

func (t *Tracker) Current() (wire.SessionStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.present
}

// observeAdvance records a stage the server accepted so a failed refresh
// cannot send the visitor back to a finished stage.
func (t *Tracker) observeAdvance(stage int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.present && stage > t.status.CurrentStage {
		t.status.CurrentStage = stage
	}
}

func (t *Tracker) set(st wire.SessionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = st
	t.present = true
}

// Destination reports where the visitor must go instead of the current
// stage, if anywhere.
func Destination(st wire.SessionStatus, present bool) (Outcome, bool) {
	switch {
	case !present:
		return OutcomeEntry, true
	case st.Expired:
		return OutcomeExpired, true
	case st.Completed:
		return OutcomeReveal, true
	}
	return "", false
}
