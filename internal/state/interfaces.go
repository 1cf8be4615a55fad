package state

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

const (
	ChallengeNone     = "none"
	ChallengePending  = "pending"
	ChallengeApproved = "approved"

	DefaultTrollingPhase = "error"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	GetOrCreateSession(ctx context.Context, s Session) (Session, bool, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	SetIPAddress(ctx context.Context, id, ip string) error
	AdvanceStage(ctx context.Context, id string, stage, completeAt int) (Session, error)
	RecordAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, sessionID string) ([]Attempt, error)
	ListSessions(ctx context.Context) ([]Session, error)
	SetTrollingPhase(ctx context.Context, id, phase string) error
	SubmitChallenge(ctx context.Context, id string) (string, error)
	ApproveChallenge(ctx context.Context, id string) (string, error)
	Close() error
}

type Session struct {
	ID              string
	Fingerprint     string
	CurrentStage    int
	StartedAt       time.Time
	ExpiresAt       time.Time
	Completed       bool
	ChallengeStatus string
	TrollingPhase   string
	IPAddress       string
}

// Expired reports whether the session ran out of time before completing.
func (s Session) Expired(now time.Time) bool {
	return !s.Completed && now.After(s.ExpiresAt)
}

type Attempt struct {
	ID        int64
	SessionID string
	Stage     int
	Answer    string
	Correct   bool
	CreatedAt time.Time
}
