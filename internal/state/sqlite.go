package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// Fixed width so text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	maxStage   = 12
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL UNIQUE,
			current_stage INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			challenge_status TEXT NOT NULL DEFAULT 'none',
			trolling_phase TEXT NOT NULL DEFAULT 'error',
			ip_address TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			stage INTEGER NOT NULL,
			answer TEXT NOT NULL,
			correct INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);`,
		`CREATE INDEX IF NOT EXISTS attempt_logs_session ON attempt_logs(session_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetOrCreateSession inserts s unless a session with the same fingerprint
// exists, and returns the stored row. The bool reports whether it was created.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sess Session) (Session, bool, error) {
	fp := strings.TrimSpace(sess.Fingerprint)
	if fp == "" {
		return Session{}, false, errors.New("fingerprint is required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, fingerprint, current_stage, started_at, expires_at, challenge_status, trolling_phase, ip_address)
		VALUES(?, ?, 0, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		sess.ID,
		fp,
		sess.StartedAt.UTC().Format(timeLayout),
		sess.ExpiresAt.UTC().Format(timeLayout),
		ChallengeNone,
		DefaultTrollingPhase,
		sess.IPAddress,
	)
	if err != nil {
		return Session{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, false, err
	}
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE fingerprint = ?`, fp)
	out, err := scanSession(row)
	if err != nil {
		return Session{}, false, err
	}
	return out, n > 0, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id)
	out, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) SetIPAddress(ctx context.Context, id, ip string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ip_address = ? WHERE id = ? AND ip_address = ''`, ip, id)
	return err
}

// AdvanceStage raises current_stage to stage and never lowers it. Reaching
// completeAt marks the session completed.
func (s *SQLiteStore) AdvanceStage(ctx context.Context, id string, stage, completeAt int) (Session, error) {
	stage = min(max(stage, 0), maxStage)
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			current_stage = MAX(current_stage, ?),
			completed = CASE WHEN MAX(current_stage, ?) >= ? THEN 1 ELSE completed END
		WHERE id = ?
	`, stage, stage, completeAt, id)
	if err != nil {
		return Session{}, err
	}
	if err := requireRow(res); err != nil {
		return Session{}, err
	}
	out, err := s.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if out == nil {
		return Session{}, ErrNotFound
	}
	return *out, nil
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a Attempt) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempt_logs(session_id, stage, answer, correct, created_at) VALUES(?,?,?,?,?)`,
		a.SessionID,
		a.Stage,
		a.Answer,
		ifThen(a.Correct, 1, 0),
		created.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, sessionID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, stage, answer, correct, created_at
		FROM attempt_logs
		WHERE session_id = ?
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		var (
			a          Attempt
			correct    int
			createdRaw string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Stage, &a.Answer, &correct, &createdRaw); err != nil {
			return nil, err
		}
		a.Correct = correct == 1
		if t, err := time.Parse(timeLayout, createdRaw); err == nil {
			a.CreatedAt = t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+` ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) SetTrollingPhase(ctx context.Context, id, phase string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET trolling_phase = ? WHERE id = ?`, phase, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SubmitChallenge moves none to pending and returns the resulting status.
func (s *SQLiteStore) SubmitChallenge(ctx context.Context, id string) (string, error) {
	return s.moveChallenge(ctx, id, ChallengeNone, ChallengePending)
}

// ApproveChallenge moves pending to approved and returns the resulting status.
func (s *SQLiteStore) ApproveChallenge(ctx context.Context, id string) (string, error) {
	return s.moveChallenge(ctx, id, ChallengePending, ChallengeApproved)
}

func (s *SQLiteStore) moveChallenge(ctx context.Context, id, from, to string) (string, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET challenge_status = ? WHERE id = ? AND challenge_status = ?`,
		to, id, from,
	); err != nil {
		return "", err
	}
	var status string
	row := s.db.QueryRowContext(ctx, `SELECT challenge_status FROM sessions WHERE id = ?`, id)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sessionSelect = `
	SELECT id, fingerprint, current_stage, started_at, expires_at, completed, challenge_status, trolling_phase, ip_address
	FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		out        Session
		startedRaw string
		expiresRaw string
		completed  int
	)
	if err := row.Scan(&out.ID, &out.Fingerprint, &out.CurrentStage, &startedRaw, &expiresRaw, &completed, &out.ChallengeStatus, &out.TrollingPhase, &out.IPAddress); err != nil {
		return Session{}, err
	}
	out.Completed = completed == 1
	if t, err := time.Parse(timeLayout, startedRaw); err == nil {
		out.StartedAt = t
	}
	if t, err := time.Parse(timeLayout, expiresRaw); err == nil {
		out.ExpiresAt = t
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}
