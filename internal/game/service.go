package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"valentine/internal/grading"
	"valentine/internal/media"
	"valentine/internal/puzzles"
	"valentine/internal/state"
	"valentine/internal/telemetry"
	"valentine/internal/wire"
)

// Notifier is told about every challenge status a session ends up in.
type Notifier interface {
	ChallengeChanged(sessionID, status string)
}

type Options struct {
	Store           state.Store
	Catalog         *puzzles.Catalog
	Checker         grading.AnswerChecker
	Media           media.Signer
	SessionDuration time.Duration
	Journal         *telemetry.Journal
	Logger          *log.Logger
	Metrics         *Metrics
	Notifier        Notifier
	Now             func() time.Time
	NewID           func() string
}

type Service struct {
	store    state.Store
	catalog  *puzzles.Catalog
	checker  grading.AnswerChecker
	media    media.Signer
	duration time.Duration
	journal  *telemetry.Journal
	logger   *log.Logger
	metrics  *Metrics
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		catalog:  opts.Catalog,
		checker:  opts.Checker,
		media:    opts.Media,
		duration: opts.SessionDuration,
		journal:  opts.Journal,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.checker == nil {
		s.checker = grading.NewChecker()
	}
	if s.media == nil {
		s.media = media.StaticSigner{}
	}
	if s.duration <= 0 {
		s.duration = 4 * time.Hour
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// StartSession creates a session for fingerprint or restores the one it
// already owns.
func (s *Service) StartSession(ctx context.Context, fingerprint, ip string) (wire.SessionStatus, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return wire.SessionStatus{}, ErrInvalidFingerprint
	}
	now := s.now().UTC()
	sess, created, err := s.store.GetOrCreateSession(ctx, state.Session{
		ID:          s.newID(),
		Fingerprint: fingerprint,
		StartedAt:   now,
		ExpiresAt:   now.Add(s.duration),
		IPAddress:   ip,
	})
	if err != nil {
		return wire.SessionStatus{}, fmt.Errorf("start session: %w", err)
	}
	if !created && sess.IPAddress == "" && ip != "" {
		if err := s.store.SetIPAddress(ctx, sess.ID, ip); err != nil {
			s.logger.Warn("backfill ip address", "session", sess.ID, "err", err)
		}
	}
	s.metrics.sessionStarted(created)
	s.journal.Record("session.start", sess.ID, map[string]any{"created": created, "stage": sess.CurrentStage})
	if created {
		s.logger.Info("session created", "session", sess.ID)
	} else {
		s.logger.Debug("session restored", "session", sess.ID, "stage", sess.CurrentStage)
	}
	return s.statusOf(sess), nil
}

func (s *Service) Status(ctx context.Context, sessionID string) (wire.SessionStatus, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return wire.SessionStatus{}, err
	}
	return s.statusOf(*sess), nil
}

func (s *Service) Puzzle(ctx context.Context, sessionID string, stage int) (wire.Puzzle, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return wire.Puzzle{}, err
	}
	p, ok := s.catalog.Get(stage)
	if !ok {
		return wire.Puzzle{}, ErrPuzzleNotFound
	}
	out := wire.Puzzle{
		Stage:       stage,
		Type:        string(p.Type),
		Title:       p.Title,
		Description: p.Description,
	}
	switch p.Type {
	case puzzles.KindColorTrick, puzzles.KindChoosePerson:
		out.Options = p.Choices
	case puzzles.KindAudio:
		u, err := s.sign(ctx, p.PhotoKeys[0])
		if err != nil {
			return wire.Puzzle{}, err
		}
		out.AudioURL = u
	case puzzles.KindComplexCaptcha:
		data, err := s.complexData(ctx, p)
		if err != nil {
			return wire.Puzzle{}, err
		}
		out.ComplexData = &data
	default:
		urls, err := s.signAll(ctx, p.PhotoKeys)
		if err != nil {
			return wire.Puzzle{}, err
		}
		out.PhotoURLs = urls
		if p.Type == puzzles.KindCaptcha {
			for _, q := range p.Questions {
				out.Options = append(out.Options, q.Text)
			}
		}
	}
	return out, nil
}

// Captcha returns the question payload for captcha and complex captcha stages.
func (s *Service) Captcha(ctx context.Context, stage int) (wire.CaptchaData, error) {
	p, ok := s.catalog.Get(stage)
	if !ok {
		return wire.CaptchaData{}, ErrPuzzleNotFound
	}
	switch p.Type {
	case puzzles.KindCaptcha:
		out := wire.CaptchaData{}
		for _, q := range p.Questions {
			out.Questions = append(out.Questions, wire.CaptchaQuestion{Text: q.Text, Options: q.Options})
		}
		return out, nil
	case puzzles.KindComplexCaptcha:
		data, err := s.complexData(ctx, p)
		if err != nil {
			return wire.CaptchaData{}, err
		}
		return wire.CaptchaData{PartA: &data.PartA, PartB: &data.PartB}, nil
	default:
		return wire.CaptchaData{}, ErrPuzzleNotFound
	}
}

func (s *Service) MediaURL(ctx context.Context, key string) (string, error) {
	u, err := s.sign(ctx, key)
	if errors.Is(err, media.ErrInvalidKey) {
		return "", ErrMediaNotFound
	}
	return u, err
}

// Check grades one answer, logs the attempt and unlocks the next stage on
// success. Unknown sessions and stages are reported in the result, not as errors.
func (s *Service) Check(ctx context.Context, req wire.CheckRequest) (wire.CheckResult, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return wire.CheckResult{}, err
	}
	if sess == nil {
		return wire.CheckResult{Message: "Session not found"}, nil
	}
	p, ok := s.catalog.Get(req.Stage)
	if !ok {
		return wire.CheckResult{Message: "Stage not found"}, nil
	}
	if req.Stage > sess.CurrentStage {
		return wire.CheckResult{Message: "Stage is locked"}, nil
	}

	verdict := s.checker.Check(p, req.Answer)
	if err := s.store.RecordAttempt(ctx, state.Attempt{
		SessionID: sess.ID,
		Stage:     req.Stage,
		Answer:    req.Answer,
		Correct:   verdict.Correct,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return wire.CheckResult{}, fmt.Errorf("record attempt: %w", err)
	}
	s.metrics.answerChecked(req.Stage, verdict.Correct)
	s.journal.Record("answer.check", sess.ID, map[string]any{"stage": req.Stage, "correct": verdict.Correct})

	out := wire.CheckResult{Correct: verdict.Correct, Message: verdict.Message}
	if verdict.Correct {
		next := req.Stage + 1
		if _, err := s.store.AdvanceStage(ctx, sess.ID, next, wire.StageReveal); err != nil {
			return wire.CheckResult{}, fmt.Errorf("unlock stage %d: %w", next, err)
		}
		out.NextStage = &next
		s.logger.Debug("stage solved", "session", sess.ID, "stage", req.Stage)
	}
	return out, nil
}

// Advance moves the session forward to stage. Lower stages are ignored.
func (s *Service) Advance(ctx context.Context, sessionID string, stage int) error {
	if stage < wire.StageConfirm || stage > wire.StageReveal {
		return ErrInvalidStage
	}
	sess, err := s.store.AdvanceStage(ctx, sessionID, stage, wire.StageReveal)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.metrics.stageAdvanced(stage)
	s.journal.Record("stage.advance", sessionID, map[string]any{"requested": stage, "stage": sess.CurrentStage, "completed": sess.Completed})
	if sess.Completed {
		s.logger.Info("session completed", "session", sessionID)
	}
	return nil
}

func (s *Service) SaveTrollingPhase(ctx context.Context, sessionID, phase string) error {
	if !wire.ValidPhase(phase) {
		return ErrInvalidPhase
	}
	if err := s.store.SetTrollingPhase(ctx, sessionID, phase); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.journal.Record("trolling.phase", sessionID, map[string]any{"phase": phase})
	return nil
}

func (s *Service) SubmitChallenge(ctx context.Context, sessionID string) (string, error) {
	status, err := s.store.SubmitChallenge(ctx, sessionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	s.metrics.challengeMoved(status)
	s.journal.Record("challenge.submit", sessionID, map[string]any{"status": status})
	s.logger.Info("challenge submitted", "session", sessionID, "status", status)
	s.notify(sessionID, status)
	return status, nil
}

func (s *Service) ChallengeStatus(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return sess.ChallengeStatus, nil
}

func (s *Service) Approve(ctx context.Context, sessionID string) (string, error) {
	status, err := s.store.ApproveChallenge(ctx, sessionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	if status == state.ChallengeNone {
		return status, ErrChallengeNotPending
	}
	s.metrics.challengeMoved(status)
	s.journal.Record("challenge.approve", sessionID, map[string]any{"status": status})
	s.logger.Info("challenge approved", "session", sessionID)
	s.notify(sessionID, status)
	return status, nil
}

func (s *Service) AdminSessions(ctx context.Context) ([]wire.AdminSession, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]wire.AdminSession, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.adminView(sess))
	}
	return out, nil
}

func (s *Service) AdminSessionDetail(ctx context.Context, sessionID string) (wire.AdminSessionDetail, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return wire.AdminSessionDetail{}, err
	}
	attempts, err := s.store.ListAttempts(ctx, sessionID)
	if err != nil {
		return wire.AdminSessionDetail{}, err
	}
	out := wire.AdminSessionDetail{Session: s.adminView(*sess), Attempts: make([]wire.AdminAttempt, 0, len(attempts))}
	for _, a := range attempts {
		out.Attempts = append(out.Attempts, wire.AdminAttempt{
			ID:        a.ID,
			Stage:     a.Stage,
			Answer:    a.Answer,
			Correct:   a.Correct,
			CreatedAt: a.CreatedAt,
		})
		if a.Correct {
			out.TotalCorrect++
		} else {
			out.TotalWrong++
		}
	}
	return out, nil
}

func (s *Service) session(ctx context.Context, id string) (*state.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) statusOf(sess state.Session) wire.SessionStatus {
	return wire.SessionStatus{
		SessionID:       sess.ID,
		CurrentStage:    sess.CurrentStage,
		StartedAt:       sess.StartedAt,
		ExpiresAt:       sess.ExpiresAt,
		Completed:       sess.Completed,
		Expired:         sess.Expired(s.now()),
		ChallengeStatus: sess.ChallengeStatus,
		TrollingPhase:   sess.TrollingPhase,
	}
}

func (s *Service) adminView(sess state.Session) wire.AdminSession {
	return wire.AdminSession{
		SessionID:       sess.ID,
		Fingerprint:     sess.Fingerprint,
		CurrentStage:    sess.CurrentStage,
		StartedAt:       sess.StartedAt,
		ExpiresAt:       sess.ExpiresAt,
		Completed:       sess.Completed,
		Expired:         sess.Expired(s.now()),
		ChallengeStatus: sess.ChallengeStatus,
		TrollingPhase:   sess.TrollingPhase,
		IPAddress:       sess.IPAddress,
	}
}

func (s *Service) complexData(ctx context.Context, p puzzles.Puzzle) (wire.ComplexData, error) {
	var out wire.ComplexData
	for _, q := range p.PartA.Questions {
		wq := wire.ComplexQuestion{Text: q.Text}
		for _, opt := range q.Options {
			u, err := s.signOptional(ctx, opt.PhotoKey)
			if err != nil {
				return wire.ComplexData{}, err
			}
			wq.Options = append(wq.Options, wire.ComplexOption{Label: opt.Label, PhotoURL: u})
		}
		out.PartA.Questions = append(out.PartA.Questions, wq)
	}
	for _, r := range p.PartB.Rounds {
		urls, err := s.signAll(ctx, r.GridKeys)
		if err != nil {
			return wire.ComplexData{}, err
		}
		out.PartB.Rounds = append(out.PartB.Rounds, wire.ComplexRound{Instruction: r.Instruction, GridURLs: urls})
	}
	return out, nil
}

func (s *Service) sign(ctx context.Context, key string) (string, error) {
	return s.media.URL(ctx, key)
}

func (s *Service) signOptional(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	return s.sign(ctx, key)
}

func (s *Service) signAll(ctx context.Context, keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		u, err := s.sign(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("media %s: %w", k, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Service) notify(sessionID, status string) {
	if s.notifier != nil {
		s.notifier.ChallengeChanged(sessionID, status)
	}
}
