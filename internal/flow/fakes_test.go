package flow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"valentine/internal/client"
	"valentine/internal/ui"
	"valentine/internal/wire"
)

type checkCall struct {
	stage  int
	answer string
	at     time.Time
}

type advanceCall struct {
	stage int
	at    time.Time
}

// fakeAPI mirrors the backend rules: a correct check moves the stage forward,
// advance never moves it back, stage 12 completes the session.
type fakeAPI struct {
	mu          sync.Mutex
	status      wire.SessionStatus
	exists      bool
	puzzles     map[int]wire.Puzzle
	captchas    map[int]wire.CaptchaData
	answers     map[int]string
	checks      []checkCall
	advances    []advanceCall
	fetched     []int
	advanceErrs int
	checkErr    error
	// checkHold, when set, stalls every check until it is closed or the
	// caller's context ends.
	checkHold chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		puzzles:  map[int]wire.Puzzle{},
		captchas: map[int]wire.CaptchaData{},
		answers:  map[int]string{},
	}
}

func (f *fakeAPI) StartSession(_ context.Context, fingerprint string) (wire.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		f.exists = true
		f.status = wire.SessionStatus{SessionID: "s-" + fingerprint, ChallengeStatus: wire.ChallengeNone, TrollingPhase: wire.PhaseError}
	}
	return f.status, nil
}

func (f *fakeAPI) SessionStatus(_ context.Context, id string) (wire.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists || id != f.status.SessionID {
		return wire.SessionStatus{}, &client.APIError{Status: http.StatusNotFound, Detail: "Session not found"}
	}
	return f.status, nil
}

func (f *fakeAPI) Puzzle(_ context.Context, _ string, stage int) (wire.Puzzle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, stage)
	p, ok := f.puzzles[stage]
	if !ok {
		return wire.Puzzle{}, &client.APIError{Status: http.StatusNotFound}
	}
	return p, nil
}

func (f *fakeAPI) Captcha(_ context.Context, stage int) (wire.CaptchaData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captchas[stage], nil
}

func (f *fakeAPI) CheckAnswer(ctx context.Context, _ string, stage int, answer string) (wire.CheckResult, error) {
	f.mu.Lock()
	f.checks = append(f.checks, checkCall{stage: stage, answer: answer, at: time.Now()})
	hold := f.checkHold
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return wire.CheckResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return wire.CheckResult{}, f.checkErr
	}
	want := f.answers[stage]
	if want != "*" && want != answer {
		return wire.CheckResult{Correct: false, Message: "Wrong!"}, nil
	}
	next := stage + 1
	if next > f.status.CurrentStage {
		f.status.CurrentStage = next
	}
	return wire.CheckResult{Correct: true, Message: "Correct!", NextStage: &next}, nil
}

func (f *fakeAPI) Advance(_ context.Context, _ string, stage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances = append(f.advances, advanceCall{stage: stage, at: time.Now()})
	if f.advanceErrs > 0 {
		f.advanceErrs--
		return errors.New("connection reset")
	}
	if stage > f.status.CurrentStage {
		f.status.CurrentStage = stage
	}
	if f.status.CurrentStage >= wire.StageReveal {
		f.status.Completed = true
	}
	return nil
}

func (f *fakeAPI) snapshot() (checks []checkCall, advances []advanceCall, fetched []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]checkCall(nil), f.checks...), append([]advanceCall(nil), f.advances...), append([]int(nil), f.fetched...)
}

type fakeIdentity struct {
	mu        sync.Mutex
	fp        string
	generated int
	sessionID string
}

func (i *fakeIdentity) Fingerprint() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fp == "" {
		i.generated++
		i.fp = "fp1"
	}
	return i.fp, nil
}

func (i *fakeIdentity) SetSessionID(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sessionID = id
	return nil
}

// scriptedPrompt answers from fixed queues and blocks once a queue runs dry.
type scriptedPrompt struct {
	mu       sync.Mutex
	asks     []string
	confirms []bool
	chooses  []int
	many     [][]int
}

func (p *scriptedPrompt) Ask(ctx context.Context, _ string) (string, error) {
	p.mu.Lock()
	if len(p.asks) > 0 {
		v := p.asks[0]
		p.asks = p.asks[1:]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (p *scriptedPrompt) Confirm(ctx context.Context, _ string) (bool, error) {
	p.mu.Lock()
	if len(p.confirms) > 0 {
		v := p.confirms[0]
		p.confirms = p.confirms[1:]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	<-ctx.Done()
	return false, ctx.Err()
}

func (p *scriptedPrompt) Choose(ctx context.Context, _ string, _ []string) (int, error) {
	p.mu.Lock()
	if len(p.chooses) > 0 {
		v := p.chooses[0]
		p.chooses = p.chooses[1:]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	<-ctx.Done()
	return 0, ctx.Err()
}

func (p *scriptedPrompt) ChooseMany(ctx context.Context, _ string, _ []string) ([]int, error) {
	p.mu.Lock()
	if len(p.many) > 0 {
		v := p.many[0]
		p.many = p.many[1:]
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingDisplay struct {
	mu     sync.Mutex
	events []ui.Event
}

func (d *recordingDisplay) Show(ev ui.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDisplay) texts(kind ui.EventKind) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, ev := range d.events {
		if ev.Kind == kind {
			out = append(out, ev.Text)
		}
	}
	return out
}

type fakeTroll struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTroll) Run(_ context.Context, sessionID, savedPhase, challengeStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessionID+"|"+savedPhase+"|"+challengeStatus)
	return nil
}

func testTimings() Timings {
	return Timings{
		CorrectDelay:  20 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
		WrongBeat:     time.Millisecond,
		RevealBeat:    time.Millisecond,
		ExpandAt:      time.Millisecond,
		CompleteAt:    2 * time.Millisecond,
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
