package troll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"valentine/internal/ui"
	"valentine/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu        sync.Mutex
	saved     []string
	submits   int
	polls     int
	approveAt int
	saveErr   error
}

func (b *fakeBackend) SaveTrollingPhase(_ context.Context, _ string, phase string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, phase)
	return b.saveErr
}

func (b *fakeBackend) SubmitChallenge(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	return wire.ChallengePending, errors.New("offline")
}

func (b *fakeBackend) ChallengeStatus(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.approveAt > 0 && b.polls >= b.approveAt {
		return wire.ChallengeApproved, nil
	}
	return wire.ChallengePending, nil
}

func (b *fakeBackend) savedPhases() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.saved...)
}

type fakePrompt struct {
	lines chan string
}

func newFakePrompt(lines ...string) *fakePrompt {
	p := &fakePrompt{lines: make(chan string, 16)}
	for _, l := range lines {
		p.lines <- l
	}
	return p
}

func (p *fakePrompt) Ask(ctx context.Context, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-p.lines:
		return l, nil
	}
}

func (p *fakePrompt) Confirm(ctx context.Context, _ string) (bool, error) {
	return true, ctx.Err()
}

func (p *fakePrompt) Choose(context.Context, string, []string) (int, error) { return 0, nil }

func (p *fakePrompt) ChooseMany(context.Context, string, []string) ([]int, error) { return nil, nil }

type recordingDisplay struct {
	mu     sync.Mutex
	events []ui.Event
}

func (d *recordingDisplay) Show(ev ui.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDisplay) count(kind ui.EventKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, ev := range d.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (d *recordingDisplay) waitFor(t *testing.T, kind ui.EventKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.count(kind) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
		time.Sleep(time.Millisecond)
	}
}

func fastTimings() Timings {
	return Timings{
		ErrorCountdown: time.Hour,
		Tick:           time.Millisecond,
		Loading:        5 * time.Millisecond,
		LoadingRotate:  2 * time.Millisecond,
		Poll:           2 * time.Millisecond,
		ReviewCadence:  time.Millisecond,
		ReviewTail:     time.Millisecond,
	}
}

func TestResolveInitialPhase(t *testing.T) {
	cases := []struct {
		saved, challenge string
		want             Phase
	}{
		{wire.PhaseApproved, wire.ChallengeApproved, PhaseApproved},
		{wire.PhaseWaitingReal, wire.ChallengeApproved, PhaseAdminReview},
		{"", wire.ChallengeApproved, PhaseAdminReview},
		{wire.PhaseError, wire.ChallengePending, PhaseWaitingReal},
		{wire.PhaseLoading, wire.ChallengeNone, PhaseLoading},
		{wire.PhaseChallenge, "", PhaseChallenge},
		{"bogus", wire.ChallengeNone, PhaseError},
		{"", "", PhaseError},
	}
	for _, tc := range cases {
		if got := ResolveInitialPhase(tc.saved, tc.challenge); got != tc.want {
			t.Fatalf("ResolveInitialPhase(%q, %q) = %q, want %q", tc.saved, tc.challenge, got, tc.want)
		}
	}
}

func TestMatchRepairCode(t *testing.T) {
	if !MatchRepairCode("  SAT urn\t", "saturn") {
		t.Fatalf("expected whitespace and case to be ignored")
	}
	if !MatchRepairCode("saturn", "Sat Urn") {
		t.Fatalf("expected secret to be normalized too")
	}
	if MatchRepairCode("jupiter", "saturn") {
		t.Fatalf("expected mismatch")
	}
}

func TestRunWalksEveryPhase(t *testing.T) {
	backend := &fakeBackend{approveAt: 2}
	display := &recordingDisplay{}
	c := New(Options{
		Backend:    backend,
		Display:    display,
		Prompt:     newFakePrompt("wrong", " Sat Urn "),
		RepairCode: "saturn",
		Timings:    fastTimings(),
	})

	if err := c.Run(context.Background(), "s-1", wire.PhaseError, wire.ChallengeNone); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{wire.PhaseLoading, wire.PhaseChallenge, wire.PhaseWaitingReal, wire.PhaseAdminReview, wire.PhaseApproved}
	got := backend.savedPhases()
	if len(got) != len(want) {
		t.Fatalf("saved phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("saved phases = %v, want %v", got, want)
		}
	}
	if backend.submits != 1 {
		t.Fatalf("expected one challenge submit, got %d", backend.submits)
	}
	if display.count(ui.EventFailure) != 1 {
		t.Fatalf("expected one rejected repair code")
	}
	if c.Phase() != PhaseApproved {
		t.Fatalf("expected to end approved, got %q", c.Phase())
	}
}

func TestPersistFailureDoesNotStop(t *testing.T) {
	backend := &fakeBackend{saveErr: errors.New("down")}
	c := New(Options{
		Backend: backend,
		Display: &recordingDisplay{},
		Prompt:  newFakePrompt(),
		Timings: fastTimings(),
	})
	if err := c.Run(context.Background(), "s-1", wire.PhaseAdminReview, wire.ChallengeApproved); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := backend.savedPhases(); len(got) != 1 || got[0] != wire.PhaseApproved {
		t.Fatalf("unexpected saved phases %v", got)
	}
}

func TestErrorCountdownExpiryChangesNothing(t *testing.T) {
	timings := fastTimings()
	timings.ErrorCountdown = 3 * time.Millisecond
	backend := &fakeBackend{}
	display := &recordingDisplay{}
	prompt := newFakePrompt()
	c := New(Options{Backend: backend, Display: display, Prompt: prompt, RepairCode: "saturn", Timings: timings})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "s-1", "", wire.ChallengeNone) }()

	display.waitFor(t, ui.EventExpired)
	time.Sleep(10 * time.Millisecond)
	if display.count(ui.EventExpired) != 1 {
		t.Fatalf("expected a single expiry event")
	}
	if c.Phase() != PhaseError {
		t.Fatalf("expiry must not leave the error phase, got %q", c.Phase())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got := backend.savedPhases(); len(got) != 1 || got[0] != wire.PhaseError {
		t.Fatalf("expected only the resolved phase to be saved, got %v", got)
	}
}

func TestWaitingRealSkip(t *testing.T) {
	timings := fastTimings()
	timings.Poll = time.Hour
	backend := &fakeBackend{}
	c := New(Options{
		Backend: backend,
		Display: &recordingDisplay{},
		Prompt:  newFakePrompt("hello?", DefaultSkipWord),
		Timings: timings,
	})
	if err := c.Run(context.Background(), "s-1", wire.PhaseWaitingReal, wire.ChallengePending); err != nil {
		t.Fatalf("run: %v", err)
	}
	if backend.polls != 0 {
		t.Fatalf("expected no polls, got %d", backend.polls)
	}
}

type fakeWatcher struct {
	updates []string
}

func (w fakeWatcher) WatchChallenge(ctx context.Context, _ string) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, u := range w.updates {
			select {
			case ch <- u:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func TestWaitingRealApprovedByPush(t *testing.T) {
	timings := fastTimings()
	timings.Poll = time.Hour
	display := &recordingDisplay{}
	c := New(Options{
		Backend: &fakeBackend{},
		Watcher: fakeWatcher{updates: []string{wire.ChallengePending, wire.ChallengeApproved}},
		Display: display,
		Prompt:  newFakePrompt(),
		Timings: timings,
	})
	if err := c.Run(context.Background(), "s-1", wire.PhaseWaitingReal, wire.ChallengePending); err != nil {
		t.Fatalf("run: %v", err)
	}
	if display.count(ui.EventSuccess) != 1 {
		t.Fatalf("expected the approved screen")
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	if err := New(Options{}).Run(context.Background(), "s", "", ""); err == nil {
		t.Fatalf("expected configuration error")
	}
}
