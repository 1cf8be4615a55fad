package flow

import (
	"context"
	"errors"
	"testing"

	"valentine/internal/wire"
)

type flakyStatusAPI struct {
	*fakeAPI
	err error
}

func (f *flakyStatusAPI) SessionStatus(ctx context.Context, id string) (wire.SessionStatus, error) {
	if f.err != nil {
		return wire.SessionStatus{}, f.err
	}
	return f.fakeAPI.SessionStatus(ctx, id)
}

func TestTrackerKeepsLastStatusOnTransportFailure(t *testing.T) {
	api := &flakyStatusAPI{fakeAPI: resumeAt(6)}
	tr := NewTracker(api, &fakeIdentity{})
	if _, err := tr.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	api.err = errors.New("timeout")
	if err := tr.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	st, ok := tr.Current()
	if !ok || st.CurrentStage != 6 {
		t.Fatalf("expected stale status to survive, got %+v %v", st, ok)
	}
}

func TestTrackerStageNeverDecreasesAcrossRefreshes(t *testing.T) {
	api := resumeAt(2)
	tr := NewTracker(api, &fakeIdentity{})
	if _, err := tr.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	last := 0
	for _, stage := range []int{3, 3, 5, 4, 7} {
		_ = api.Advance(context.Background(), "s-1", stage)
		if err := tr.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		st, _ := tr.Current()
		if st.CurrentStage < last {
			t.Fatalf("stage went from %d to %d", last, st.CurrentStage)
		}
		last = st.CurrentStage
	}
	if last != 7 {
		t.Fatalf("expected to end at 7, got %d", last)
	}
}

func TestInitSurfacesFailure(t *testing.T) {
	tr := NewTracker(failingStart{}, &fakeIdentity{})
	if _, err := tr.Init(context.Background()); err == nil {
		t.Fatalf("expected init error")
	}
	if _, ok := tr.Current(); ok {
		t.Fatalf("no session expected after failed init")
	}
}

type failingStart struct{ *fakeAPI }

func (failingStart) StartSession(context.Context, string) (wire.SessionStatus, error) {
	return wire.SessionStatus{}, errors.New("backend down")
}

func TestDestinationPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		st      wire.SessionStatus
		present bool
		want    Outcome
		ok      bool
	}{
		{"absent", wire.SessionStatus{Expired: true}, false, OutcomeEntry, true},
		{"expired beats stage", wire.SessionStatus{CurrentStage: 5, Expired: true}, true, OutcomeExpired, true},
		{"completed", wire.SessionStatus{CurrentStage: 12, Completed: true}, true, OutcomeReveal, true},
		{"in progress", wire.SessionStatus{CurrentStage: 5}, true, "", false},
	}
	for _, tc := range cases {
		got, ok := Destination(tc.st, tc.present)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s: got %q %v, want %q %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
