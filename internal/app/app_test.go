package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"valentine/internal/client"
	"valentine/internal/config"
	"valentine/internal/flow"
	"valentine/internal/troll"
	"valentine/internal/wire"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.CatalogPath = filepath.Join("..", "..", "puzzles", "catalog.yaml")
	cfg.JournalPath = filepath.Join(dir, "journal.jsonl")
	cfg.Client.StatePath = filepath.Join(dir, "state", "identity.json")
	cfg.CORSOrigins = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func startServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	srv, err := NewServer(context.Background(), cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestPlayWholeCatalog(t *testing.T) {
	cfg := testConfig(t)
	ts := startServer(t, cfg)
	cfg.Client.APIURL = ts.URL + "/api"

	script := strings.Join([]string{
		"y",                      // stage 0
		"not sure", "Lighthouse", // stage 1
		"pizza", "saturn", "orbit",
		"3", "2", "1", "", // stage 5, wrong first try
		"3", "1", "1,5,9", "2 3", // stage 5, right
		"yellow", "12", "back",
		"2",        // stage 9
		"1",        // stage 10
		"jupiter",  // repair code, wrong
		"Sat urn",  // repair code
		"y",        // sent the video
		"/skip",    // waiting for approval
		"y",        // open the valentine
	}, "\n") + "\n"

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	outcome, err := Play(ctx, cfg, PlayOptions{
		In:     strings.NewReader(script),
		Out:    &out,
		Theme:  "plain",
		Client: client.New(cfg.Client.APIURL, nil),
		FlowTimings: flow.Timings{
			CorrectDelay:  time.Millisecond,
			RetryInterval: 5 * time.Millisecond,
			WrongBeat:     time.Millisecond,
			RevealBeat:    time.Millisecond,
			ExpandAt:      time.Millisecond,
			CompleteAt:    2 * time.Millisecond,
		},
		TrollTimings: troll.Timings{
			ErrorCountdown: time.Hour,
			Tick:           5 * time.Millisecond,
			Loading:        10 * time.Millisecond,
			LoadingRotate:  5 * time.Millisecond,
			Poll:           time.Hour,
			ReviewCadence:  time.Millisecond,
			ReviewTail:     time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out.String())
	}
	if outcome != flow.OutcomeReveal {
		t.Fatalf("expected reveal, got %q\n%s", outcome, out.String())
	}

	text := out.String()
	for _, want := range []string{"Of course you remember!", "Robots always say that", "Wrong code!", "Happy Valentine's Day"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in output:\n%s", want, text)
		}
	}
	if _, err := os.Stat(cfg.Client.StatePath); err != nil {
		t.Fatalf("expected identity file: %v", err)
	}

	var admin bytes.Buffer
	op, err := NewOperator(ctx, cfg, cfg.AdminPassword, &admin, log.New(io.Discard))
	if err != nil {
		t.Fatalf("operator: %v", err)
	}
	if err := op.ListSessions(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	sessions := op.Monitor.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	s := sessions[0]
	if !s.Completed || s.CurrentStage != wire.StageReveal || s.TrollingPhase != wire.PhaseApproved {
		t.Fatalf("unexpected final session %+v", s)
	}
	d, err := op.Monitor.Detail(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.TotalWrong != 2 || d.TotalCorrect < 8 {
		t.Fatalf("unexpected attempt totals %d correct, %d wrong", d.TotalCorrect, d.TotalWrong)
	}
}

func TestOperatorApprovesPendingChallenge(t *testing.T) {
	cfg := testConfig(t)
	ts := startServer(t, cfg)
	cfg.Client.APIURL = ts.URL + "/api"
	ctx := context.Background()

	c := client.New(cfg.Client.APIURL, nil)
	st, err := c.StartSession(ctx, "fp-op")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.SubmitChallenge(ctx, st.SessionID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var out bytes.Buffer
	if _, err := NewOperator(ctx, cfg, "wrong", &out, log.New(io.Discard)); err == nil {
		t.Fatalf("expected login failure")
	}
	op, err := NewOperator(ctx, cfg, cfg.AdminPassword, &out, log.New(io.Discard))
	if err != nil {
		t.Fatalf("operator: %v", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- op.Watch(watchCtx, true) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := c.ChallengeStatus(ctx, st.SessionID)
		if err == nil && status == wire.ChallengeApproved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("challenge was never approved")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(io.Discard, "loud"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewLogger(io.Discard, "DEBUG"); err != nil {
		t.Fatalf("debug level: %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	srv, err := NewServer(context.Background(), cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	resp, err = http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
