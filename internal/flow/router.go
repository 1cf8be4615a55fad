package flow

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"valentine/internal/ui"
	"valentine/internal/wire"
)

// TrollRunner runs the stage 11 sequence and returns once the visitor is let
// through.
type TrollRunner interface {
	Run(ctx context.Context, sessionID, savedPhase, challengeStatus string) error
}

type RouterOptions struct {
	API     API
	Tracker *Tracker
	Display ui.Display
	Prompt  ui.Prompter
	Troll   TrollRunner
	Timings Timings
	Logger  *log.Logger
	// RevealTitle and RevealText are shown once the session completes.
	RevealTitle string
	RevealText  string
}

type Router struct {
	api     API
	tracker *Tracker
	display ui.Display
	prompt  ui.Prompter
	troll   TrollRunner
	timings Timings
	logger  *log.Logger
	title   string
	reveal  string

	// detached tracks fire-and-forget narrative submissions.
	detached sync.WaitGroup
}

var errNoTroll = errors.New("flow: no troll runner configured")

func NewRouter(opts RouterOptions) *Router {
	r := &Router{
		api:     opts.API,
		tracker: opts.Tracker,
		display: opts.Display,
		prompt:  opts.Prompt,
		troll:   opts.Troll,
		timings: opts.Timings,
		logger:  opts.Logger,
		title:   opts.RevealTitle,
		reveal:  opts.RevealText,
	}
	if r.timings == (Timings{}) {
		r.timings = DefaultTimings()
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	if r.title == "" {
		r.title = "Happy Valentine's Day"
	}
	if r.reveal == "" {
		r.reveal = "You made it all the way to Saturn. Will you be my valentine?"
	}
	return r
}

// Run walks the visitor from the tracker's current stage to an outcome. It
// only returns an error when ctx ends, input fails or the flow is
// misconfigured; backend hiccups are retried after RetryInterval.
// Narrative submissions still in flight are cancelled and joined on return.
func (r *Router) Run(ctx context.Context) (Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		r.detached.Wait()
	}()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := r.tracker.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.logger.Debug("status refresh failed", "err", err)
			if err := sleep(ctx, r.timings.RetryInterval); err != nil {
				return "", err
			}
			continue
		}
		st, present := r.tracker.Current()
		if out, ok := Destination(st, present); ok {
			r.finish(out)
			return out, nil
		}

		stage := st.CurrentStage
		switch {
		case stage <= wire.StageConfirm:
			ok, err := r.confirm(ctx)
			if err != nil {
				return "", err
			}
			if ok {
				r.advance(ctx, st.SessionID, 1)
			}
		case stage < wire.StageTroll:
			p, err := r.api.Puzzle(ctx, st.SessionID, stage)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				r.logger.Debug("load puzzle failed", "session", st.SessionID, "stage", stage, "err", err)
				if err := sleep(ctx, r.timings.RetryInterval); err != nil {
					return "", err
				}
				continue
			}
			if err := r.runStage(ctx, st, p); err != nil {
				return "", err
			}
			r.advance(ctx, st.SessionID, min(stage+1, wire.StageTroll))
		case stage == wire.StageTroll:
			if r.troll == nil {
				return "", errNoTroll
			}
			if err := r.troll.Run(ctx, st.SessionID, st.TrollingPhase, st.ChallengeStatus); err != nil {
				return "", err
			}
			r.advance(ctx, st.SessionID, wire.StageReveal)
		default:
			r.finish(OutcomeReveal)
			return OutcomeReveal, nil
		}
	}
}

func (r *Router) confirm(ctx context.Context) (bool, error) {
	ok, err := r.prompt.Confirm(ctx, "Are you really the one this is for?")
	if err != nil {
		return false, err
	}
	if !ok {
		r.display.Show(ui.Event{Kind: ui.EventFailure, Stage: wire.StageConfirm, Text: "You fibber, aren't you ashamed?"})
		return false, nil
	}
	return true, nil
}

// advance is best-effort. A failure pauses one retry interval and the next
// refresh decides what to show.
func (r *Router) advance(ctx context.Context, sessionID string, stage int) {
	if err := r.api.Advance(ctx, sessionID, stage); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Debug("advance failed", "session", sessionID, "stage", stage, "err", err)
		_ = sleep(ctx, r.timings.RetryInterval)
		return
	}
	r.tracker.observeAdvance(stage)
}

func (r *Router) finish(out Outcome) {
	switch out {
	case OutcomeExpired:
		r.display.Show(ui.Event{Kind: ui.EventExpired, Text: "Time is up. This valentine has expired."})
	case OutcomeReveal:
		r.display.Show(ui.Event{Kind: ui.EventReveal, Title: r.title, Text: r.reveal})
	case OutcomeEntry:
		r.display.Show(ui.Event{Kind: ui.EventNotice, Text: "Session not found. Start again from the beginning."})
	}
}
