package troll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"valentine/internal/ui"
	"valentine/internal/wire"
)

// DefaultSkipWord, typed while waiting for approval, jumps straight to the
// review phase.
const DefaultSkipWord = "/skip"

type Backend interface {
	SaveTrollingPhase(ctx context.Context, sessionID, phase string) error
	SubmitChallenge(ctx context.Context, sessionID string) (string, error)
	ChallengeStatus(ctx context.Context, sessionID string) (string, error)
}

// Watcher streams challenge status pushes. The channel must close once ctx
// is done.
type Watcher interface {
	WatchChallenge(ctx context.Context, sessionID string) (<-chan string, error)
}

type Options struct {
	Backend        Backend
	Watcher        Watcher
	Display        ui.Display
	Prompt         ui.Prompter
	RepairCode     string
	SupportContact string
	SkipWord       string
	Timings        Timings
	Logger         *log.Logger
}

type Controller struct {
	backend  Backend
	watcher  Watcher
	display  ui.Display
	prompt   ui.Prompter
	secret   string
	contact  string
	skipWord string
	timings  Timings
	logger   *log.Logger

	mu    sync.Mutex
	phase Phase
}

func New(opts Options) *Controller {
	c := &Controller{
		backend:  opts.Backend,
		watcher:  opts.Watcher,
		display:  opts.Display,
		prompt:   opts.Prompt,
		secret:   opts.RepairCode,
		contact:  opts.SupportContact,
		skipWord: opts.SkipWord,
		timings:  opts.Timings.withDefaults(),
		logger:   opts.Logger,
	}
	if c.skipWord == "" {
		c.skipWord = DefaultSkipWord
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	return c
}

// Phase reports the phase currently running.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Run drives the sequence from the resolved starting phase and returns once
// the visitor continues past the approved phase.
func (c *Controller) Run(ctx context.Context, sessionID, savedPhase, challengeStatus string) error {
	if c.backend == nil || c.display == nil || c.prompt == nil {
		return errNotConfigured
	}
	phase := ResolveInitialPhase(savedPhase, challengeStatus)
	c.enter(ctx, sessionID, phase, string(phase) != savedPhase)
	for {
		var (
			next Phase
			err  error
		)
		switch phase {
		case PhaseError:
			next, err = c.runError(ctx)
		case PhaseLoading:
			next, err = c.runLoading(ctx)
		case PhaseChallenge:
			next, err = c.runChallenge(ctx, sessionID)
		case PhaseWaitingReal:
			next, err = c.runWaitingReal(ctx, sessionID)
		case PhaseAdminReview:
			next, err = c.runAdminReview(ctx)
		case PhaseApproved:
			return c.runApproved(ctx)
		default:
			return fmt.Errorf("unknown troll phase %q", phase)
		}
		if err != nil {
			return err
		}
		phase = next
		c.enter(ctx, sessionID, phase, true)
	}
}

func (c *Controller) enter(ctx context.Context, sessionID string, phase Phase, persist bool) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
	c.logger.Debug("troll phase", "session", sessionID, "phase", phase)
	if !persist {
		return
	}
	if err := c.backend.SaveTrollingPhase(ctx, sessionID, string(phase)); err != nil {
		c.logger.Debug("save trolling phase failed", "session", sessionID, "phase", phase, "err", err)
	}
}

func (c *Controller) runError(ctx context.Context) (Phase, error) {
	c.display.Show(ui.Event{
		Kind:  ui.EventPhase,
		Phase: string(PhaseError),
		Title: "CRITICAL ERROR",
		Text: "Error 0xDEAD: the site broke because the visitor's IQ is too high.\n" +
			"Enter the repair code, or call support: " + c.contact,
	})
	remaining := c.timings.ErrorCountdown
	c.showCountdown("Self-destruct in", remaining)

	ticker := time.NewTicker(c.timings.Tick)
	defer ticker.Stop()
	tick := ticker.C

	code := c.listen(ctx, "Repair code")
	defer code.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-tick:
			remaining -= c.timings.Tick
			if remaining > 0 {
				c.showCountdown("Self-destruct in", remaining)
				continue
			}
			ticker.Stop()
			tick = nil
			c.display.Show(ui.Event{Kind: ui.EventExpired, Phase: string(PhaseError), Text: "Time is up. (Nothing happened...)"})
		case in := <-code.C:
			if in.err != nil {
				return "", in.err
			}
			if in.text != "" && MatchRepairCode(in.text, c.secret) {
				c.display.Show(ui.Event{Kind: ui.EventSuccess, Text: "Repair code accepted."})
				return PhaseLoading, nil
			}
			if in.text != "" {
				c.display.Show(ui.Event{Kind: ui.EventFailure, Text: "Wrong code! Try again."})
			}
			code.Next()
		}
	}
}

func (c *Controller) runLoading(ctx context.Context) (Phase, error) {
	c.display.Show(ui.Event{Kind: ui.EventPhase, Phase: string(PhaseLoading), Title: "Repairing the site"})
	remaining := c.timings.Loading
	msg := 0
	c.display.Show(ui.Event{Kind: ui.EventMessage, Text: loadingMessages[msg]})
	c.showCountdown("Estimated time", remaining)

	ticker := time.NewTicker(c.timings.Tick)
	defer ticker.Stop()
	rotate := time.NewTicker(c.timings.LoadingRotate)
	defer rotate.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-rotate.C:
			msg = (msg + 1) % len(loadingMessages)
			c.display.Show(ui.Event{Kind: ui.EventMessage, Text: loadingMessages[msg]})
		case <-ticker.C:
			remaining -= c.timings.Tick
			if remaining <= 0 {
				return PhaseChallenge, nil
			}
			c.showCountdown("Estimated time", remaining)
		}
	}
}

func (c *Controller) runChallenge(ctx context.Context, sessionID string) (Phase, error) {
	c.display.Show(ui.Event{
		Kind:  ui.EventPhase,
		Phase: string(PhaseChallenge),
		Title: "Final stage",
		Text: "Physical verification is required to receive the valentine:\n" +
			"  1. Do ten push-ups\n" +
			"  2. Record it on camera\n" +
			"  3. Send the video to " + c.contact + "\n" +
			"  4. Wait for approval\n" +
			"Rules are rules.",
	})
	for {
		ok, err := c.prompt.Confirm(ctx, "Sent the video?")
		if err != nil {
			return "", err
		}
		if ok {
			break
		}
		c.display.Show(ui.Event{Kind: ui.EventNotice, Text: "No video, no valentine."})
	}
	if _, err := c.backend.SubmitChallenge(ctx, sessionID); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Debug("submit challenge failed", "session", sessionID, "err", err)
	}
	return PhaseWaitingReal, nil
}

func (c *Controller) runWaitingReal(ctx context.Context, sessionID string) (Phase, error) {
	c.display.Show(ui.Event{Kind: ui.EventPhase, Phase: string(PhaseWaitingReal), Title: "Waiting for the admin to review your video..."})

	wctx, cancel := context.WithCancel(ctx)
	var push <-chan string
	if c.watcher != nil {
		ch, err := c.watcher.WatchChallenge(wctx, sessionID)
		if err != nil {
			c.logger.Debug("challenge watch unavailable", "session", sessionID, "err", err)
		} else {
			push = ch
		}
	}
	defer func() {
		cancel()
		if push != nil {
			for range push {
			}
		}
	}()

	skip := c.listen(ctx, "")
	defer skip.Stop()
	skipC := skip.C

	poll := time.NewTicker(c.timings.Poll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-poll.C:
			status, err := c.backend.ChallengeStatus(ctx, sessionID)
			if err != nil {
				c.logger.Debug("challenge status poll failed", "session", sessionID, "err", err)
				continue
			}
			if status == wire.ChallengeApproved {
				return PhaseAdminReview, nil
			}
		case status, ok := <-push:
			if !ok {
				push = nil
				continue
			}
			if status == wire.ChallengeApproved {
				return PhaseAdminReview, nil
			}
		case in := <-skipC:
			if in.err != nil {
				// Approval can still arrive by poll or push.
				skipC = nil
				continue
			}
			if in.text == c.skipWord {
				return PhaseAdminReview, nil
			}
			skip.Next()
		}
	}
}

func (c *Controller) runAdminReview(ctx context.Context) (Phase, error) {
	c.display.Show(ui.Event{Kind: ui.EventPhase, Phase: string(PhaseAdminReview), Title: "Admin review"})
	for i, msg := range reviewMessages {
		if i > 0 {
			if err := sleep(ctx, c.timings.ReviewCadence); err != nil {
				return "", err
			}
		}
		c.display.Show(ui.Event{Kind: ui.EventMessage, Text: msg})
	}
	if err := sleep(ctx, c.timings.ReviewTail); err != nil {
		return "", err
	}
	return PhaseApproved, nil
}

func (c *Controller) runApproved(ctx context.Context) error {
	c.display.Show(ui.Event{Kind: ui.EventSuccess, Phase: string(PhaseApproved), Text: "Verification passed. The valentine is yours."})
	for {
		ok, err := c.prompt.Confirm(ctx, "Open it?")
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (c *Controller) showCountdown(label string, remaining time.Duration) {
	c.display.Show(ui.Event{Kind: ui.EventCountdown, Title: label, Remaining: remaining})
}

type input struct {
	text string
	err  error
}

// listener reads one line per request so that no line is consumed after the
// phase that wanted it has moved on.
type listener struct {
	C      <-chan input
	next   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *Controller) listen(ctx context.Context, prompt string) *listener {
	lctx, cancel := context.WithCancel(ctx)
	out := make(chan input)
	l := &listener{C: out, next: make(chan struct{}, 1), cancel: cancel}
	l.next <- struct{}{}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-lctx.Done():
				return
			case <-l.next:
			}
			text, err := c.prompt.Ask(lctx, prompt)
			if err != nil && lctx.Err() != nil {
				return
			}
			select {
			case out <- input{text: text, err: err}:
			case <-lctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return l
}

// Next asks for another line.
func (l *listener) Next() {
	select {
	case l.next <- struct{}{}:
	default:
	}
}

// Stop cancels a pending read and waits for the reader to exit.
func (l *listener) Stop() {
	l.cancel()
	l.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errNotConfigured = errors.New("troll: backend, display and prompt are required")
