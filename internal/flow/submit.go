package flow

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"valentine/internal/ui"
)

type Timings struct {
	CorrectDelay  time.Duration
	RetryInterval time.Duration
	// Color trick choreography.
	WrongBeat  time.Duration
	RevealBeat time.Duration
	// Person choice choreography, both measured from the selection.
	ExpandAt   time.Duration
	CompleteAt time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		CorrectDelay:  3500 * time.Millisecond,
		RetryInterval: 3 * time.Second,
		WrongBeat:     3 * time.Second,
		RevealBeat:    5 * time.Second,
		ExpandAt:      1500 * time.Millisecond,
		CompleteAt:    5500 * time.Millisecond,
	}
}

type Result int

const (
	ResultCorrect Result = iota
	ResultWrong
	ResultFailed
)

const retryMessage = "Network error, try again."

// Submitter posts answers for one session and turns the verdict into display
// events.
type Submitter struct {
	api       API
	sessionID string
	display   ui.Display
	delay     time.Duration
	logger    *log.Logger
}

// Submit returns ResultCorrect only after the success delay has elapsed.
// The error is non-nil only when ctx ends.
func (s *Submitter) Submit(ctx context.Context, stage int, answer string) (Result, error) {
	res, err := s.api.CheckAnswer(ctx, s.sessionID, stage, answer)
	if err != nil {
		if ctx.Err() != nil {
			return ResultFailed, ctx.Err()
		}
		s.logger.Debug("check answer failed", "session", s.sessionID, "stage", stage, "err", err)
		s.display.Show(ui.Event{Kind: ui.EventNotice, Stage: stage, Text: retryMessage})
		return ResultFailed, nil
	}
	if !res.Correct {
		s.display.Show(ui.Event{Kind: ui.EventFailure, Stage: stage, Text: res.Message})
		return ResultWrong, nil
	}
	s.display.Show(ui.Event{Kind: ui.EventSuccess, Stage: stage, Text: res.Message})
	if err := sleep(ctx, s.delay); err != nil {
		return ResultCorrect, err
	}
	return ResultCorrect, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
