package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"valentine/internal/puzzles"
	"valentine/internal/ui"
	"valentine/internal/wire"
)

type stageFunc func(ctx context.Context, sub *Submitter, p wire.Puzzle) error

func (r *Router) runners() map[puzzles.Kind]stageFunc {
	return map[puzzles.Kind]stageFunc{
		puzzles.KindPhoto:          r.answerStage,
		puzzles.KindText:           r.answerStage,
		puzzles.KindAudio:          r.answerStage,
		puzzles.KindCaptcha:        r.choiceCaptchaStage,
		puzzles.KindComplexCaptcha: r.compositeStage,
		puzzles.KindColorTrick:     r.colorTrickStage,
		puzzles.KindChoosePerson:   r.choosePersonStage,
	}
}

func (r *Router) runStage(ctx context.Context, st wire.SessionStatus, p wire.Puzzle) error {
	run, ok := r.runners()[puzzles.Kind(p.Type)]
	if !ok {
		return fmt.Errorf("stage %d: unsupported puzzle type %q", p.Stage, p.Type)
	}
	var left time.Duration
	if !st.ExpiresAt.IsZero() {
		left = time.Until(st.ExpiresAt)
	}
	r.display.Show(ui.Event{Kind: ui.EventStage, Stage: p.Stage, Title: p.Title, Remaining: left, Puzzle: &p})
	sub := &Submitter{api: r.api, sessionID: st.SessionID, display: r.display, delay: r.timings.CorrectDelay, logger: r.logger}
	return run(ctx, sub, p)
}

// answerStage handles the free-text stages: photo, riddle and audio.
func (r *Router) answerStage(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	for {
		answer, err := r.prompt.Ask(ctx, "Your answer")
		if err != nil {
			return err
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}
		res, err := sub.Submit(ctx, p.Stage, answer)
		if err != nil {
			return err
		}
		if res == ResultCorrect {
			return nil
		}
	}
}

func (r *Router) choiceCaptchaStage(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	var data wire.CaptchaData
	for {
		var err error
		data, err = r.api.Captcha(ctx, p.Stage)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Debug("load captcha failed", "stage", p.Stage, "err", err)
		r.display.Show(ui.Event{Kind: ui.EventNotice, Stage: p.Stage, Text: retryMessage})
		if err := sleep(ctx, r.timings.RetryInterval); err != nil {
			return err
		}
	}

	for {
		picks := make([]string, 0, len(data.Questions))
		for _, q := range data.Questions {
			idx, err := r.prompt.Choose(ctx, q.Text, q.Options)
			if err != nil {
				return err
			}
			picks = append(picks, strconv.Itoa(idx))
		}
		res, err := sub.Submit(ctx, p.Stage, strings.Join(picks, ","))
		if err != nil {
			return err
		}
		if res == ResultCorrect {
			return nil
		}
	}
}

func (r *Router) compositeStage(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	if p.ComplexData == nil {
		return fmt.Errorf("stage %d: complex captcha without data", p.Stage)
	}
	state := NewCompositeState(*p.ComplexData)
	for {
		for state.Part() == PartA {
			_, q := state.Question()
			labels := make([]string, len(q.Options))
			for i, o := range q.Options {
				labels[i] = o.Label
				if labels[i] == "" {
					labels[i] = o.PhotoURL
				}
			}
			idx, err := r.prompt.Choose(ctx, q.Text, labels)
			if err != nil {
				return err
			}
			if err := state.Select(idx); err != nil {
				continue
			}
			if err := state.Next(); err != nil {
				return err
			}
		}
		for state.Part() == PartB {
			_, round := state.Round()
			picked, err := r.prompt.ChooseMany(ctx, round.Instruction, round.GridURLs)
			if err != nil {
				return err
			}
			for _, i := range picked {
				if err := state.Toggle(i); err != nil {
					return err
				}
			}
			if err := state.ConfirmRound(); err != nil {
				return err
			}
		}
		answer, err := state.Encode()
		if err != nil {
			return err
		}
		res, err := sub.Submit(ctx, p.Stage, answer)
		if err != nil {
			return err
		}
		if res == ResultCorrect {
			return nil
		}
		state.Reset()
	}
}

// submitDetached fires the narrative selection at the backend without
// waiting for it. Run joins it on the way out.
func (r *Router) submitDetached(ctx context.Context, sessionID string, stage int, answer string) {
	r.detached.Add(1)
	go func() {
		defer r.detached.Done()
		if _, err := r.api.CheckAnswer(ctx, sessionID, stage, answer); err != nil {
			r.logger.Debug("narrative submit failed", "session", sessionID, "stage", stage, "err", err)
		}
	}()
}

func (r *Router) pickNarrative(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	idx, err := r.prompt.Choose(ctx, p.Description, p.Options)
	if err != nil {
		return err
	}
	choice := ""
	if idx >= 0 && idx < len(p.Options) {
		choice = p.Options[idx]
	}
	r.submitDetached(ctx, sub.sessionID, p.Stage, choice)
	return nil
}

func (r *Router) colorTrickStage(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	if err := r.pickNarrative(ctx, sub, p); err != nil {
		return err
	}

	r.display.Show(ui.Event{Kind: ui.EventFailure, Stage: p.Stage, Text: "Hmmm..."})
	if err := sleep(ctx, r.timings.WrongBeat); err != nil {
		return err
	}
	r.display.Show(ui.Event{Kind: ui.EventBeat, Stage: p.Stage, Text: "I know you don't have a favourite colour. Why are you lying to me?"})
	return sleep(ctx, r.timings.RevealBeat)
}

func (r *Router) choosePersonStage(ctx context.Context, sub *Submitter, p wire.Puzzle) error {
	if err := r.pickNarrative(ctx, sub, p); err != nil {
		return err
	}

	r.display.Show(ui.Event{Kind: ui.EventBeat, Stage: p.Stage, Text: "Every option turns into the same face..."})
	if err := sleep(ctx, r.timings.ExpandAt); err != nil {
		return err
	}
	r.display.Show(ui.Event{Kind: ui.EventBeat, Stage: p.Stage, Text: "I knew you'd pick him ;)"})
	return sleep(ctx, r.timings.CompleteAt-r.timings.ExpandAt)
}
