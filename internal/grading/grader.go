package grading

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"valentine/internal/puzzles"
)

type evaluatorFunc func(puzzles.Puzzle, string) (bool, string)

type Checker struct {
	registry map[puzzles.Kind]evaluatorFunc
	pick     func(n int) int
}

func NewChecker() *Checker {
	c := &Checker{registry: map[puzzles.Kind]evaluatorFunc{}, pick: rand.IntN}
	c.registry[puzzles.KindPhoto] = evalText
	c.registry[puzzles.KindText] = evalText
	c.registry[puzzles.KindAudio] = evalText
	c.registry[puzzles.KindCaptcha] = evalCaptcha
	c.registry[puzzles.KindComplexCaptcha] = evalComposite
	c.registry[puzzles.KindColorTrick] = evalAlways
	c.registry[puzzles.KindChoosePerson] = evalAlways
	return c
}

// WithPicker replaces the random source used to choose wrong-answer messages.
func (c *Checker) WithPicker(pick func(n int) int) *Checker {
	c.pick = pick
	return c
}

func (c *Checker) Check(p puzzles.Puzzle, answer string) Verdict {
	eval, ok := c.registry[p.Type]
	if !ok {
		return Verdict{Message: "Unsupported puzzle"}
	}
	correct, custom := eval(p, normalize(answer))
	if correct {
		return Verdict{Correct: true, Message: p.CorrectMessage}
	}
	if custom != "" {
		return Verdict{Message: custom}
	}
	return Verdict{Message: c.wrongMessage(p)}
}

func (c *Checker) wrongMessage(p puzzles.Puzzle) string {
	if len(p.WrongMessages) == 0 {
		return "Wrong!"
	}
	return p.WrongMessages[c.pick(len(p.WrongMessages))]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func evalAlways(puzzles.Puzzle, string) (bool, string) { return true, "" }

func evalText(p puzzles.Puzzle, answer string) (bool, string) {
	if answer == normalize(p.Answer) {
		return true, ""
	}
	for _, alias := range p.AnswerAliases {
		if answer == normalize(alias) {
			return true, ""
		}
	}
	return false, ""
}

func evalCaptcha(p puzzles.Puzzle, answer string) (bool, string) {
	parts := strings.Split(answer, ",")
	if len(parts) != len(p.Questions) {
		return false, ""
	}
	for i, q := range p.Questions {
		idx, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || idx != q.AnswerIndex {
			return false, ""
		}
	}
	return true, ""
}

func evalComposite(p puzzles.Puzzle, answer string) (bool, string) {
	var sub CompositeAnswer
	if err := json.Unmarshal([]byte(answer), &sub); err != nil {
		return false, ""
	}
	if p.PartA == nil || p.PartB == nil {
		return false, ""
	}
	// Picks beyond the configured questions and rounds are ignored.
	for i, q := range p.PartA.Questions {
		if i >= len(sub.PartA) {
			return false, ""
		}
		if sub.PartA[i] != q.CorrectIndex {
			return false, q.WrongMessageFor(sub.PartA[i])
		}
	}
	for i, r := range p.PartB.Rounds {
		if i >= len(sub.PartB) || !sameCells(sub.PartB[i], r.CorrectIndices) {
			return false, ""
		}
	}
	return true, ""
}

// sameCells compares grid selections ignoring order. Repeated cells count.
func sameCells(got, want []int) bool {
	a := slices.Clone(got)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
