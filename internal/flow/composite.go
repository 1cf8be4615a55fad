package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"valentine/internal/grading"
	"valentine/internal/wire"
)

type CompositePart int

const (
	PartA CompositePart = iota
	PartB
	PartDone
)

var (
	ErrNoSelection = errors.New("nothing selected")
	ErrWrongPart   = errors.New("not available in this part")
	ErrOutOfRange  = errors.New("index out of range")
)

// CompositeState tracks a visitor's progress through a two-part captcha:
// one pick per question in part A, then a set of grid cells per round in
// part B.
type CompositeState struct {
	data     wire.ComplexData
	part     CompositePart
	question int
	round    int
	picks    []int
	rounds   [][]int
	grid     map[int]bool
}

func NewCompositeState(data wire.ComplexData) *CompositeState {
	s := &CompositeState{data: data}
	s.Reset()
	return s
}

// Reset returns to the first question of part A with nothing selected.
func (s *CompositeState) Reset() {
	s.part = PartA
	s.question = 0
	s.round = 0
	s.picks = make([]int, len(s.data.PartA.Questions))
	for i := range s.picks {
		s.picks[i] = -1
	}
	s.rounds = make([][]int, 0, len(s.data.PartB.Rounds))
	s.grid = map[int]bool{}
	s.skipEmpty()
}

func (s *CompositeState) Part() CompositePart { return s.part }

func (s *CompositeState) Question() (int, wire.ComplexQuestion) {
	if s.part != PartA {
		return -1, wire.ComplexQuestion{}
	}
	return s.question, s.data.PartA.Questions[s.question]
}

func (s *CompositeState) Round() (int, wire.ComplexRound) {
	if s.part != PartB {
		return -1, wire.ComplexRound{}
	}
	return s.round, s.data.PartB.Rounds[s.round]
}

// Select picks option i for the current part A question.
func (s *CompositeState) Select(i int) error {
	if s.part != PartA {
		return ErrWrongPart
	}
	if i < 0 || i >= len(s.data.PartA.Questions[s.question].Options) {
		return fmt.Errorf("%w: option %d", ErrOutOfRange, i)
	}
	s.picks[s.question] = i
	return nil
}

// Next moves past the current question once it has a pick.
func (s *CompositeState) Next() error {
	if s.part != PartA {
		return ErrWrongPart
	}
	if s.picks[s.question] < 0 {
		return ErrNoSelection
	}
	s.question++
	s.skipEmpty()
	return nil
}

// Toggle flips grid cell i in the current round.
func (s *CompositeState) Toggle(i int) error {
	if s.part != PartB {
		return ErrWrongPart
	}
	if i < 0 || i >= len(s.data.PartB.Rounds[s.round].GridURLs) {
		return fmt.Errorf("%w: cell %d", ErrOutOfRange, i)
	}
	if s.grid[i] {
		delete(s.grid, i)
	} else {
		s.grid[i] = true
	}
	return nil
}

func (s *CompositeState) Selected() []int {
	out := make([]int, 0, len(s.grid))
	for i := range s.grid {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// ConfirmRound records the current grid selection and moves on. An empty
// selection is a valid answer.
func (s *CompositeState) ConfirmRound() error {
	if s.part != PartB {
		return ErrWrongPart
	}
	s.rounds = append(s.rounds, s.Selected())
	s.grid = map[int]bool{}
	s.round++
	s.skipEmpty()
	return nil
}

func (s *CompositeState) Done() bool { return s.part == PartDone }

// Encode renders the answer submitted for a finished captcha.
func (s *CompositeState) Encode() (string, error) {
	if s.part != PartDone {
		return "", ErrWrongPart
	}
	b, err := json.Marshal(grading.CompositeAnswer{PartA: s.picks, PartB: s.rounds})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *CompositeState) skipEmpty() {
	if s.part == PartA && s.question >= len(s.data.PartA.Questions) {
		s.part = PartB
	}
	if s.part == PartB && s.round >= len(s.data.PartB.Rounds) {
		s.part = PartDone
	}
}
