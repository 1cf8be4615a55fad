package flow

import (
	"errors"
	"testing"

	"valentine/internal/wire"
)

func compositeFixture() wire.ComplexData {
	return wire.ComplexData{
		PartA: wire.ComplexPartA{Questions: []wire.ComplexQuestion{
			{Text: "q1", Options: []wire.ComplexOption{{Label: "a"}, {Label: "b"}, {Label: "c"}}},
		}},
		PartB: wire.ComplexPartB{Rounds: []wire.ComplexRound{
			{Instruction: "r1", GridURLs: []string{"0", "1", "2"}},
			{Instruction: "r2", GridURLs: []string{"0", "1"}},
		}},
	}
}

func TestCompositeStateWalk(t *testing.T) {
	s := NewCompositeState(compositeFixture())
	if s.Part() != PartA {
		t.Fatalf("expected part A")
	}
	if err := s.Next(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if err := s.Select(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := s.Toggle(0); !errors.Is(err, ErrWrongPart) {
		t.Fatalf("toggle in part A: %v", err)
	}
	if err := s.Select(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Select(2); err != nil {
		t.Fatal(err)
	}
	if err := s.Next(); err != nil {
		t.Fatal(err)
	}
	if s.Part() != PartB {
		t.Fatalf("expected part B after the last question")
	}

	for _, i := range []int{1, 2, 1} {
		if err := s.Toggle(i); err != nil {
			t.Fatal(err)
		}
	}
	if sel := s.Selected(); len(sel) != 1 || sel[0] != 2 {
		t.Fatalf("toggle twice should deselect, got %v", sel)
	}
	if _, err := s.Encode(); !errors.Is(err, ErrWrongPart) {
		t.Fatalf("encode before done: %v", err)
	}
	if err := s.ConfirmRound(); err != nil {
		t.Fatal(err)
	}
	if err := s.ConfirmRound(); err != nil {
		t.Fatal(err)
	}
	if !s.Done() {
		t.Fatalf("expected done after the last round")
	}
	got, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"part_a":[2],"part_b":[[2],[]]}`; got != want {
		t.Fatalf("encode = %s, want %s", got, want)
	}

	s.Reset()
	if s.Part() != PartA {
		t.Fatalf("reset must return to part A")
	}
	if idx, _ := s.Question(); idx != 0 {
		t.Fatalf("reset must return to the first question, got %d", idx)
	}
	if err := s.Next(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("reset must clear picks, got %v", err)
	}
}
