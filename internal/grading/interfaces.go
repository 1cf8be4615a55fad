package grading

import "valentine/internal/puzzles"

type AnswerChecker interface {
	Check(p puzzles.Puzzle, answer string) Verdict
}
