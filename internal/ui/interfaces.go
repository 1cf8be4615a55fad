package ui

import (
	"context"
	"time"

	"valentine/internal/wire"
)

// Display renders flow events. Implementations must be safe for use from
// more than one goroutine.
type Display interface {
	Show(Event)
}

// Prompter collects visitor input. Every call blocks until the visitor
// answers or ctx is done.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
	Ask(ctx context.Context, prompt string) (string, error)
	Choose(ctx context.Context, prompt string, options []string) (int, error)
	ChooseMany(ctx context.Context, prompt string, options []string) ([]int, error)
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventStage
	EventSuccess
	EventFailure
	EventNotice
	EventPhase
	EventCountdown
	EventBeat
	EventReveal
	EventExpired
)

type Event struct {
	Kind  EventKind
	Stage int
	Phase string
	Title string
	Text  string
	// Remaining is set on countdown events, and on stage events to the time
	// left before the session expires.
	Remaining time.Duration
	Puzzle    *wire.Puzzle
}
