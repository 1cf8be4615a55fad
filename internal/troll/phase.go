// Package troll runs the final fake-failure sequence a visitor must sit
// through before the reveal.
package troll

import (
	"strings"
	"time"
	"unicode"

	"valentine/internal/wire"
)

type Phase string

const (
	PhaseError       Phase = wire.PhaseError
	PhaseLoading     Phase = wire.PhaseLoading
	PhaseChallenge   Phase = wire.PhaseChallenge
	PhaseWaitingReal Phase = wire.PhaseWaitingReal
	PhaseAdminReview Phase = wire.PhaseAdminReview
	PhaseApproved    Phase = wire.PhaseApproved
)

// ResolveInitialPhase picks where a resumed visitor lands. The challenge
// status from the server wins over the saved phase, since the admin may have
// acted while the visitor was away.
func ResolveInitialPhase(saved, challenge string) Phase {
	switch challenge {
	case wire.ChallengeApproved:
		if saved == wire.PhaseApproved {
			return PhaseApproved
		}
		return PhaseAdminReview
	case wire.ChallengePending:
		return PhaseWaitingReal
	}
	if wire.ValidPhase(saved) {
		return Phase(saved)
	}
	return PhaseError
}

// MatchRepairCode compares ignoring case and all whitespace.
func MatchRepairCode(input, secret string) bool {
	squash := func(s string) string {
		return strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s))
	}
	return squash(input) == squash(secret)
}

type Timings struct {
	ErrorCountdown time.Duration
	Tick           time.Duration
	Loading        time.Duration
	LoadingRotate  time.Duration
	Poll           time.Duration
	ReviewCadence  time.Duration
	ReviewTail     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ErrorCountdown: 5 * time.Minute,
		Tick:           time.Second,
		Loading:        2 * time.Minute,
		LoadingRotate:  4 * time.Second,
		Poll:           3 * time.Second,
		ReviewCadence:  3 * time.Second,
		ReviewTail:     3 * time.Second,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.ErrorCountdown <= 0 {
		t.ErrorCountdown = d.ErrorCountdown
	}
	if t.Tick <= 0 {
		t.Tick = d.Tick
	}
	if t.Loading <= 0 {
		t.Loading = d.Loading
	}
	if t.LoadingRotate <= 0 {
		t.LoadingRotate = d.LoadingRotate
	}
	if t.Poll <= 0 {
		t.Poll = d.Poll
	}
	if t.ReviewCadence <= 0 {
		t.ReviewCadence = d.ReviewCadence
	}
	if t.ReviewTail <= 0 {
		t.ReviewTail = d.ReviewTail
	}
	return t
}

var loadingMessages = []string{
	"Reassembling quantum modules...",
	"Rebooting the servers on Saturn...",
	"Rolling back to the last stable version...",
	"Deleting System32... just kidding",
	"Connecting to the satellite...",
	"Downloading 4 petabytes of data...",
	"Compiling a nuclear reactor...",
	"Searching for the meaning of life... not found",
	"Installing Windows updates...",
	"Translating the site into machine code...",
	"Optimizing neural pathways...",
	"Loading classified files...",
	"Recalculating pi...",
	"Defragmenting the cloud...",
	"Calibrating artificial intelligence...",
	"Syncing with a parallel universe...",
}

var reviewMessages = []string{
	"Request received, processing...",
	"Opening the video...",
	"Footage quality: 2/10",
	"Push-up technique... debatable",
	"Admin Val went to make coffee",
	"Admin Val spilled coffee on the keyboard...",
	"Looking for a spare keyboard...",
	"Admin Val is scrolling videos while waiting...",
	"Admin Val got a text from an ex...",
	"Admin Val needs a minute",
	"Admin Val is taking deep breaths",
	"Fine, back to work...",
	"Consulting a fitness expert...",
	"The expert is shocked, but okay",
	"Double-checking the recording...",
	"Admin Val dropped the phone in the sink",
	"Fished it out... seems to work",
	"Fine, it counts. Barely.",
	"Issuing clearance...",
	"Access granted",
}
