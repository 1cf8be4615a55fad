package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"valentine/internal/wire"
)

// SessionTable renders the operator's session list, pending challenges
// first.
func SessionTable(th Theme, list []wire.AdminSession) string {
	if len(list) == 0 {
		return th.Muted.Render("no sessions yet")
	}
	rows := make([][]string, 0, len(list))
	for _, s := range orderForReview(list) {
		rows = append(rows, []string{
			s.SessionID,
			strconv.Itoa(s.CurrentStage),
			sessionState(s),
			s.ChallengeStatus,
			s.TrollingPhase,
			s.IPAddress,
			s.StartedAt.Local().Format("Jan 2 15:04"),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(th.Muted).
		Headers("SESSION", "STAGE", "STATE", "CHALLENGE", "PHASE", "IP", "STARTED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return th.Accent.Bold(true)
			}
			if col == 3 && rows[row][3] == wire.ChallengePending {
				return th.Notice
			}
			return th.Body
		})
	return t.String()
}

// SessionDetail renders one session and its attempt history.
func SessionDetail(th Theme, d wire.AdminSessionDetail) string {
	var b strings.Builder
	s := d.Session
	b.WriteString(th.Title.Render("Session "+s.SessionID) + "\n")
	fmt.Fprintf(&b, "fingerprint %s\nstage %d (%s)\nchallenge %s, phase %s\nip %s\nstarted %s, expires %s\n",
		s.Fingerprint, s.CurrentStage, sessionState(s), s.ChallengeStatus, s.TrollingPhase, s.IPAddress,
		s.StartedAt.Local().Format(time.DateTime), s.ExpiresAt.Local().Format(time.DateTime))
	b.WriteString(th.Pass.Render(fmt.Sprintf("%d correct", d.TotalCorrect)) + "  " + th.Fail.Render(fmt.Sprintf("%d wrong", d.TotalWrong)) + "\n")
	for _, a := range d.Attempts {
		mark := th.Fail.Render("x")
		if a.Correct {
			mark = th.Pass.Render("v")
		}
		fmt.Fprintf(&b, "  %s %s stage %d  %q\n", a.CreatedAt.Local().Format(time.TimeOnly), mark, a.Stage, a.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orderForReview(list []wire.AdminSession) []wire.AdminSession {
	out := make([]wire.AdminSession, 0, len(list))
	for _, s := range list {
		if s.ChallengeStatus == wire.ChallengePending {
			out = append(out, s)
		}
	}
	for _, s := range list {
		if s.ChallengeStatus != wire.ChallengePending {
			out = append(out, s)
		}
	}
	return out
}

func sessionState(s wire.AdminSession) string {
	switch {
	case s.Completed:
		return "completed"
	case s.Expired:
		return "expired"
	default:
		return "active"
	}
}
