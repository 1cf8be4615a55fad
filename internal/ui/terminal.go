package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Terminal is a line-oriented Display and Prompter over a reader and writer.
// Input is read by a single goroutine for the life of the reader so that a
// prompt abandoned on cancellation never swallows the next line.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	theme Theme
	lines chan string
	err   error
}

func NewTerminal(in io.Reader, out io.Writer, theme Theme) *Terminal {
	t := &Terminal{out: out, theme: theme, lines: make(chan string)}
	go t.readLoop(in)
	return t
}

func (t *Terminal) readLoop(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		t.lines <- sc.Text()
	}
	t.mu.Lock()
	t.err = sc.Err()
	t.mu.Unlock()
	close(t.lines)
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			t.mu.Lock()
			err := t.err
			t.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func (t *Terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

func (t *Terminal) prompt(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, t.theme.Prompt.Render(s+" > "))
}

func (t *Terminal) Show(ev Event) {
	th := t.theme
	switch ev.Kind {
	case EventStage:
		var b strings.Builder
		b.WriteString(th.Title.Render(fmt.Sprintf("Stage %d: %s", ev.Stage, ev.Title)))
		if ev.Remaining > 0 {
			style := th.Muted
			if ev.Remaining < urgentExpiry {
				style = th.Notice
			}
			b.WriteString("  " + style.Render("expires in "+FormatDeadline(ev.Remaining)))
		}
		if ev.Puzzle != nil {
			if ev.Puzzle.Description != "" {
				b.WriteString("\n" + th.Body.Render(ev.Puzzle.Description))
			}
			for _, u := range ev.Puzzle.PhotoURLs {
				b.WriteString("\n" + th.Muted.Render("  photo: "+u))
			}
			if ev.Puzzle.AudioURL != "" {
				b.WriteString("\n" + th.Muted.Render("  audio: "+ev.Puzzle.AudioURL))
			}
		}
		t.println(b.String())
	case EventSuccess:
		t.println(th.Pass.Render(ev.Text))
	case EventFailure:
		t.println(th.Fail.Render(ev.Text))
	case EventNotice:
		t.println(th.Notice.Render(ev.Text))
	case EventPhase:
		if ev.Title != "" {
			t.println(th.Danger.Render(ev.Title))
		}
		if ev.Text != "" {
			t.println(th.Body.Render(ev.Text))
		}
	case EventCountdown:
		if !showTick(ev.Remaining) {
			return
		}
		label := ev.Title
		if label == "" {
			label = "Time left"
		}
		t.println(th.Muted.Render(fmt.Sprintf("%s: %s", label, FormatClock(ev.Remaining))))
	case EventBeat:
		t.println(th.Accent.Render(ev.Text))
	case EventReveal:
		t.println(th.Reveal.Render(ev.Title + "\n\n" + ev.Text))
	case EventExpired:
		t.println(th.Danger.Render(ev.Text))
	default:
		t.println(th.Body.Render(ev.Text))
	}
}

// showTick thins a once-per-second countdown down to something readable in
// a scrolling terminal.
func showTick(d time.Duration) bool {
	d = d.Round(time.Second)
	if d <= 10*time.Second {
		return true
	}
	if d <= time.Minute {
		return d%(15*time.Second) == 0
	}
	return d%time.Minute == 0
}

// urgentExpiry is when the session timer in stage headers turns loud.
const urgentExpiry = 30 * time.Minute

// FormatDeadline renders d as hh:mm:ss.
func FormatDeadline(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// FormatClock renders d as m:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func (t *Terminal) Ask(ctx context.Context, prompt string) (string, error) {
	t.prompt(prompt)
	return t.readLine(ctx)
}

func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	t.prompt(question + " [y/n]")
	line, err := t.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes", "да", "д":
		return true, nil
	default:
		return false, nil
	}
}

func (t *Terminal) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	t.printOptions(prompt, options)
	for {
		t.prompt(fmt.Sprintf("1-%d", len(options)))
		line, err := t.readLine(ctx)
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		t.println(t.theme.Notice.Render("Pick a number from the list."))
	}
}

// ChooseMany accepts numbers separated by commas or spaces. An empty line is
// an empty selection.
func (t *Terminal) ChooseMany(ctx context.Context, prompt string, options []string) ([]int, error) {
	t.printOptions(prompt, options)
	for {
		t.prompt("numbers, e.g. 1,3")
		line, err := t.readLine(ctx)
		if err != nil {
			return nil, err
		}
		picked, ok := parseSelection(line, len(options))
		if ok {
			return picked, nil
		}
		t.println(t.theme.Notice.Render("Use numbers from the list."))
	}
}

func (t *Terminal) printOptions(prompt string, options []string) {
	var b strings.Builder
	b.WriteString(t.theme.Body.Render(prompt))
	for i, o := range options {
		b.WriteString("\n" + t.theme.Options.Render(fmt.Sprintf("%d) %s", i+1, o)))
	}
	t.println(b.String())
}

func parseSelection(line string, n int) ([]int, bool) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	seen := map[int]bool{}
	out := []int{}
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > n {
			return nil, false
		}
		if !seen[v-1] {
			seen[v-1] = true
			out = append(out, v-1)
		}
	}
	return out, true
}
