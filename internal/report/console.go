package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"genimg/internal/orchestrator"

	"github.com/charmbracelet/lipgloss"
)

// Console prints one line per prompt event. It implements
// orchestrator.Reporter.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ orchestrator.Reporter = (*Console)(nil)

// NewConsole writes progress lines to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func counter(index, total int) string {
	width := len(fmt.Sprint(total))
	return counterStyle.Render(fmt.Sprintf("[%*d/%d]", width, index, total))
}

func (c *Console) println(parts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, strings.Join(parts, " "))
}

func (c *Console) Skipped(index, total int, prompt string) {
	c.println(counter(index, total), skipStyle.Render("skip"), skipStyle.Render(Shorten(prompt, 70)))
}

func (c *Console) Started(index, total int, prompt string) {
	c.println(counter(index, total), runStyle.Render("run "), Shorten(prompt, 70))
}

func (c *Console) Finished(o orchestrator.Outcome, total int) {
	elapsed := o.Elapsed.Round(100 * time.Millisecond).String()
	switch o.Status {
	case orchestrator.OutcomeSuccess:
		detail := fmt.Sprintf("%d file(s) in %s", len(o.Outputs), elapsed)
		if len(o.Outputs) == 0 {
			detail = warnStyle.Render("no files saved") + " in " + elapsed
		}
		c.println(counter(o.Index, total), okStyle.Render("ok  "), detail)
	default:
		c.println(counter(o.Index, total), failStyle.Render("fail"), Shorten(o.Error, 100))
	}
}

// Summary renders the end-of-run box.
func Summary(s orchestrator.Summary) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("genimg · %s", s.Project)),
		fmt.Sprintf("%s  %s  %s  of %d",
			okStyle.Render(fmt.Sprintf("%d succeeded", s.Succeeded)),
			failStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
			skipStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)),
			s.Total),
		counterStyle.Render(fmt.Sprintf("run %s · %s", s.RunID, s.Elapsed.Round(time.Second))),
	}
	if s.Cancelled {
		lines = append(lines, warnStyle.Render("interrupted: remaining prompts were not attempted"))
	}
	var failed []string
	for _, it := range s.Items {
		if it.Status == orchestrator.OutcomeFailed {
			failed = append(failed, fmt.Sprintf("  #%d %s: %s", it.Index, Shorten(it.Prompt, 40), Shorten(it.Error, 60)))
		}
	}
	if len(failed) > 0 {
		lines = append(lines, "", failStyle.Render("failed (sent prompts stay skipped; use `genimg reset --prompt` to retry):"))
		lines = append(lines, failed...)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// JournalLine summarises what the journal holds for one run, statuses in
// name order.
func JournalLine(runID string, counts map[string]int) string {
	statuses := make([]string, 0, len(counts))
	total := 0
	for st, n := range counts {
		statuses = append(statuses, st)
		total += n
	}
	sort.Strings(statuses)
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = fmt.Sprintf("%d %s", counts[st], st)
	}
	line := fmt.Sprintf("journal: %d attempt(s) recorded for run %s", total, runID)
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	return counterStyle.Render(line)
}

// Shorten trims s to n runes on a single line.
func Shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
