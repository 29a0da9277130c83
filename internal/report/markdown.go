package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"genimg/internal/journal"
	"genimg/internal/ledger"

	"github.com/charmbracelet/glamour"
)

// StatusMarkdown renders a project's ledger as a markdown document.
func StatusMarkdown(st ledger.RunStatus, sent []string) string {
	var b strings.Builder
	succeeded, failed := st.Counts()
	sentSet := make(map[string]bool, len(sent))
	for _, p := range sent {
		sentSet[p] = true
	}

	fmt.Fprintf(&b, "# %s\n\n", st.Project)
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated %s. ", st.UpdatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(&b, "**%d** succeeded, **%d** failed, **%d** sent.\n\n", succeeded, failed, len(sent))

	if len(st.Items) == 0 {
		b.WriteString("_No attempts recorded._\n")
	} else {
		b.WriteString("| # | Prompt | Status | Attempts | Outputs | Last error |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for i, it := range st.Items {
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %s | %s |\n",
				i+1, cell(Shorten(it.Prompt, 50)), it.Status, it.AttemptCount,
				cell(outputsCell(it.Outputs)), cell(Shorten(it.LastError, 60)))
		}
	}

	var orphans []string
	for _, p := range sent {
		it, ok := st.Item(p)
		if !ok || it.Status != ledger.StatusSuccess {
			orphans = append(orphans, p)
		}
	}
	if len(orphans) > 0 {
		b.WriteString("\n## Sent without success\n\n")
		b.WriteString("These are skipped on every run until reset.\n\n")
		for _, p := range orphans {
			fmt.Fprintf(&b, "- %s\n", cell(Shorten(p, 80)))
		}
	}
	return b.String()
}

// HistoryMarkdown renders journal attempts, newest first.
func HistoryMarkdown(project string, attempts []journal.Attempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# History: %s\n\n", project)
	if len(attempts) == 0 {
		b.WriteString("_No attempts journaled._\n")
		return b.String()
	}
	b.WriteString("| When | Prompt | Try | Status | Took | Outputs | Error |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %d | %s |\n",
			a.StartedAt.Local().Format(time.DateTime),
			cell(Shorten(a.Prompt, 40)), a.Attempt, a.Status,
			a.FinishedAt.Sub(a.StartedAt).Round(time.Second),
			len(a.Outputs), cell(Shorten(a.Error, 50)))
	}
	return b.String()
}

// Render renders markdown for the terminal at width columns.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func outputsCell(outputs []string) string {
	switch len(outputs) {
	case 0:
		return ""
	case 1:
		return filepath.Base(outputs[0])
	default:
		return fmt.Sprintf("%s (+%d)", filepath.Base(outputs[0]), len(outputs)-1)
	}
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
