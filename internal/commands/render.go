package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/okian/crediscout/internal/domain/insight"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/internal/domain/view"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	boldRed = color.New(color.FgRed, color.Bold).SprintFunc()
)

const (
	barCells   = 30
	sparkRunes = "▁▂▃▄▅▆▇█"
)

// terminal is the navigation and alert sink of the CLI.
type terminal struct {
	w io.Writer
}

func newTerminal(w io.Writer) *terminal { return &terminal{w: w} }

func (t *terminal) Navigate(_ context.Context, r model.Route) {
	if r == model.RouteSignIn {
		fmt.Fprintln(t.w, yellow("Session ended. Sign in again to continue."))
	}
}

func (t *terminal) Alert(_ context.Context, msg string) {
	fmt.Fprintln(t.w, boldRed("! ")+red(msg))
}

// tierColor picks the terminal color for a tier.
func tierColor(t model.Tier) func(a ...interface{}) string {
	switch t {
	case model.TierStable:
		return green
	case model.TierModerate:
		return cyan
	case model.TierRisky:
		return red
	default:
		return bold
	}
}

func renderDashboard(w io.Writer, d *view.Dashboard, history []float64, window int) {
	fmt.Fprintf(w, "%s %s\n", bold("NODE_ID:"), d.ShortID)
	fmt.Fprintf(w, "%s %s   %s %s\n", dim("Processed"), d.ProcessedAt, dim("Source"), d.Source)
	fmt.Fprintln(w)

	paint := tierColor(d.Tier)
	fmt.Fprintf(w, "  %s / %.0f   %s\n", paint(bold(d.Gauge.DisplayScore())), model.MaxScore, paint(string(d.Tier)))
	fmt.Fprintf(w, "  %s\n", paint(meter(d.Gauge.Score/model.MaxScore)))
	fmt.Fprintln(w)

	if d.HasTrend {
		fmt.Fprintf(w, "%s %s\n", bold("Trend"), sparkline(history, window))
	} else {
		fmt.Fprintf(w, "%s %s\n", bold("Trend"), dim(d.TrendNote))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, bold("Insights"))
	for _, c := range d.Cards {
		paintCard := red
		if c.Class == insight.Favorable {
			paintCard = green
		}
		fmt.Fprintf(w, "  %s %s  %s\n", paintCard(c.Badge), c.Feature, dim(c.Summary))
		fmt.Fprintf(w, "    %s\n", c.Narrative)
	}
	if len(d.Cards) == 0 {
		fmt.Fprintf(w, "  %s\n", dim("none"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, bold(d.Milestone.Title))
	fmt.Fprintf(w, "  %s\n", meter(d.Milestone.Progress))
	fmt.Fprintf(w, "  %s\n", d.Milestone.Text)
}

func renderAnalytics(w io.Writer, d *view.Dashboard) {
	fmt.Fprintln(w, bold("Spending Analytics"))
	if len(d.Categories) == 0 {
		fmt.Fprintf(w, "  %s\n", dim("no categories"))
	}
	for _, c := range d.Categories {
		cells := int(c.Width * barCells)
		fmt.Fprintf(w, "  %-20s %14s %7s %s\n", c.Name, c.Amount, c.Percent, cyan(strings.Repeat("█", cells)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold(d.Advice.Title))
	fmt.Fprintf(w, "  %s\n", d.Advice.Text)
	fmt.Fprintln(w)
	for _, c := range d.Cards {
		fmt.Fprintf(w, "  %s: %s\n", c.Feature, c.Narrative)
	}
}

func renderAccount(w io.Writer, a view.Account) {
	fmt.Fprintf(w, "%s %s\n", bold("Email:"), a.Email)
	if a.Name != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Name:"), a.Name)
	}
	fmt.Fprintf(w, "%s %s\n", bold("Institutional ID:"), a.InstitutionalID)
	fmt.Fprintf(w, "%s %s\n", bold("Member since:"), a.MemberSince)
}

func renderTask(w io.Writer, t model.UploadTask) {
	switch t.Phase {
	case model.PhaseUploading:
		fmt.Fprintf(w, "%s %s %s %3d%%\n", dim("uploading"), t.FileName, meter(float64(t.Progress)/100), t.Progress)
	case model.PhaseVerifying:
		fmt.Fprintf(w, "%s %s\n", yellow("verifying"), t.FileName)
	case model.PhaseDone:
		fmt.Fprintf(w, "%s %s (%s)\n", green("done"), t.FileName, view.Size(t.Size))
	case model.PhaseFailed:
		fmt.Fprintf(w, "%s %s: %s\n", boldRed("failed"), t.FileName, t.Message)
	}
}

// meter draws a fraction in [0,1] as a fixed-width bar.
func meter(frac float64) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	full := int(frac * barCells)
	return "[" + strings.Repeat("#", full) + strings.Repeat(".", barCells-full) + "]"
}

// sparkline draws the last window scores on the 0..MaxScore scale.
func sparkline(scores []float64, window int) string {
	if window >= 2 && len(scores) > window {
		scores = scores[len(scores)-window:]
	}
	runes := []rune(sparkRunes)
	var b strings.Builder
	for _, s := range scores {
		i := int(s / model.MaxScore * float64(len(runes)-1))
		if i < 0 {
			i = 0
		}
		if i >= len(runes) {
			i = len(runes) - 1
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}
