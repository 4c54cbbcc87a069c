// Package view turns committed client state into display-ready values shared
// by the terminal renderer and the local site.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/geometry"
	"github.com/okian/crediscout/internal/domain/insight"
	"github.com/okian/crediscout/internal/domain/model"
)

// Display copy for the non-ready dashboard states.
const (
	EmptyTitle   = "No Data Found"
	EmptyText    = "You haven't uploaded any bank statements yet. Let's analyze your transactions to generate your first score."
	FailedTitle  = "Fetch Error"
	LoadingTitle = "Synchronizing..."
)

const (
	dateLayout     = "Jan 2, 2006"
	currencySymbol = "₹"
	kilobyte       = 1024
)

// Category is one analytics row.
type Category struct {
	Name    string
	Amount  string // currency, grouped, two decimals
	Percent string // one decimal
	Width   float64
}

// Dashboard is the full presentation of a committed view model.
type Dashboard struct {
	ShortID     string
	ProcessedAt string
	Source      string

	Tier      model.Tier
	TierColor string
	TopTier   bool

	Gauge     geometry.Gauge
	Trend     geometry.Trend
	HasTrend  bool
	TrendNote string

	Categories []Category
	Cards      []insight.Card
	Advice     insight.Advice
	Milestone  insight.Milestone
}

// Build presents vm with its history. It returns nil when vm is nil.
func Build(vm *model.ViewModel, history model.ScoreHistory, radius float64, window int) *Dashboard {
	if vm == nil {
		return nil
	}
	d := &Dashboard{
		ShortID:     vm.ShortID(),
		ProcessedAt: Date(vm.CreatedAt),
		Source:      vm.SourceLabel(),
		Tier:        vm.Tier,
		TierColor:   geometry.TierColor(vm.Tier),
		TopTier:     vm.Tier.IsTop(),
		Gauge:       geometry.EncodeGauge(vm.Score, radius),
		Cards:       insight.Cards(vm.Tier, vm.Insights),
		Advice:      insight.Advisory(vm.Tier, vm.Analytics),
		Milestone:   insight.NextMilestone(vm.Tier),
	}

	trend, err := geometry.EncodeHistory(history, window)
	if err != nil {
		d.TrendNote = err.Error()
	} else {
		d.Trend, d.HasTrend = trend, true
	}

	bars := geometry.EncodeBars(vm.Analytics)
	d.Categories = make([]Category, len(vm.Analytics))
	for i, a := range vm.Analytics {
		d.Categories[i] = Category{
			Name:    a.Category,
			Amount:  Amount(a.Amount),
			Percent: Percent(a.Percentage),
			Width:   bars[i].Width,
		}
	}
	return d
}

// Headline is the title and text shown for a state without a dashboard.
func Headline(st fetcher.State) (title, text string) {
	switch st.Status {
	case fetcher.Empty:
		return EmptyTitle, EmptyText
	case fetcher.Failed:
		return FailedTitle, st.Message
	case fetcher.Loading, fetcher.Idle:
		return LoadingTitle, ""
	default:
		return "", ""
	}
}

// Account is the profile surface.
type Account struct {
	Email           string
	Name            string
	InstitutionalID string
	MemberSince     string
}

// AccountOf presents p.
func AccountOf(p model.Profile) Account {
	return Account{
		Email:           p.Email,
		Name:            p.DisplayName,
		InstitutionalID: p.InstitutionalID(),
		MemberSince:     Date(p.CreatedAt),
	}
}

// Amount formats a money value with thousands separators and two decimals.
func Amount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	return sign + currencySymbol + group(intPart) + "." + frac
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Percent formats a category share with one decimal.
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// Size formats a file size in kilobytes with two decimals.
func Size(n int64) string {
	return fmt.Sprintf("%.2f KB", float64(n)/kilobyte)
}

// Date formats a timestamp for display; the zero time renders as a dash.
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(dateLayout)
}
