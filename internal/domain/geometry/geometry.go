// Package geometry turns score, history and category numbers into the shapes
// the dashboard draws. Everything here is pure and deterministic.
package geometry

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/okian/crediscout/internal/domain/model"
)

// Canvas and gauge constants.
const (
	DefaultGaugeRadius = 80.0
	DefaultTrendWindow = 8

	CanvasWidth  = 100.0
	CanvasHeight = 40.0
)

// ErrInsufficientData is returned when fewer than two samples are available
// to draw a trend.
var ErrInsufficientData = errors.New("need at least two snapshots to show a trend")

// ClampScore limits a score to [0,100]. NaN clamps to 0.
func ClampScore(score float64) float64 {
	if math.IsNaN(score) || score <= model.MinScore {
		return model.MinScore
	}
	if score >= model.MaxScore {
		return model.MaxScore
	}
	return score
}

// Gauge is the circular arc encoding of a score. The arc is animated from
// InitialOffset (fully retracted) to DashOffset.
type Gauge struct {
	Radius        float64
	Circumference float64
	Score         float64 // clamped
	ArcLength     float64
	DashOffset    float64
	InitialOffset float64
}

// DisplayScore is the rounded score printed in the gauge center.
func (g Gauge) DisplayScore() int {
	return int(math.Round(g.Score))
}

// EncodeGauge computes the arc for score on a circle of radius r.
// A non-positive radius yields a degenerate gauge with zero circumference.
func EncodeGauge(score, radius float64) Gauge {
	s := ClampScore(score)
	if math.IsNaN(radius) || radius < 0 {
		radius = 0
	}
	c := 2 * math.Pi * radius

	var arc float64
	switch s {
	case model.MinScore:
		arc = 0
	case model.MaxScore:
		arc = c
	default:
		arc = s / model.MaxScore * c
	}

	offset := c - arc
	if s == model.MaxScore {
		offset = 0
	}

	return Gauge{
		Radius:        radius,
		Circumference: c,
		Score:         s,
		ArcLength:     arc,
		DashOffset:    offset,
		InitialOffset: c,
	}
}

// Point is a coordinate on the 100x40 trend canvas (y grows downward).
type Point struct {
	X float64
	Y float64
}

// Trend is the line and filled-area encoding of a score history.
type Trend struct {
	Points []Point // line, oldest first
	Area   []Point // (0,40), Points..., (100,40)
}

// EncodeTrend draws at most the last window samples of scores. window values
// below 2 fall back to DefaultTrendWindow.
func EncodeTrend(scores []float64, window int) (Trend, error) {
	if window < 2 {
		window = DefaultTrendWindow
	}
	if len(scores) < 2 {
		return Trend{}, ErrInsufficientData
	}
	if len(scores) > window {
		scores = scores[len(scores)-window:]
	}

	n := len(scores)
	last := float64(n - 1)
	points := make([]Point, n)
	for i, s := range scores {
		x := float64(i) / last * CanvasWidth
		if i == n-1 {
			x = CanvasWidth
		}
		points[i] = Point{
			X: x,
			Y: CanvasHeight - ClampScore(s)/model.MaxScore*CanvasHeight,
		}
	}

	area := make([]Point, 0, n+2)
	area = append(area, Point{X: 0, Y: CanvasHeight})
	area = append(area, points...)
	area = append(area, Point{X: CanvasWidth, Y: CanvasHeight})

	return Trend{Points: points, Area: area}, nil
}

// EncodeHistory is EncodeTrend over a ScoreHistory.
func EncodeHistory(h model.ScoreHistory, window int) (Trend, error) {
	return EncodeTrend(h.Scores(), window)
}

// Polyline renders the line points as an SVG points attribute.
func (t Trend) Polyline() string {
	parts := make([]string, len(t.Points))
	for i, p := range t.Points {
		parts[i] = formatPoint(p)
	}
	return strings.Join(parts, " ")
}

// AreaPath renders the filled area as an SVG path anchored to the baseline.
func (t Trend) AreaPath() string {
	if len(t.Area) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("M ")
	b.WriteString(formatPoint(t.Area[0]))
	for _, p := range t.Area[1:] {
		b.WriteString(" L ")
		b.WriteString(formatPoint(p))
	}
	b.WriteString(" Z")
	return b.String()
}

// Bar is the width encoding of one analytics category.
type Bar struct {
	Category   string
	Percentage float64
	Width      float64 // fraction of the full track, [0,1]
}

// BarWidth maps a percentage to a track fraction. Each bar is independent;
// no normalization against siblings is performed.
func BarWidth(percentage float64) float64 {
	if math.IsNaN(percentage) {
		return 0
	}
	w := percentage / model.PercentageScale
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	default:
		return w
	}
}

// EncodeBars maps every analytics entry to a bar, preserving order.
func EncodeBars(analytics []model.CategoryShare) []Bar {
	bars := make([]Bar, len(analytics))
	for i, a := range analytics {
		bars[i] = Bar{
			Category:   a.Category,
			Percentage: a.Percentage,
			Width:      BarWidth(a.Percentage),
		}
	}
	return bars
}

// TierColor is the gauge stroke color for a tier.
func TierColor(t model.Tier) string {
	switch t {
	case model.TierStable:
		return "#2E7D6E"
	case model.TierModerate:
		return "#1E3A5F"
	case model.TierRisky:
		return "#9B2C2C"
	default:
		return "#1C1C1C"
	}
}

func formatPoint(p Point) string {
	return formatFloat(p.X) + "," + formatFloat(p.Y)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
