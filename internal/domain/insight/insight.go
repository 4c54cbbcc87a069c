// Package insight classifies behavioral insights and writes the narrative
// shown next to each one.
package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/crediscout/internal/domain/model"
)

// Narrative constants.
const (
	impactPointScale = 100.0

	nonTopMilestoneProgress = 0.65
	topMilestoneProgress    = 1.0

	genericReassuranceCategory = "financial"
	genericReductionCategory   = "spending"
)

// Class is the visual treatment of an insight.
type Class string

// Classes.
const (
	Favorable   Class = "favorable"
	Unfavorable Class = "unfavorable"
)

// Classify returns the visual class, driven solely by the positive flag.
func Classify(in model.Insight) Class {
	if in.Positive {
		return Favorable
	}
	return Unfavorable
}

// Card is one insight ready for display.
type Card struct {
	Feature   string
	Impact    float64
	Class     Class
	Badge     string // signed impact, three decimals
	Summary   string // one-line direction note
	Narrative string
}

// Narrate picks the narrative for one insight under the overall tier.
//
// Rules, in order: a positive insight reports its boost; a flagged insight
// for a top-tier user gets a monitoring note; anything else is an active
// negative influence with an improvement suggestion.
func Narrate(tier model.Tier, in model.Insight) string {
	if in.Positive {
		return fmt.Sprintf("Successfully optimizing this metric has boosted your score by %.1f points.", BoostPoints(in.Impact))
	}

	switch tier {
	case model.TierStable:
		return "While overall stable, monitoring this area ensures you maintain your perfect ranking."
	case model.TierModerate, model.TierRisky:
		return negativeNarrative
	default:
		// Unrecognized tiers are never treated as top tier.
		return negativeNarrative
	}
}

const negativeNarrative = "Your behavior in this area is negatively impacting your score. Improvement could unlock a higher tier."

// BoostPoints converts an impact into the score points shown to the user.
func BoostPoints(impact float64) float64 {
	return math.Abs(impact) * impactPointScale
}

// Badge formats the signed impact the way the impact chip shows it.
func Badge(impact float64) string {
	if impact > 0 {
		return fmt.Sprintf("+%.3f", impact)
	}
	return fmt.Sprintf("%.3f", impact)
}

// Cards builds display cards in the order received. Nothing is re-sorted.
func Cards(tier model.Tier, insights []model.Insight) []Card {
	cards := make([]Card, len(insights))
	for i, in := range insights {
		cards[i] = Card{
			Feature:   in.Feature,
			Impact:    in.Impact,
			Class:     Classify(in),
			Badge:     Badge(in.Impact),
			Summary:   Summarize(tier, in),
			Narrative: Narrate(tier, in),
		}
	}
	return cards
}

// Summarize is the one-line note beside a card. A flagged insight for a
// top-tier user reads as something to monitor, never as a negative.
func Summarize(tier model.Tier, in model.Insight) string {
	switch {
	case in.Positive:
		return "Positively impacting your readiness."
	case tier.IsTop():
		return "Worth monitoring for your readiness."
	default:
		return "Negatively impacting your readiness."
	}
}

// Advice is the top-level advisory block.
type Advice struct {
	Title string
	Text  string
}

// Advisory writes the tier-level recommendation, referencing the first
// analytics category when one exists.
func Advisory(tier model.Tier, analytics []model.CategoryShare) Advice {
	first := ""
	if len(analytics) > 0 {
		first = strings.ToLower(strings.TrimSpace(analytics[0].Category))
	}

	if tier.IsTop() {
		if first == "" {
			first = genericReassuranceCategory
		}
		return Advice{
			Title: "Secure & Encrypted Advice",
			Text: fmt.Sprintf("Your profile is exemplary. Our models suggest that continuing your current pattern of %s management "+
				"will lead to a 0%% risk of credit rejection.", first),
		}
	}

	if first == "" {
		first = genericReductionCategory
	}
	return Advice{
		Title: "Secure & Encrypted Advice",
		Text: fmt.Sprintf("Based on your %s ratio, our models recommend reducing discretionary outflows by 15%% "+
			"to move into the '%s' tier within 3 months.", first, model.TopTier),
	}
}

// Milestone is the progress card shown beside the insights.
type Milestone struct {
	Title    string
	Text     string
	Progress float64 // fraction of the track
}

// NextMilestone describes how far the user is from the top tier.
func NextMilestone(tier model.Tier) Milestone {
	if tier.IsTop() {
		return Milestone{
			Title:    "Performance Peak",
			Text:     "You've reached the highest credit readiness tier. Maintain your current income regularity to preserve this status.",
			Progress: topMilestoneProgress,
		}
	}
	return Milestone{
		Title:    "Next Milestone",
		Text:     fmt.Sprintf("Increase your savings rate by 12%% to reach the %s tier in your next analysis.", model.TopTier),
		Progress: nonTopMilestoneProgress,
	}
}
