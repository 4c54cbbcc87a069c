// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Display constants.
const (
	shortIDLength      = 8
	defaultSourceLabel = "System Sample"
	MinScore           = 0.0
	MaxScore           = 100.0
	PercentageScale    = 100.0
)

// Tier is the qualitative classification of a score, as decided upstream.
type Tier string

// Known tiers, ordered from best to worst.
const (
	TierStable   Tier = "STABLE"
	TierModerate Tier = "MODERATE"
	TierRisky    Tier = "RISKY"
)

// TopTier is the best tier a user can reach.
const TopTier = TierStable

// Known reports whether t is one of the enumerated tiers.
func (t Tier) Known() bool {
	switch t {
	case TierStable, TierModerate, TierRisky:
		return true
	default:
		return false
	}
}

// IsTop reports whether t is the top tier.
func (t Tier) IsTop() bool { return t == TopTier }

// CategoryShare is one line of the spending breakdown.
// Percentages of a sequence are not guaranteed to sum to 100.
type CategoryShare struct {
	Category   string
	Amount     decimal.Decimal
	Percentage float64
}

// Insight is one behavioral feature and its contribution to the score.
// Positive is authoritative and may disagree with the sign of Impact.
type Insight struct {
	Feature  string
	Impact   float64
	Positive bool
}

// ViewModel is the render-ready snapshot for one user at one point in time.
type ViewModel struct {
	ID        string
	Score     float64
	Tier      Tier
	Analytics []CategoryShare
	Insights  []Insight
	CreatedAt time.Time
	Filename  string
}

// Clone returns a deep copy so readers never share slices with the writer.
func (v *ViewModel) Clone() *ViewModel {
	if v == nil {
		return nil
	}
	c := *v
	c.Analytics = append([]CategoryShare(nil), v.Analytics...)
	c.Insights = append([]Insight(nil), v.Insights...)
	return &c
}

// ShortID is the abbreviated snapshot id shown in headers.
func (v *ViewModel) ShortID() string {
	return shorten(v.ID)
}

// SourceLabel names the file the snapshot was computed from.
func (v *ViewModel) SourceLabel() string {
	if v.Filename == "" {
		return defaultSourceLabel
	}
	return v.Filename
}

// SnapshotResult is the discriminated answer for the latest snapshot: either
// a scored view model or the explicit "nothing scored yet" marker.
type SnapshotResult struct {
	Empty     bool
	ViewModel *ViewModel
}

// ScoreSnapshot is one historical score.
type ScoreSnapshot struct {
	ID        string
	Score     float64
	Timestamp time.Time
}

// ScoreHistory is ordered chronologically, oldest first.
type ScoreHistory []ScoreSnapshot

// Scores returns the score values in order.
func (h ScoreHistory) Scores() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.Score
	}
	return out
}

// Clone returns a copy of the history.
func (h ScoreHistory) Clone() ScoreHistory {
	if h == nil {
		return nil
	}
	return append(ScoreHistory(nil), h...)
}

// UploadPhase is the lifecycle position of an UploadTask.
type UploadPhase string

// Upload phases.
const (
	PhaseIdle      UploadPhase = "idle"
	PhaseUploading UploadPhase = "uploading"
	PhaseVerifying UploadPhase = "verifying"
	PhaseDone      UploadPhase = "done"
	PhaseFailed    UploadPhase = "failed"
)

// Terminal reports whether no further transitions happen from p.
func (p UploadPhase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// UploadTask is one in-flight file submission.
type UploadTask struct {
	ID       uuid.UUID
	FileName string
	Size     int64
	Progress int // 0..100, monotonic while uploading
	Phase    UploadPhase
	Message  string // failure detail, empty otherwise
}

// UploadReceipt is the scoring service's answer to an accepted upload.
type UploadReceipt struct {
	ID    string
	Score float64
	Tier  Tier
}

// Route names a surface the client can navigate to.
type Route string

// Routes.
const (
	RouteSignIn    Route = "/login"
	RouteDashboard Route = "/dashboard"
	RouteUpload    Route = "/upload"
	RouteAnalytics Route = "/analytics"
)

// Profile is the identity metadata shown on the profile surface.
type Profile struct {
	UID         string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// InstitutionalID is the abbreviated uid shown on the profile.
func (p Profile) InstitutionalID() string { return shorten(p.UID) }

func shorten(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}
