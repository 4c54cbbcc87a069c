package scoreapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/crediscout/internal/domain/model"
)

type insightWire struct {
	Feature  string   `json:"feature"`
	Impact   *float64 `json:"impact"`
	Positive *bool    `json:"positive"`
}

type analyticsWire struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage *float64        `json:"percentage"`
}

type dashboardResponse struct {
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	ID           string          `json:"id"`
	Score        *float64        `json:"score"`
	Tier         string          `json:"tier"`
	Insights     []insightWire   `json:"insights"`
	Analytics    []analyticsWire `json:"analytics"`
	Filename     string          `json:"filename"`
	CreatedAt    timestamp       `json:"created_at"`
	CreatedAtISO timestamp       `json:"created_at_iso"`
}

// isEmpty matches the {"message": "No scores found", "data": null} answer.
func (d dashboardResponse) isEmpty() bool {
	if d.ID != "" || d.Score != nil {
		return false
	}
	if d.Message == noScoresMarker {
		return true
	}
	data := bytes.TrimSpace(d.Data)
	return d.Message != "" && (len(data) == 0 || bytes.Equal(data, []byte("null")))
}

func (d dashboardResponse) result() (model.SnapshotResult, error) {
	if d.isEmpty() {
		return model.SnapshotResult{Empty: true}, nil
	}

	if strings.TrimSpace(d.ID) == "" {
		return model.SnapshotResult{}, fmt.Errorf("%w: snapshot has no id", ErrInvalidPayload)
	}
	if d.Score == nil || !finite(*d.Score) {
		return model.SnapshotResult{}, fmt.Errorf("%w: snapshot %s has no numeric score", ErrInvalidPayload, d.ID)
	}
	if strings.TrimSpace(d.Tier) == "" {
		return model.SnapshotResult{}, fmt.Errorf("%w: snapshot %s has no tier", ErrInvalidPayload, d.ID)
	}

	vm := &model.ViewModel{
		ID:        d.ID,
		Score:     *d.Score,
		Tier:      model.Tier(strings.ToUpper(strings.TrimSpace(d.Tier))),
		Filename:  d.Filename,
		CreatedAt: d.CreatedAtISO.Time,
		Analytics: make([]model.CategoryShare, 0, len(d.Analytics)),
		Insights:  make([]model.Insight, 0, len(d.Insights)),
	}
	if vm.CreatedAt.IsZero() {
		vm.CreatedAt = d.CreatedAt.Time
	}

	for i, a := range d.Analytics {
		if a.Percentage == nil || !finite(*a.Percentage) {
			return model.SnapshotResult{}, fmt.Errorf("%w: analytics[%d] has no numeric percentage", ErrInvalidPayload, i)
		}
		vm.Analytics = append(vm.Analytics, model.CategoryShare{
			Category:   a.Category,
			Amount:     a.Amount,
			Percentage: *a.Percentage,
		})
	}

	for i, in := range d.Insights {
		if in.Impact == nil || !finite(*in.Impact) {
			return model.SnapshotResult{}, fmt.Errorf("%w: insights[%d] has no numeric impact", ErrInvalidPayload, i)
		}
		positive := false
		if in.Positive != nil {
			positive = *in.Positive
		}
		vm.Insights = append(vm.Insights, model.Insight{
			Feature:  in.Feature,
			Impact:   *in.Impact,
			Positive: positive,
		})
	}

	return model.SnapshotResult{ViewModel: vm}, nil
}

type historyEntry struct {
	ID        string    `json:"id"`
	Score     *float64  `json:"score"`
	CreatedAt timestamp `json:"created_at"`
}

func historyResult(entries []historyEntry) (model.ScoreHistory, error) {
	h := make(model.ScoreHistory, 0, len(entries))
	for i, e := range entries {
		if e.Score == nil || !finite(*e.Score) {
			return nil, fmt.Errorf("%w: scores[%d] has no numeric score", ErrInvalidPayload, i)
		}
		h = append(h, model.ScoreSnapshot{ID: e.ID, Score: *e.Score, Timestamp: e.CreatedAt.Time})
	}
	return h, nil
}

type uploadResponse struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score"`
	Tier  string   `json:"tier"`
}

func (u uploadResponse) receipt() model.UploadReceipt {
	r := model.UploadReceipt{ID: u.ID, Tier: model.Tier(strings.ToUpper(u.Tier))}
	if u.Score != nil {
		r.Score = *u.Score
	}
	return r
}

// timestamp accepts an ISO-8601 string, a {"seconds": n} object, or a bare
// number of epoch seconds. Anything else decodes to the zero time.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return nil
	case '{':
		var obj struct {
			Seconds float64 `json:"seconds"`
			Legacy  float64 `json:"_seconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		secs := obj.Seconds
		if secs == 0 {
			secs = obj.Legacy
		}
		if secs > 0 {
			t.Time = fromEpoch(secs)
		}
		return nil
	default:
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return nil
		}
		if secs > 0 {
			t.Time = fromEpoch(secs)
		}
		return nil
	}
}

func fromEpoch(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
