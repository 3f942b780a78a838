// Package progress derives a monotonic, stage-weighted progress view
// purely from a Production's stored state, with no separate progress
// store. Progress is weighted by stage.Weight rather than by step count,
// so a production sitting in the 40%-weighted STORYBOARD stage reports
// further along than a flat per-step count would show.
package progress

import (
	"time"

	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/stage"
)

// baselineSeconds is the declared per-quality-tier render baseline: the
// wall-clock time a production of that output quality is expected to take
// end to end, used to project estimated_remaining_seconds off the
// weighted fraction already completed.
var baselineSeconds = map[stage.Quality]float64{
	stage.Quality720p:  600,  // 10 minutes
	stage.Quality1080p: 1200, // 20 minutes
	stage.Quality4K:    2700, // 45 minutes
}

// defaultBaselineSeconds is used if a production's configured quality has
// no baseline entry (should not happen given stage.Quality's closed set).
const defaultBaselineSeconds = 1200

// View is the derived progress snapshot for one production.
type View struct {
	ProductionID           string    `json:"production_id"`
	Status                 string    `json:"status"`
	CurrentStage           stage.ID  `json:"current_stage"`
	StagesCompleted        int       `json:"stages_completed"`
	TotalStages            int       `json:"total_stages"`
	ProgressFraction       float64   `json:"progress_fraction"`
	EstimatedRemainingSecs float64   `json:"estimated_remaining_seconds"`
	LastError              *string   `json:"last_error,omitempty"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// For computes the progress view of p. progress_fraction is the sum of
// weights of completed stages over the total stage weight; it is 1.0 once
// status is COMPLETED regardless of rounding, and does not itself decrease
// on FAILED/CANCELLED — those are terminal snapshots of whatever fraction
// had been reached when the production stopped advancing.
func For(p production.Production) View {
	completed := p.StageOutputs.Completed()

	var doneWeight int
	for _, id := range completed {
		doneWeight += stage.Weight[id]
	}

	fraction := 0.0
	if stage.TotalWeight > 0 {
		fraction = float64(doneWeight) / float64(stage.TotalWeight)
	}
	if p.Status == production.StatusCompleted {
		fraction = 1.0
	}

	baseline, ok := baselineSeconds[p.Config.Quality]
	if !ok {
		baseline = defaultBaselineSeconds
	}
	remaining := (1 - fraction) * baseline
	if remaining < 0 {
		remaining = 0
	}

	var lastErr *string
	if p.LastError != nil {
		msg := p.LastError.Message
		lastErr = &msg
	}

	return View{
		ProductionID:           p.ID.String(),
		Status:                 string(p.Status),
		CurrentStage:           p.CurrentStage,
		StagesCompleted:        len(completed),
		TotalStages:            len(stage.Order),
		ProgressFraction:       fraction,
		EstimatedRemainingSecs: remaining,
		LastError:              lastErr,
		UpdatedAt:              p.UpdatedAt,
	}
}
