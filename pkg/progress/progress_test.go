package progress

import (
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/stage"
)

func newProduction(quality stage.Quality) production.Production {
	return production.Production{
		ID:           uuid.New(),
		Status:       production.StatusRunning,
		CurrentStage: stage.ScriptParse,
		Config:       stage.Config{Quality: quality},
	}
}

func TestForFreshProductionHasZeroProgress(t *testing.T) {
	p := newProduction(stage.Quality1080p)
	v := For(p)

	if v.ProgressFraction != 0 {
		t.Errorf("ProgressFraction = %v, want 0", v.ProgressFraction)
	}
	if v.EstimatedRemainingSecs != baselineSeconds[stage.Quality1080p] {
		t.Errorf("EstimatedRemainingSecs = %v, want full baseline", v.EstimatedRemainingSecs)
	}
}

func TestForWeightsStoryboardHeavily(t *testing.T) {
	p := newProduction(stage.Quality1080p)
	p.StageOutputs.ScriptParse = &stage.ScriptParseOutput{}
	p.StageOutputs.CharacterModel = &stage.CharacterModelOutput{}

	v := For(p)

	want := float64(stage.Weight[stage.ScriptParse]+stage.Weight[stage.CharacterModel]) / float64(stage.TotalWeight)
	if v.ProgressFraction != want {
		t.Errorf("ProgressFraction = %v, want %v", v.ProgressFraction, want)
	}
	if v.StagesCompleted != 2 {
		t.Errorf("StagesCompleted = %d, want 2", v.StagesCompleted)
	}
}

func TestForCompletedProductionIsFullProgress(t *testing.T) {
	p := newProduction(stage.Quality720p)
	p.Status = production.StatusCompleted

	v := For(p)

	if v.ProgressFraction != 1.0 {
		t.Errorf("ProgressFraction = %v, want 1.0", v.ProgressFraction)
	}
	if v.EstimatedRemainingSecs != 0 {
		t.Errorf("EstimatedRemainingSecs = %v, want 0", v.EstimatedRemainingSecs)
	}
}

func TestForUnknownQualityFallsBackToDefaultBaseline(t *testing.T) {
	p := newProduction(stage.Quality(""))
	v := For(p)

	if v.EstimatedRemainingSecs != defaultBaselineSeconds {
		t.Errorf("EstimatedRemainingSecs = %v, want %v", v.EstimatedRemainingSecs, defaultBaselineSeconds)
	}
}
