// Package production implements the Production Store and the Production
// entity: the durable record of every production's inputs,
// per-stage outputs, status, and current stage.
package production

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/stage"
)

// Status is one of the production's lifecycle states.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ErrorInfo records the last error that terminated or interrupted a
// production.
type ErrorInfo struct {
	Stage      stage.ID  `json:"stage"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StageOutputs is the struct-of-optionals modelling of stage_outputs (spec
// §9: "a struct-of-optionals, chosen to let the type system enforce
// invariant 1"). One field per stage; a nil field means the stage has not
// completed for this production.
type StageOutputs struct {
	ScriptParse    *stage.ScriptParseOutput    `json:"script_parse,omitempty"`
	CharacterModel *stage.CharacterModelOutput `json:"character_model,omitempty"`
	Storyboard     *stage.StoryboardOutput     `json:"storyboard,omitempty"`
	LipSync        *stage.LipSyncOutput        `json:"lip_sync,omitempty"`
	SoundMatch     *stage.SoundMatchOutput     `json:"sound_match,omitempty"`
	Render         *stage.RenderOutput         `json:"render,omitempty"`
}

// Get returns the stage's recorded output and whether it has completed.
func (o StageOutputs) Get(id stage.ID) (any, bool) {
	switch id {
	case stage.ScriptParse:
		if o.ScriptParse == nil {
			return nil, false
		}
		return *o.ScriptParse, true
	case stage.CharacterModel:
		if o.CharacterModel == nil {
			return nil, false
		}
		return *o.CharacterModel, true
	case stage.Storyboard:
		if o.Storyboard == nil {
			return nil, false
		}
		return *o.Storyboard, true
	case stage.LipSync:
		if o.LipSync == nil {
			return nil, false
		}
		return *o.LipSync, true
	case stage.SoundMatch:
		if o.SoundMatch == nil {
			return nil, false
		}
		return *o.SoundMatch, true
	case stage.Render:
		if o.Render == nil {
			return nil, false
		}
		return *o.Render, true
	default:
		return nil, false
	}
}

// Set records a stage's output. output must be the exact type the stage
// declares (e.g. stage.ScriptParseOutput for stage.ScriptParse), or an
// error is returned. Each stage may only be set once; setting an
// already-completed stage is a programming error reported as an error.
func (o *StageOutputs) Set(id stage.ID, output any) error {
	switch id {
	case stage.ScriptParse:
		v, ok := output.(stage.ScriptParseOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.ScriptParse != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.ScriptParse = &v
	case stage.CharacterModel:
		v, ok := output.(stage.CharacterModelOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.CharacterModel != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.CharacterModel = &v
	case stage.Storyboard:
		v, ok := output.(stage.StoryboardOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.Storyboard != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.Storyboard = &v
	case stage.LipSync:
		v, ok := output.(stage.LipSyncOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.LipSync != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.LipSync = &v
	case stage.SoundMatch:
		v, ok := output.(stage.SoundMatchOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.SoundMatch != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.SoundMatch = &v
	case stage.Render:
		v, ok := output.(stage.RenderOutput)
		if !ok {
			return fmt.Errorf("production: %s output has unexpected type %T", id, output)
		}
		if o.Render != nil {
			return fmt.Errorf("production: %s already completed", id)
		}
		o.Render = &v
	default:
		return fmt.Errorf("production: cannot record output for %s", id)
	}
	return nil
}

// Completed returns the stage IDs that have an entry, in declared order.
func (o StageOutputs) Completed() []stage.ID {
	var done []stage.ID
	for _, id := range stage.Order {
		if _, ok := o.Get(id); ok {
			done = append(done, id)
		}
	}
	return done
}

// CurrentStage returns the earliest stage with no entry, or stage.Terminal
// once every stage has one.
func (o StageOutputs) CurrentStage() stage.ID {
	for _, id := range stage.Order {
		if _, ok := o.Get(id); !ok {
			return id
		}
	}
	return stage.Terminal
}

// Production is the central entity.
type Production struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ScriptText     string
	CharacterRefs  []artifact.Ref
	NarrationRef   *artifact.Ref
	Config         stage.Config
	Status         Status
	CurrentStage   stage.ID
	StageOutputs   StageOutputs
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastError      *ErrorInfo
	LastRenderCost *float64
}

// The following methods implement stage.ProductionView, letting the Stage
// Registry's input selectors read production state without pkg/stage
// importing this package.

func (p *Production) Script() string                    { return p.ScriptText }
func (p *Production) CharacterRefsView() []artifact.Ref  { return p.CharacterRefs }
func (p *Production) NarrationRefView() *artifact.Ref    { return p.NarrationRef }
func (p *Production) ConfigView() stage.Config           { return p.Config }
func (p *Production) OutputView(id stage.ID) (any, bool) { return p.StageOutputs.Get(id) }

var _ stage.ProductionView = (*Production)(nil)

// ErrNotFound is returned when a production does not exist.
var ErrNotFound = errors.New("production: not found")

// ErrConflict is returned by Create when the id already exists.
var ErrConflict = errors.New("production: already exists")

// ErrVersionConflict is returned by Update on a failed compare-and-swap
//.
var ErrVersionConflict = errors.New("production: version conflict")
