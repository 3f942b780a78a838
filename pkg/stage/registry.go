package stage

import (
	"fmt"
	"time"

	"github.com/wisbric/dramaforge/pkg/artifact"
)

// ProductionView is the narrow read-only view of a production that an
// InputSelector needs. pkg/production's Production type implements it; this
// package cannot import pkg/production (which imports this package for its
// stage_outputs and Config types), so the dependency runs one way.
type ProductionView interface {
	Script() string
	CharacterRefsView() []artifact.Ref
	NarrationRefView() *artifact.Ref
	ConfigView() Config
	OutputView(id ID) (any, bool)
}

// RetryPolicy governs how a stage's transient worker errors are retried
//.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy applies to every stage except RENDER: a 10 minute
// stage timeout with up to 3 attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, Timeout: 10 * time.Minute}

// RenderRetryPolicy applies to RENDER.
var RenderRetryPolicy = RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, Timeout: 30 * time.Minute}

// Entry is one Stage Registry catalog entry.
type Entry struct {
	ID            ID
	Weight        int
	Retry         RetryPolicy
	InputSelector func(ProductionView) (any, error)
	IsSkippable   func(ProductionView) bool
	Worker        Worker
}

// Registry is the catalog of all six stages, keyed by ID. It never changes
// after construction; callers share one Registry across productions.
type Registry struct {
	entries map[ID]Entry
}

// NewRegistry builds the Stage Registry with the given worker
// implementations, wiring each stage's fixed input selector and
// skippability check. workers must have exactly one entry per ID in Order.
func NewRegistry(workers map[ID]Worker) (*Registry, error) {
	for _, id := range Order {
		if _, ok := workers[id]; !ok {
			return nil, fmt.Errorf("stage: missing worker for %s", id)
		}
	}

	r := &Registry{entries: make(map[ID]Entry, len(Order))}
	r.entries[ScriptParse] = Entry{
		ID:            ScriptParse,
		Weight:        Weight[ScriptParse],
		Retry:         DefaultRetryPolicy,
		Worker:        workers[ScriptParse],
		InputSelector: selectScriptParseInput,
		IsSkippable:   neverSkippable,
	}
	r.entries[CharacterModel] = Entry{
		ID:            CharacterModel,
		Weight:        Weight[CharacterModel],
		Retry:         DefaultRetryPolicy,
		Worker:        workers[CharacterModel],
		InputSelector: selectCharacterModelInput,
		IsSkippable:   neverSkippable,
	}
	r.entries[Storyboard] = Entry{
		ID:            Storyboard,
		Weight:        Weight[Storyboard],
		Retry:         DefaultRetryPolicy,
		Worker:        workers[Storyboard],
		InputSelector: selectStoryboardInput,
		IsSkippable:   neverSkippable,
	}
	r.entries[LipSync] = Entry{
		ID:            LipSync,
		Weight:        Weight[LipSync],
		Retry:         DefaultRetryPolicy,
		Worker:        workers[LipSync],
		InputSelector: selectLipSyncInput,
		IsSkippable:   lipSyncSkippable,
	}
	r.entries[SoundMatch] = Entry{
		ID:            SoundMatch,
		Weight:        Weight[SoundMatch],
		Retry:         DefaultRetryPolicy,
		Worker:        workers[SoundMatch],
		InputSelector: selectSoundMatchInput,
		IsSkippable:   neverSkippable,
	}
	r.entries[Render] = Entry{
		ID:            Render,
		Weight:        Weight[Render],
		Retry:         RenderRetryPolicy,
		Worker:        workers[Render],
		InputSelector: selectRenderInput,
		IsSkippable:   neverSkippable,
	}
	return r, nil
}

// Get returns the catalog entry for id. ok is false for an unknown id (never
// Terminal, which has no entry).
func (r *Registry) Get(id ID) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func neverSkippable(ProductionView) bool { return false }

// lipSyncSkippable is true when the production has no narration audio
//.
func lipSyncSkippable(p ProductionView) bool {
	return p.NarrationRefView() == nil
}

func selectScriptParseInput(p ProductionView) (any, error) {
	return ScriptParseInput{Script: p.Script()}, nil
}

func selectCharacterModelInput(p ProductionView) (any, error) {
	return CharacterModelInput{CharacterRefs: p.CharacterRefsView()}, nil
}

func selectStoryboardInput(p ProductionView) (any, error) {
	scenes, err := scenesFromOutput(p)
	if err != nil {
		return nil, err
	}
	chars, err := charactersFromOutput(p)
	if err != nil {
		return nil, err
	}
	return StoryboardInput{Scenes: scenes, Characters: chars}, nil
}

func selectLipSyncInput(p ProductionView) (any, error) {
	frames, err := framesFromOutput(p)
	if err != nil {
		return nil, err
	}
	return LipSyncInput{NarrationRef: p.NarrationRefView(), Frames: frames}, nil
}

func selectSoundMatchInput(p ProductionView) (any, error) {
	scenes, err := scenesFromOutput(p)
	if err != nil {
		return nil, err
	}
	return SoundMatchInput{Scenes: scenes}, nil
}

func selectRenderInput(p ProductionView) (any, error) {
	frames, err := framesFromOutput(p)
	if err != nil {
		return nil, err
	}
	placements, err := placementsFromOutput(p)
	if err != nil {
		return nil, err
	}
	keyframes, err := keyframesFromOutput(p)
	if err != nil {
		return nil, err
	}
	return RenderInput{
		Frames:       frames,
		NarrationRef: p.NarrationRefView(),
		Placements:   placements,
		Keyframes:    keyframes,
		Config:       p.ConfigView(),
	}, nil
}

func scenesFromOutput(p ProductionView) ([]SceneDescriptor, error) {
	out, ok := p.OutputView(ScriptParse)
	if !ok {
		return nil, fmt.Errorf("%w: %s output required", ErrMissingPrerequisite, ScriptParse)
	}
	parsed, ok := out.(ScriptParseOutput)
	if !ok {
		return nil, fmt.Errorf("stage: %s output has unexpected type %T", ScriptParse, out)
	}
	return parsed.Scenes, nil
}

func charactersFromOutput(p ProductionView) ([]CharacterFeatureModel, error) {
	out, ok := p.OutputView(CharacterModel)
	if !ok {
		return nil, fmt.Errorf("%w: %s output required", ErrMissingPrerequisite, CharacterModel)
	}
	parsed, ok := out.(CharacterModelOutput)
	if !ok {
		return nil, fmt.Errorf("stage: %s output has unexpected type %T", CharacterModel, out)
	}
	return parsed.Models, nil
}

func framesFromOutput(p ProductionView) ([]Frame, error) {
	out, ok := p.OutputView(Storyboard)
	if !ok {
		return nil, fmt.Errorf("%w: %s output required", ErrMissingPrerequisite, Storyboard)
	}
	parsed, ok := out.(StoryboardOutput)
	if !ok {
		return nil, fmt.Errorf("stage: %s output has unexpected type %T", Storyboard, out)
	}
	return parsed.Frames, nil
}

func placementsFromOutput(p ProductionView) ([]SoundPlacement, error) {
	out, ok := p.OutputView(SoundMatch)
	if !ok {
		return nil, fmt.Errorf("%w: %s output required", ErrMissingPrerequisite, SoundMatch)
	}
	parsed, ok := out.(SoundMatchOutput)
	if !ok {
		return nil, fmt.Errorf("stage: %s output has unexpected type %T", SoundMatch, out)
	}
	return parsed.Placements, nil
}

func keyframesFromOutput(p ProductionView) ([]Keyframe, error) {
	out, ok := p.OutputView(LipSync)
	if !ok {
		// LIP_SYNC may have been skipped; an absent entry after it has run
		// is a genuine missing prerequisite, but RENDER only ever runs
		// after LIP_SYNC completes (skipped or not), so reaching here
		// means LIP_SYNC truly never ran.
		return nil, fmt.Errorf("%w: %s output required", ErrMissingPrerequisite, LipSync)
	}
	parsed, ok := out.(LipSyncOutput)
	if !ok {
		return nil, fmt.Errorf("stage: %s output has unexpected type %T", LipSync, out)
	}
	return parsed.Keyframes, nil
}
