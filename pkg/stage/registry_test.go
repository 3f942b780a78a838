package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/wisbric/dramaforge/pkg/artifact"
)

type fakeWorker struct {
	output any
	err    error
}

func (f fakeWorker) Run(context.Context, any) (any, error) {
	return f.output, f.err
}

func allFakeWorkers() map[ID]Worker {
	return map[ID]Worker{
		ScriptParse:    fakeWorker{},
		CharacterModel: fakeWorker{},
		Storyboard:     fakeWorker{},
		LipSync:        fakeWorker{},
		SoundMatch:     fakeWorker{},
		Render:         fakeWorker{},
	}
}

type fakeView struct {
	script    string
	charRefs  []artifact.Ref
	narration *artifact.Ref
	config    Config
	outputs   map[ID]any
}

func (v fakeView) Script() string                    { return v.script }
func (v fakeView) CharacterRefsView() []artifact.Ref { return v.charRefs }
func (v fakeView) NarrationRefView() *artifact.Ref   { return v.narration }
func (v fakeView) ConfigView() Config                { return v.config }
func (v fakeView) OutputView(id ID) (any, bool) {
	out, ok := v.outputs[id]
	return out, ok
}

func TestNewRegistryRequiresAllWorkers(t *testing.T) {
	workers := allFakeWorkers()
	delete(workers, Render)
	if _, err := NewRegistry(workers); err == nil {
		t.Fatal("expected error for missing Render worker")
	}
}

func TestRegistryGetUnknownStage(t *testing.T) {
	r, err := NewRegistry(allFakeWorkers())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := r.Get(Terminal); ok {
		t.Fatal("expected no entry for Terminal")
	}
	if _, ok := r.Get(ScriptParse); !ok {
		t.Fatal("expected entry for ScriptParse")
	}
}

func TestLipSyncSkippableWithoutNarration(t *testing.T) {
	r, err := NewRegistry(allFakeWorkers())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	entry, _ := r.Get(LipSync)
	view := fakeView{}
	if !entry.IsSkippable(view) {
		t.Fatal("expected LIP_SYNC skippable without narration")
	}

	ref := artifact.Ref("local://narration.wav")
	view.narration = &ref
	if entry.IsSkippable(view) {
		t.Fatal("expected LIP_SYNC not skippable with narration")
	}
}

func TestStoryboardInputSelectorRequiresPrerequisites(t *testing.T) {
	r, err := NewRegistry(allFakeWorkers())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	entry, _ := r.Get(Storyboard)

	if _, err := entry.InputSelector(fakeView{}); !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("expected ErrMissingPrerequisite, got %v", err)
	}

	view := fakeView{
		outputs: map[ID]any{
			ScriptParse:    ScriptParseOutput{Scenes: []SceneDescriptor{{SceneID: "s1"}}},
			CharacterModel: CharacterModelOutput{Models: []CharacterFeatureModel{{CharacterID: "c1"}}},
		},
	}
	input, err := entry.InputSelector(view)
	if err != nil {
		t.Fatalf("InputSelector: %v", err)
	}
	sbInput, ok := input.(StoryboardInput)
	if !ok {
		t.Fatalf("expected StoryboardInput, got %T", input)
	}
	if len(sbInput.Scenes) != 1 || len(sbInput.Characters) != 1 {
		t.Fatalf("unexpected input contents: %+v", sbInput)
	}
}

func TestRenderInputSelectorAssemblesAllPriorOutputs(t *testing.T) {
	r, err := NewRegistry(allFakeWorkers())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	entry, _ := r.Get(Render)

	view := fakeView{
		config: Config{Aspect: Aspect9x16, Quality: Quality1080p, Format: FormatMP4, TargetMinutes: 2},
		outputs: map[ID]any{
			Storyboard: StoryboardOutput{Frames: []Frame{{SceneID: "s1", Index: 0}}},
			SoundMatch: SoundMatchOutput{Placements: []SoundPlacement{{SceneID: "s1", EffectID: "e1"}}},
			LipSync:    LipSyncOutput{Skipped: true},
		},
	}
	input, err := entry.InputSelector(view)
	if err != nil {
		t.Fatalf("InputSelector: %v", err)
	}
	renderInput, ok := input.(RenderInput)
	if !ok {
		t.Fatalf("expected RenderInput, got %T", input)
	}
	if len(renderInput.Frames) != 1 || len(renderInput.Placements) != 1 {
		t.Fatalf("unexpected render input: %+v", renderInput)
	}
	if renderInput.Config.Quality != Quality1080p {
		t.Fatalf("expected config to be carried through, got %+v", renderInput.Config)
	}
}

func TestNextStageOrderAndTerminal(t *testing.T) {
	if Next(ScriptParse) != CharacterModel {
		t.Fatal("expected SCRIPT_PARSE -> CHARACTER_MODEL")
	}
	if Next(Render) != Terminal {
		t.Fatal("expected RENDER -> TERMINAL")
	}
}
