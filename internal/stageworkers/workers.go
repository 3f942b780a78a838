// Package stageworkers provides thin client adapters for the six opaque,
// AI-backed stage implementations that sit outside this core: speech-to-
// phoneme analysis, character feature extraction, image generation,
// lip-sync keyframe synthesis, and video encoding, each exposed as a
// worker with one run(input) -> output | error call. Each adapter here is
// a thin struct wrapping a dependency with one Run method per call,
// generalized from "post to a chat API" to "call a model endpoint and
// persist its result to the Artifact Store". No model SDK is wired, since
// the models themselves are treated as external; these adapters write
// deterministic placeholder content so the Workflow Engine's stage cascade
// is fully exercisable end to end without a live model backend.
package stageworkers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/stage"
)

// ScriptParser calls out to the speech/script-analysis model that splits a
// script into ordered scene descriptors.
type ScriptParser struct{}

// NewScriptParser creates a ScriptParser worker.
func NewScriptParser() *ScriptParser { return &ScriptParser{} }

// Run implements stage.Worker for SCRIPT_PARSE.
func (w *ScriptParser) Run(_ context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.ScriptParseInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for script_parse", rawInput)
	}

	lines := strings.Split(strings.TrimSpace(input.Script), "\n")
	scenes := make([]stage.SceneDescriptor, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		scenes = append(scenes, stage.SceneDescriptor{
			SceneID:                 fmt.Sprintf("scene-%03d", i+1),
			Type:                    "dialogue",
			Actions:                 []string{"speak"},
			Emotions:                []string{"neutral"},
			Keywords:                strings.Fields(line),
			DurationEstimateSeconds: 4,
		})
	}
	if len(scenes) == 0 {
		scenes = append(scenes, stage.SceneDescriptor{
			SceneID:                 "scene-001",
			Type:                    "dialogue",
			Actions:                 []string{"speak"},
			Emotions:                []string{"neutral"},
			DurationEstimateSeconds: 4,
		})
	}
	return stage.ScriptParseOutput{Scenes: scenes}, nil
}

// CharacterModeler calls out to the character feature-extraction model.
type CharacterModeler struct{}

// NewCharacterModeler creates a CharacterModeler worker.
func NewCharacterModeler() *CharacterModeler { return &CharacterModeler{} }

// Run implements stage.Worker for CHARACTER_MODEL.
func (w *CharacterModeler) Run(_ context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.CharacterModelInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for character_model", rawInput)
	}

	models := make([]stage.CharacterFeatureModel, len(input.CharacterRefs))
	for i, ref := range input.CharacterRefs {
		models[i] = stage.CharacterFeatureModel{
			CharacterID: fmt.Sprintf("character-%03d", i+1),
			ModelRef:    artifact.Ref(ref.String() + "#model"),
		}
	}
	return stage.CharacterModelOutput{Models: models}, nil
}

// StoryboardGenerator calls out to the image-generation model that renders
// one frame per scene.
type StoryboardGenerator struct {
	store artifact.Store
}

// NewStoryboardGenerator creates a StoryboardGenerator worker backed by the
// Artifact Store frames are written to.
func NewStoryboardGenerator(store artifact.Store) *StoryboardGenerator {
	return &StoryboardGenerator{store: store}
}

// Run implements stage.Worker for STORYBOARD.
func (w *StoryboardGenerator) Run(ctx context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.StoryboardInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for storyboard", rawInput)
	}

	frames := make([]stage.Frame, 0, len(input.Scenes))
	for i, scene := range input.Scenes {
		key := fmt.Sprintf("frames/%s/%s.png", scene.SceneID, uuid.NewString())
		ref, err := w.store.Put(ctx, key, []byte("placeholder-frame:"+scene.SceneID), "image/png")
		if err != nil {
			return nil, fmt.Errorf("stageworkers: storing frame: %w", err)
		}
		frames = append(frames, stage.Frame{SceneID: scene.SceneID, Index: i, Ref: ref})
	}
	return stage.StoryboardOutput{Frames: frames}, nil
}

// LipSyncSynthesizer calls out to the lip-sync keyframe-synthesis model.
// The Stage Registry only invokes this worker when narration is present
//; when narration is absent, runStage records an
// empty output directly without calling Run.
type LipSyncSynthesizer struct{}

// NewLipSyncSynthesizer creates a LipSyncSynthesizer worker.
func NewLipSyncSynthesizer() *LipSyncSynthesizer { return &LipSyncSynthesizer{} }

// Run implements stage.Worker for LIP_SYNC.
func (w *LipSyncSynthesizer) Run(_ context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.LipSyncInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for lip_sync", rawInput)
	}

	keyframes := make([]stage.Keyframe, len(input.Frames))
	for i, f := range input.Frames {
		keyframes[i] = stage.Keyframe{
			FrameIndex: f.Index,
			OffsetMS:   i * 200,
			MouthShape: "closed",
		}
	}
	return stage.LipSyncOutput{Keyframes: keyframes}, nil
}

// SoundMatcher calls out to the sound-effect matching model, choosing an
// effect from the asset library's catalog per scene. The catalog itself is
// the external asset-library collaborator; this adapter only
// assigns a placeholder effect id per scene.
type SoundMatcher struct{}

// NewSoundMatcher creates a SoundMatcher worker.
func NewSoundMatcher() *SoundMatcher { return &SoundMatcher{} }

// Run implements stage.Worker for SOUND_MATCH.
func (w *SoundMatcher) Run(_ context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.SoundMatchInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for sound_match", rawInput)
	}

	placements := make([]stage.SoundPlacement, len(input.Scenes))
	for i, scene := range input.Scenes {
		placements[i] = stage.SoundPlacement{
			SceneID:         scene.SceneID,
			EffectID:        "effect-ambience-" + strconv.Itoa(i%3),
			StartSeconds:    0,
			DurationSeconds: scene.DurationEstimateSeconds,
		}
	}
	return stage.SoundMatchOutput{Placements: placements}, nil
}

// VideoRenderer calls out to the video-encoding model that composites
// frames, narration, sound placements and lip-sync keyframes into the
// final artifact.
type VideoRenderer struct {
	store artifact.Store
}

// NewVideoRenderer creates a VideoRenderer worker backed by the Artifact
// Store the final video is written to.
func NewVideoRenderer(store artifact.Store) *VideoRenderer {
	return &VideoRenderer{store: store}
}

// Run implements stage.Worker for RENDER.
func (w *VideoRenderer) Run(ctx context.Context, rawInput any) (any, error) {
	input, ok := rawInput.(stage.RenderInput)
	if !ok {
		return nil, fmt.Errorf("stageworkers: unexpected input type %T for render", rawInput)
	}

	ext := "mp4"
	if input.Config.Format == stage.FormatMOV {
		ext = "mov"
	}
	key := fmt.Sprintf("renders/%s-%d.%s", uuid.NewString(), time.Now().UnixNano(), ext)
	ref, err := w.store.Put(ctx, key, []byte(fmt.Sprintf("placeholder-video:%d-frames", len(input.Frames))), "video/"+ext)
	if err != nil {
		return nil, fmt.Errorf("stageworkers: storing render: %w", err)
	}
	return stage.RenderOutput{VideoRef: ref}, nil
}
