// Package stage implements the Stage Registry: the fixed six-stage catalog
// of the production pipeline, the strongly-typed input/output structs
// naming each stage's boundary, and the narrow Worker interface that the
// opaque AI-backed stage implementations satisfy.
package stage

import (
	"context"
	"errors"

	"github.com/wisbric/dramaforge/pkg/artifact"
)

// ID names one of the six pipeline stages, in their fixed execution order,
// plus the Terminal pseudo-stage reached once all six have completed
//.
type ID string

const (
	ScriptParse    ID = "SCRIPT_PARSE"
	CharacterModel ID = "CHARACTER_MODEL"
	Storyboard     ID = "STORYBOARD"
	LipSync        ID = "LIP_SYNC"
	SoundMatch     ID = "SOUND_MATCH"
	Render         ID = "RENDER"
	Terminal       ID = "TERMINAL"
)

// Order is the fixed stage execution order.
var Order = []ID{ScriptParse, CharacterModel, Storyboard, LipSync, SoundMatch, Render}

// Weight is each stage's declared duration weight, used by the Progress
// Reporter's weighted progress_fraction.
var Weight = map[ID]int{
	ScriptParse:    5,
	CharacterModel: 10,
	Storyboard:     40,
	LipSync:        15,
	SoundMatch:     5,
	Render:         25,
}

// TotalWeight is the sum of all stage weights.
var TotalWeight = func() int {
	var total int
	for _, w := range Weight {
		total += w
	}
	return total
}()

// Next returns the stage immediately following id in Order, or Terminal if
// id is the last stage. Panics on an unrecognized id — a static programming
// error, not a runtime condition.
func Next(id ID) ID {
	for i, s := range Order {
		if s == id {
			if i == len(Order)-1 {
				return Terminal
			}
			return Order[i+1]
		}
	}
	panic("stage: unknown id " + string(id))
}

// Aspect, Quality, and Format are the allowed values for Production.Config
//.
type Aspect string

const (
	Aspect9x16 Aspect = "9:16"
	Aspect16x9 Aspect = "16:9"
	Aspect1x1  Aspect = "1:1"
)

type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4K"
)

type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMOV Format = "mov"
)

// Config is the production's render configuration.
type Config struct {
	Aspect        Aspect
	Quality       Quality
	Format        Format
	TargetMinutes float64
}

// ErrMissingPrerequisite is returned by an InputSelector when an earlier
// stage's output is required but absent. It is
// terminal for the production.
var ErrMissingPrerequisite = errors.New("stage: missing prerequisite output")

// --- Per-stage typed input/output structs ---

// SceneDescriptor is one scene parsed from the script (SCRIPT_PARSE output).
type SceneDescriptor struct {
	SceneID                 string   `json:"scene_id"`
	Type                    string   `json:"type"`
	Actions                 []string `json:"actions"`
	Emotions                []string `json:"emotions"`
	Keywords                []string `json:"keywords"`
	DurationEstimateSeconds float64  `json:"duration_estimate_seconds"`
}

type ScriptParseInput struct {
	Script string
}

type ScriptParseOutput struct {
	Scenes []SceneDescriptor `json:"scenes"`
}

// CharacterFeatureModel is one character's extracted feature model
// (CHARACTER_MODEL output), referencing its stored model blob.
type CharacterFeatureModel struct {
	CharacterID string       `json:"character_id"`
	ModelRef    artifact.Ref `json:"model_ref"`
}

type CharacterModelInput struct {
	CharacterRefs []artifact.Ref
}

type CharacterModelOutput struct {
	Models []CharacterFeatureModel `json:"models"`
}

// Frame is one generated storyboard frame (STORYBOARD output).
type Frame struct {
	SceneID string       `json:"scene_id"`
	Index   int          `json:"index"`
	Ref     artifact.Ref `json:"ref"`
}

type StoryboardInput struct {
	Scenes     []SceneDescriptor
	Characters []CharacterFeatureModel
}

type StoryboardOutput struct {
	Frames []Frame `json:"frames"`
}

// Keyframe is one lip-sync keyframe descriptor for a single frame
// (LIP_SYNC output).
type Keyframe struct {
	FrameIndex int    `json:"frame_index"`
	OffsetMS   int    `json:"offset_ms"`
	MouthShape string `json:"mouth_shape"`
}

type LipSyncInput struct {
	NarrationRef *artifact.Ref
	Frames       []Frame
}

// LipSyncOutput is empty (Keyframes == nil) when the stage was skipped
// because no narration was supplied.
type LipSyncOutput struct {
	Keyframes []Keyframe `json:"keyframes"`
	Skipped   bool       `json:"skipped"`
}

// SoundPlacement is one sound-effect placement for a scene
// (SOUND_MATCH output).
type SoundPlacement struct {
	SceneID         string  `json:"scene_id"`
	EffectID        string  `json:"effect_id"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type SoundMatchInput struct {
	Scenes []SceneDescriptor
}

type SoundMatchOutput struct {
	Placements []SoundPlacement `json:"placements"`
}

// RenderInput is the final stage's consolidated input: every prior stage's
// output plus the production's render config.
type RenderInput struct {
	Frames       []Frame
	NarrationRef *artifact.Ref
	Placements   []SoundPlacement
	Keyframes    []Keyframe
	Config       Config
}

type RenderOutput struct {
	VideoRef artifact.Ref `json:"video_ref"`
}

// Worker is the narrow boundary every opaque, AI-backed stage
// implementation satisfies: run(input) -> output | error. The
// Stage Registry is responsible for producing an input of the concrete type
// each stage's Worker expects and for type-asserting its output.
type Worker interface {
	Run(ctx context.Context, input any) (output any, err error)
}
