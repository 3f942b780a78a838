package stageworkers

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/stage"
)

func TestScriptParserSplitsLinesIntoScenes(t *testing.T) {
	w := NewScriptParser()

	out, err := w.Run(context.Background(), stage.ScriptParseInput{
		Script: "INT. ALLEY - NIGHT\nA figure waits.\n\nThe rain falls.\n",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, ok := out.(stage.ScriptParseOutput)
	if !ok {
		t.Fatalf("unexpected output type %T", out)
	}
	if len(result.Scenes) != 3 {
		t.Fatalf("expected 3 non-blank lines to become 3 scenes, got %d", len(result.Scenes))
	}
	if result.Scenes[0].SceneID != "scene-001" {
		t.Errorf("expected first scene id scene-001, got %s", result.Scenes[0].SceneID)
	}
	if !strings.Contains(strings.Join(result.Scenes[1].Keywords, " "), "figure") {
		t.Errorf("expected keywords to include line words, got %v", result.Scenes[1].Keywords)
	}
}

func TestScriptParserEmptyScriptYieldsOneScene(t *testing.T) {
	w := NewScriptParser()

	out, err := w.Run(context.Background(), stage.ScriptParseInput{Script: "   \n\n  "})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := out.(stage.ScriptParseOutput)
	if len(result.Scenes) != 1 {
		t.Fatalf("expected a single fallback scene, got %d", len(result.Scenes))
	}
}

func TestScriptParserRejectsWrongInputType(t *testing.T) {
	w := NewScriptParser()
	if _, err := w.Run(context.Background(), stage.CharacterModelInput{}); err == nil {
		t.Fatal("expected error for mismatched input type")
	}
}

func TestSoundMatcherAssignsRoundRobinEffects(t *testing.T) {
	w := NewSoundMatcher()

	scenes := make([]stage.SceneDescriptor, 5)
	for i := range scenes {
		scenes[i] = stage.SceneDescriptor{SceneID: "scene-" + strconv.Itoa(i), DurationEstimateSeconds: 4}
	}

	out, err := w.Run(context.Background(), stage.SoundMatchInput{Scenes: scenes})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := out.(stage.SoundMatchOutput)
	if len(result.Placements) != 5 {
		t.Fatalf("expected 5 placements, got %d", len(result.Placements))
	}
	if result.Placements[0].EffectID != result.Placements[3].EffectID {
		t.Errorf("expected round-robin period of 3 to repeat by the 4th scene")
	}
	if result.Placements[0].EffectID == result.Placements[1].EffectID {
		t.Errorf("expected adjacent scenes to get distinct effects")
	}
}

func TestVideoRendererPicksExtensionByFormat(t *testing.T) {
	store := newFakeArtifactStore()
	w := NewVideoRenderer(store)

	out, err := w.Run(context.Background(), stage.RenderInput{
		Config: stage.Config{Format: stage.FormatMOV},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := out.(stage.RenderOutput)
	if !strings.HasSuffix(string(result.VideoRef), ".mov") {
		t.Errorf("expected .mov extension for FormatMOV, got ref %s", result.VideoRef)
	}
}

func TestVideoRendererDefaultsToMP4(t *testing.T) {
	store := newFakeArtifactStore()
	w := NewVideoRenderer(store)

	out, err := w.Run(context.Background(), stage.RenderInput{
		Config: stage.Config{Format: stage.FormatMP4},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := out.(stage.RenderOutput)
	if !strings.HasSuffix(string(result.VideoRef), ".mp4") {
		t.Errorf("expected .mp4 extension for FormatMP4, got ref %s", result.VideoRef)
	}
}

// fakeArtifactStore is an in-memory artifact.Store stand-in, avoiding a
// dependency on the filesystem-backed LocalStore for a pure unit test.
type fakeArtifactStore struct {
	blobs map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{blobs: map[string][]byte{}}
}

func (s *fakeArtifactStore) Put(_ context.Context, key string, data []byte, _ string) (artifact.Ref, error) {
	s.blobs[key] = data
	return artifact.Ref("local://" + key), nil
}

func (s *fakeArtifactStore) Get(_ context.Context, ref artifact.Ref) ([]byte, error) {
	key := strings.TrimPrefix(string(ref), "local://")
	data, ok := s.blobs[key]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return data, nil
}

func (s *fakeArtifactStore) Delete(_ context.Context, ref artifact.Ref) (bool, error) {
	key := strings.TrimPrefix(string(ref), "local://")
	_, existed := s.blobs[key]
	delete(s.blobs, key)
	return existed, nil
}

func (s *fakeArtifactStore) Exists(_ context.Context, ref artifact.Ref) (bool, error) {
	key := strings.TrimPrefix(string(ref), "local://")
	_, ok := s.blobs[key]
	return ok, nil
}
