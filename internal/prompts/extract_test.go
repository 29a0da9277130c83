package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleScript = `{
  "title": "ignored",
  "scene_2": {
    "title": "夜",
    "image_prompt": "A night city skyline, anime style",
    "contents": [
      {"texts": ["..."], "image_prompt": "いつもの"},
      {"texts": ["..."], "image_prompt": "A cat on a rooftop under the moon"},
      {"texts": ["..."]}
    ]
  },
  "scene_1": {
    "image_prompt": "A sunrise over mountains",
    "contents": [
      {"image_prompt": "A night city skyline, anime style"},
      {"image_prompt": "exactly10c"},
      {"image_prompt": "eleven char"}
    ]
  },
  "metadata": {"image_prompt": "not a scene"}
}`

func TestExtractScenes(t *testing.T) {
	got, err := ExtractScenes([]byte(sampleScript), 10)
	require.NoError(t, err)

	// Document order, not key order; duplicates dropped; short content prompts filtered.
	want := []string{
		"A night city skyline, anime style",
		"A cat on a rooftop under the moon",
		"A sunrise over mountains",
		"eleven char",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractScenes_CountsCharactersNotBytes(t *testing.T) {
	// 10 runes, 30 bytes: filtered.
	script := `{"scene_1": {"contents": [{"image_prompt": "あいうえおかきくけこ"}]}}`
	got, err := ExtractScenes([]byte(script), 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExtractScenes_RejectsNonObject(t *testing.T) {
	_, err := ExtractScenes([]byte(`["a"]`), 10)
	require.Error(t, err)
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	base := t.TempDir()
	return &Extractor{
		SourceRoot:       filepath.Join(base, "t_sozai", "upload_movies"),
		ProjectsRoot:     filepath.Join(base, "projects"),
		MinContentLength: 10,
	}
}

func TestExtractor_ProcessWritesPromptsJSON(t *testing.T) {
	e := newExtractor(t)
	writeFile(t, filepath.Join(e.SourceRoot, "20250921", SceneFile), sampleScript)

	path, n, err := e.Process("20250921")
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, ProjectFile(e.ProjectsRoot, "20250921"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var written []string
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 4)

	// The written file satisfies the batch's input contract.
	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, written, parsed)
}

func TestExtractor_MissingSceneScript(t *testing.T) {
	e := newExtractor(t)
	_, _, err := e.Process("nope")
	var nf *SubJSONNotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
}

func TestExtractor_ListAndProcessAll(t *testing.T) {
	e := newExtractor(t)
	writeFile(t, filepath.Join(e.SourceRoot, "b", SceneFile), `{"scene_1": {"image_prompt": "B prompt"}}`)
	writeFile(t, filepath.Join(e.SourceRoot, "a", SceneFile), `{"scene_1": {"image_prompt": "A prompt"}}`)
	writeFile(t, filepath.Join(e.SourceRoot, "empty", "notes.txt"), "no script here")

	dirs, err := e.List()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, dirs)

	results, err := e.ProcessAll(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Dir)
	require.Equal(t, 1, results[1].Count)

	_, err = os.Stat(ProjectFile(e.ProjectsRoot, "b"))
	require.NoError(t, err)
}

func TestExtractor_ListMissingRoot(t *testing.T) {
	e := newExtractor(t)
	dirs, err := e.List()
	require.NoError(t, err)
	require.Empty(t, dirs)
}
