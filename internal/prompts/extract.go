package prompts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"genimg/internal/logging"

	"golang.org/x/sync/errgroup"
)

// SceneFile is the scene script each source directory carries.
const SceneFile = "sub.json"

// SubJSONNotFoundError is returned when a source directory has no scene script.
type SubJSONNotFoundError struct {
	Path string
}

func (e *SubJSONNotFoundError) Error() string {
	return fmt.Sprintf("sub.json not found: %s", e.Path)
}

type sceneContent struct {
	ImagePrompt *string `json:"image_prompt"`
}

type scene struct {
	ImagePrompt *string        `json:"image_prompt"`
	Contents    []sceneContent `json:"contents"`
}

// Extractor turns <SourceRoot>/<dir>/sub.json into <ProjectsRoot>/<dir>/prompts.json.
type Extractor struct {
	SourceRoot   string
	ProjectsRoot string
	// MinContentLength drops content-level prompts of this many characters or
	// fewer (placeholders such as "いつもの").
	MinContentLength int
}

// ExtractScenes walks the top-level "scene_*" objects of a scene script in
// document order. Each scene contributes its own image_prompt, then every
// content image_prompt longer than minContentLength characters. The result is
// deduplicated, first occurrence wins.
func ExtractScenes(data []byte, minContentLength int) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode scene script: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode scene script: top level is not an object")
	}

	var all []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode scene script: %w", err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if !strings.HasPrefix(key, "scene_") {
			continue
		}

		var sc scene
		if err := json.Unmarshal(raw, &sc); err != nil {
			logging.Get(logging.CategoryPrompts).Warn("skipping malformed %s: %v", key, err)
			continue
		}
		if sc.ImagePrompt != nil && *sc.ImagePrompt != "" {
			all = append(all, *sc.ImagePrompt)
		}
		for _, c := range sc.Contents {
			if c.ImagePrompt == nil {
				continue
			}
			if utf8.RuneCountInString(*c.ImagePrompt) > minContentLength {
				all = append(all, *c.ImagePrompt)
			}
		}
	}
	return dedupe(all), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// List returns the source directories that carry a scene script, sorted.
func (e *Extractor) List() ([]string, error) {
	entries, err := os.ReadDir(e.SourceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(e.SourceRoot, entry.Name(), SceneFile)); err == nil {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Process extracts prompts for one directory and writes its prompts.json.
// It returns the written path and the number of prompts.
func (e *Extractor) Process(dir string) (string, int, error) {
	log := logging.Get(logging.CategoryPrompts)
	log.Info("processing directory %s", dir)

	src := filepath.Join(e.SourceRoot, dir, SceneFile)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, &SubJSONNotFoundError{Path: src}
		}
		return "", 0, fmt.Errorf("read %s: %w", src, err)
	}

	prompts, err := ExtractScenes(data, e.MinContentLength)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", src, err)
	}
	log.Info("extracted %d unique prompts from %s", len(prompts), src)

	out := ProjectFile(e.ProjectsRoot, dir)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", 0, fmt.Errorf("create project dir: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", out, err)
	}
	if err := writePrompts(f, prompts); err != nil {
		_ = f.Close()
		return "", 0, fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close %s: %w", out, err)
	}
	return out, len(prompts), nil
}

func writePrompts(w io.Writer, prompts []string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if prompts == nil {
		prompts = []string{}
	}
	return enc.Encode(prompts)
}

// Result reports one directory processed by ProcessAll.
type Result struct {
	Dir   string
	Path  string
	Count int
}

// ProcessAll processes every listed directory with at most workers running at
// once. The first failure cancels the remaining work.
func (e *Extractor) ProcessAll(ctx context.Context, workers int) ([]Result, error) {
	dirs, err := e.List()
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, n, err := e.Process(dir)
			if err != nil {
				return err
			}
			results[i] = Result{Dir: dir, Path: path, Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
