// Package prompts resolves the ordered prompt list handed to the batch and
// hosts the upstream extractor that derives prompts.json from scene scripts.
package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"genimg/internal/logging"
)

// EnvPrompts overrides every other source with a JSON array of prompts.
const EnvPrompts = "GENIMG_PROMPTS"

// FileName is the per-project prompt document.
const FileName = "prompts.json"

// ErrNoPrompts means no usable prompt list could be resolved. Callers exit
// non-zero rather than guessing.
var ErrNoPrompts = errors.New("no prompts")

// Source names where a prompt list came from.
type Source string

const (
	SourceEnv      Source = "env"
	SourceFile     Source = "file"
	SourceDefaults Source = "defaults"
)

// Parse validates the upstream contract: a JSON array of non-empty strings.
// Anything else is ErrNoPrompts.
func Parse(data []byte) ([]string, error) {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrNoPrompts, err)
	}
	return validate(raw)
}

func validate(raw []interface{}) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrNoPrompts)
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T, want string", ErrNoPrompts, i, v)
		}
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: element %d is empty", ErrNoPrompts, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// ProjectFile returns <projectsRoot>/<project>/prompts.json.
func ProjectFile(projectsRoot, project string) string {
	return filepath.Join(projectsRoot, project, FileName)
}

// Resolve returns the prompt list in priority order: the GENIMG_PROMPTS env
// value, then the project's prompts.json, then defaults. A present but
// malformed source is an error; it never falls through to the next one.
func Resolve(projectsRoot, project string, defaults []string) ([]string, Source, error) {
	log := logging.Get(logging.CategoryPrompts)

	if env := strings.TrimSpace(os.Getenv(EnvPrompts)); env != "" {
		ps, err := Parse([]byte(env))
		if err != nil {
			return nil, SourceEnv, fmt.Errorf("%s: %w", EnvPrompts, err)
		}
		log.Info("using %d prompts from %s", len(ps), EnvPrompts)
		return ps, SourceEnv, nil
	}

	path := ProjectFile(projectsRoot, project)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		ps, err := Parse(data)
		if err != nil {
			return nil, SourceFile, fmt.Errorf("%s: %w", path, err)
		}
		log.Info("using %d prompts from %s", len(ps), path)
		return ps, SourceFile, nil
	case !os.IsNotExist(err):
		return nil, SourceFile, fmt.Errorf("read %s: %w", path, err)
	}

	raw := make([]interface{}, len(defaults))
	for i, d := range defaults {
		raw[i] = d
	}
	ps, err := validate(raw)
	if err != nil {
		return nil, SourceDefaults, fmt.Errorf("no %s, no %s and no configured defaults: %w", EnvPrompts, path, err)
	}
	log.Info("using %d configured default prompts", len(ps))
	return ps, SourceDefaults, nil
}
