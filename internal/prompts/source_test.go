package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"valid", `["a cat", "a dog"]`, []string{"a cat", "a dog"}, false},
		{"unicode", `["夕焼けの街"]`, []string{"夕焼けの街"}, false},
		{"empty array", `[]`, nil, true},
		{"object", `{"prompts": ["a"]}`, nil, true},
		{"non-string element", `["a", 3]`, nil, true},
		{"blank element", `["a", "  "]`, nil, true},
		{"garbage", `not json`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrNoPrompts) {
					t.Fatalf("expected ErrNoPrompts, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_Priority(t *testing.T) {
	root := t.TempDir()
	writeFile(t, ProjectFile(root, "p"), `["from file"]`)

	t.Run("env wins", func(t *testing.T) {
		t.Setenv(EnvPrompts, `["from env"]`)
		got, src, err := Resolve(root, "p", []string{"from defaults"})
		if err != nil {
			t.Fatal(err)
		}
		if src != SourceEnv || got[0] != "from env" {
			t.Errorf("got %v from %s", got, src)
		}
	})

	t.Run("file next", func(t *testing.T) {
		t.Setenv(EnvPrompts, "")
		got, src, err := Resolve(root, "p", []string{"from defaults"})
		if err != nil {
			t.Fatal(err)
		}
		if src != SourceFile || got[0] != "from file" {
			t.Errorf("got %v from %s", got, src)
		}
	})

	t.Run("defaults last", func(t *testing.T) {
		t.Setenv(EnvPrompts, "")
		got, src, err := Resolve(root, "other", []string{"from defaults"})
		if err != nil {
			t.Fatal(err)
		}
		if src != SourceDefaults || got[0] != "from defaults" {
			t.Errorf("got %v from %s", got, src)
		}
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		t.Setenv(EnvPrompts, "")
		if _, _, err := Resolve(root, "other", nil); !errors.Is(err, ErrNoPrompts) {
			t.Errorf("expected ErrNoPrompts, got %v", err)
		}
	})
}

func TestResolve_MalformedDoesNotFallThrough(t *testing.T) {
	root := t.TempDir()
	writeFile(t, ProjectFile(root, "p"), `["fine"]`)

	t.Setenv(EnvPrompts, `["ok", ""]`)
	if _, src, err := Resolve(root, "p", nil); !errors.Is(err, ErrNoPrompts) || src != SourceEnv {
		t.Errorf("malformed env: src=%s err=%v", src, err)
	}

	t.Setenv(EnvPrompts, "")
	writeFile(t, ProjectFile(root, "q"), `{"nope": true}`)
	if _, src, err := Resolve(root, "q", []string{"default"}); !errors.Is(err, ErrNoPrompts) || src != SourceFile {
		t.Errorf("malformed file: src=%s err=%v", src, err)
	}
}
