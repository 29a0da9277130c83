package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GENIMG_PROJECT", "GENIMG_BASE_PATH", "BASE_PATH", "GENIMG_KEEP_OPEN",
		"GENIMG_HEADLESS", "GENIMG_ENTRY_URL", "GENIMG_CHROME_BIN", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Project != "default" {
		t.Errorf("expected Project=default, got %s", cfg.Project)
	}
	if cfg.Detection.GetPollInterval() != 500*time.Millisecond {
		t.Errorf("expected 500ms poll interval, got %v", cfg.Detection.GetPollInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Browser.EntryURL != DefaultBrowserConfig().EntryURL {
		t.Errorf("expected default entry url, got %s", cfg.Browser.EntryURL)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "genimg.yaml")
	cfg := DefaultConfig()
	cfg.Project = "episode 12/draft"
	cfg.Detection.QuietWindow = "5s"
	cfg.Prompts.Defaults = []string{"a red fox"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "episode_12_draft", loaded.Project)
	assert.Equal(t, 5*time.Second, loaded.Detection.GetQuietWindow())
	assert.Equal(t, []string{"a red fox"}, loaded.Prompts.Defaults)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GENIMG_BASE_PATH wins over BASE_PATH", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BASE_PATH", "/legacy")
		t.Setenv("GENIMG_BASE_PATH", "/preferred")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/preferred", cfg.Paths.BasePath)
	})

	t.Run("BASE_PATH alone is honoured", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BASE_PATH", "/legacy")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/legacy", cfg.Paths.BasePath)
	})

	t.Run("booleans parse, garbage is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GENIMG_KEEP_OPEN", "true")
		t.Setenv("GENIMG_HEADLESS", "sometimes")

		cfg := DefaultConfig()
		cfg.Browser.Headless = true
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Batch.KeepOpen)
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("project and log level", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GENIMG_PROJECT", "20250921")
		t.Setenv("LOG_LEVEL", "DEBUG")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "20250921", cfg.Project)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestSanitizeProject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"   ", "default"},
		{"20250921", "20250921"},
		{"my project", "my_project"},
		{"../../etc", "etc"},
		{"a/b\\c", "a_b_c"},
		{"..", "default"},
		{"ep-01.v2", "ep-01.v2"},
	}
	for _, tt := range tests {
		if got := SanitizeProject(tt.in); got != tt.want {
			t.Errorf("SanitizeProject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.QuietWindow = "soon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid duration to fail validation")
	}

	cfg = DefaultConfig()
	cfg.Browser.EntryURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing entry url to fail validation")
	}
}

func TestDurationFallbacks(t *testing.T) {
	d := DetectionConfig{PollInterval: "nope", QuiescenceMax: "-1s"}
	assert.Equal(t, 500*time.Millisecond, d.GetPollInterval())
	assert.Equal(t, 20*time.Second, d.GetQuiescenceMax())

	b := BrowserConfig{}
	assert.Equal(t, 1280, b.GetViewportWidth())
	assert.Equal(t, 60*time.Second, b.GetNavigationTimeout())
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.BasePath = "/work"
	cfg.Project = "p1"
	assert.Equal(t, filepath.Join("/work", "runs"), cfg.RunsRoot())
	assert.Equal(t, filepath.Join("/work", "projects", "p1", "images"), cfg.ImagesDir())

	cfg.Paths.RunsDir = "/abs/runs"
	assert.Equal(t, "/abs/runs", cfg.RunsRoot())
}
