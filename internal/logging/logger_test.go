package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"genimg/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGet_NoopBeforeInitialize(t *testing.T) {
	InitializeWith(zap.NewNop(), config.LoggingConfig{})
	l := Get(CategoryLedger)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	// Must not panic.
	l.Info("hello %s", "world")
	l.With("prompt", "A").Warn("x")
}

func TestCategoriesRouteThroughRoot(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	InitializeWith(zap.New(core), config.LoggingConfig{
		Categories: map[string]bool{"extractor": false},
	})
	defer InitializeWith(zap.NewNop(), config.LoggingConfig{})

	Get(CategoryBatch).Info("processing %d/%d", 1, 2)
	Get(CategoryExtractor).Info("suppressed")
	Get(CategoryDetector).StructuredLog("warn", "phase timed out", map[string]interface{}{"phase": "asset_ready"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(entries), entries)
	}
	if entries[0].LoggerName != "batch" || entries[0].Message != "processing 1/2" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].LoggerName != "detector" || entries[1].ContextMap()["phase"] != "asset_ready" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestInitialize_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "genimg.log")
	if err := Initialize(config.LoggingConfig{Level: "debug", Format: "json", File: path}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer InitializeWith(zap.NewNop(), config.LoggingConfig{})

	Get(CategoryBoot).Debug("boot line")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "boot line") {
		t.Errorf("expected log file to contain entry, got %q", data)
	}
}

func TestTimer_StopWithThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	InitializeWith(zap.New(core), config.LoggingConfig{})
	defer InitializeWith(zap.NewNop(), config.LoggingConfig{})

	timer := StartTimer(CategoryDetector, "wait")
	timer.start = time.Now().Add(-2 * time.Second)
	timer.StopWithThreshold(time.Second)

	if logs.FilterMessageSnippet("threshold").Len() != 1 {
		t.Errorf("expected a threshold warning, got %v", logs.All())
	}
}
