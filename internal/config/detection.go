package config

import "time"

// DetectionConfig holds the completion detector budgets.
// Every value is a soft budget except NewResponseTimeout, whose expiry fails
// the attempt.
type DetectionConfig struct {
	PollInterval       string `yaml:"poll_interval" json:"poll_interval"`
	NewResponseTimeout string `yaml:"new_response_timeout" json:"new_response_timeout"`
	AssetReadyTimeout  string `yaml:"asset_ready_timeout" json:"asset_ready_timeout"`
	QuietWindow        string `yaml:"quiet_window" json:"quiet_window"`
	QuiescenceMax      string `yaml:"quiescence_max" json:"quiescence_max"`
	InputReadyTimeout  string `yaml:"input_ready_timeout" json:"input_ready_timeout"`

	// MinPixels is the minimum width and height of a ready image, both as
	// decoded and as laid out on the page.
	MinPixels int `yaml:"min_pixels" json:"min_pixels"`
	// PlaceholderPatterns are substrings marking a spinner or placeholder src.
	PlaceholderPatterns []string `yaml:"placeholder_patterns" json:"placeholder_patterns"`
	// DoneCues are localized text cues the surface shows once an image is created.
	DoneCues []string `yaml:"done_cues" json:"done_cues"`
}

// DefaultDetectionConfig returns the default budgets.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		PollInterval:       "500ms",
		NewResponseTimeout: "90s",
		AssetReadyTimeout:  "240s",
		QuietWindow:        "2s",
		QuiescenceMax:      "20s",
		InputReadyTimeout:  "15s",
		MinPixels:          64,
		PlaceholderPatterns: []string{
			"spinner", "placeholder", "loading", ".svg",
		},
		DoneCues: []string{
			"Image created",
			"Created image",
			"画像が作成されました",
			"生成された画像",
		},
	}
}

func (d DetectionConfig) GetPollInterval() time.Duration {
	return parseDuration(d.PollInterval, 500*time.Millisecond)
}

func (d DetectionConfig) GetNewResponseTimeout() time.Duration {
	return parseDuration(d.NewResponseTimeout, 90*time.Second)
}

func (d DetectionConfig) GetAssetReadyTimeout() time.Duration {
	return parseDuration(d.AssetReadyTimeout, 240*time.Second)
}

func (d DetectionConfig) GetQuietWindow() time.Duration {
	return parseDuration(d.QuietWindow, 2*time.Second)
}

func (d DetectionConfig) GetQuiescenceMax() time.Duration {
	return parseDuration(d.QuiescenceMax, 20*time.Second)
}

func (d DetectionConfig) GetInputReadyTimeout() time.Duration {
	return parseDuration(d.InputReadyTimeout, 15*time.Second)
}

// durations lists the raw duration fields for validation.
func (d DetectionConfig) durations() map[string]string {
	return map[string]string{
		"poll_interval":        d.PollInterval,
		"new_response_timeout": d.NewResponseTimeout,
		"asset_ready_timeout":  d.AssetReadyTimeout,
		"quiet_window":         d.QuietWindow,
		"quiescence_max":       d.QuiescenceMax,
		"input_ready_timeout":  d.InputReadyTimeout,
	}
}
