package config

import "time"

// BrowserConfig configures the external interactive session.
type BrowserConfig struct {
	// EntryURL is the external surface's entry point.
	EntryURL string `yaml:"entry_url" json:"entry_url"`
	// DebuggerURL attaches to an already running Chrome instead of launching one.
	DebuggerURL string `yaml:"debugger_url" json:"debugger_url,omitempty"`
	// Bin overrides the Chrome binary; empty lets the launcher resolve one.
	Bin string `yaml:"bin" json:"bin,omitempty"`
	// Flags are extra Chrome switches ("name" or "name=value").
	Flags          []string `yaml:"flags" json:"flags,omitempty"`
	Headless       bool     `yaml:"headless" json:"headless"`
	ViewportWidth  int      `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height" json:"viewport_height"`
	// NavigationTimeout bounds the initial navigation.
	NavigationTimeout string `yaml:"navigation_timeout" json:"navigation_timeout"`
	// ActionTimeout bounds single interactions (click, fill, fetch).
	ActionTimeout string `yaml:"action_timeout" json:"action_timeout"`
}

// DefaultBrowserConfig returns sensible defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		EntryURL:          "https://chatgpt.com/",
		Headless:          false,
		ViewportWidth:     1280,
		ViewportHeight:    900,
		NavigationTimeout: "60s",
		ActionTimeout:     "15s",
	}
}

// GetNavigationTimeout returns the navigation timeout.
func (b BrowserConfig) GetNavigationTimeout() time.Duration {
	return parseDuration(b.NavigationTimeout, 60*time.Second)
}

// GetActionTimeout returns the per-interaction timeout.
func (b BrowserConfig) GetActionTimeout() time.Duration {
	return parseDuration(b.ActionTimeout, 15*time.Second)
}

// GetViewportWidth returns viewport width.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth == 0 {
		return 1280
	}
	return b.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight == 0 {
		return 900
	}
	return b.ViewportHeight
}
