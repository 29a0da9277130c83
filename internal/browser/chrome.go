package browser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"genimg/internal/config"
	"genimg/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Opener creates a fresh session. The returned Surface has not navigated.
type Opener interface {
	Open(ctx context.Context, id string) (Surface, error)
}

// ChromeOpener launches Chrome on a persistent profile, or attaches to a
// running one when DebuggerURL is set.
type ChromeOpener struct {
	Config     config.BrowserConfig
	ProfileDir string
}

// NewChromeOpener returns an opener for cfg using profileDir as user data dir.
func NewChromeOpener(cfg config.BrowserConfig, profileDir string) *ChromeOpener {
	return &ChromeOpener{Config: cfg, ProfileDir: profileDir}
}

func (o *ChromeOpener) launcher() (*launcher.Launcher, error) {
	if err := os.MkdirAll(o.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	l := launcher.New().
		Headless(o.Config.Headless).
		UserDataDir(o.ProfileDir).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("window-size", fmt.Sprintf("%d,%d", o.Config.GetViewportWidth(), o.Config.GetViewportHeight()))
	if o.Config.Bin != "" {
		l = l.Bin(o.Config.Bin)
	}
	for _, raw := range o.Config.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l, nil
}

// Open starts or attaches to Chrome and opens one page sized to the
// configured viewport.
func (o *ChromeOpener) Open(ctx context.Context, id string) (Surface, error) {
	log := logging.Get(logging.CategoryBrowser)

	var l *launcher.Launcher
	controlURL := o.Config.DebuggerURL
	attached := controlURL != ""
	if !attached {
		var err error
		if l, err = o.launcher(); err != nil {
			return nil, err
		}
		controlURL, err = l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		log.Debug("session %s: launched chrome (profile %s)", id, o.ProfileDir)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	pg, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		if !attached {
			_ = b.Close()
			l.Kill()
		}
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             o.Config.GetViewportWidth(),
		Height:            o.Config.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(pg); err != nil {
		log.Warn("session %s: failed to set viewport: %v", id, err)
	}

	return &Page{
		id:            id,
		page:          pg,
		browser:       b,
		launcher:      l,
		attached:      attached,
		actionTimeout: o.Config.GetActionTimeout(),
		navTimeout:    o.Config.GetNavigationTimeout(),
	}, nil
}
