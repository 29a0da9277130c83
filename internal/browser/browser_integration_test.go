//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"genimg/internal/browser"
	"genimg/internal/config"
	"genimg/internal/locator"

	"github.com/stretchr/testify/require"
)

// A 1x1 PNG.
var pixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xcf, 0xc0, 0xf0,
	0x1f, 0x00, 0x05, 0x00, 0x01, 0xff, 0x89, 0x99, 0x3d, 0x1d, 0x00, 0x00,
	0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

const chatPage = `<html><body>
<div role="dialog"><button aria-label="Close" onclick="this.parentNode.remove()">x</button></div>
<main id="thread"></main>
<textarea id="prompt-textarea"></textarea>
<script>
const ta = document.getElementById('prompt-textarea');
ta.addEventListener('keydown', (e) => {
  if (e.key !== 'Enter') return;
  e.preventDefault();
  const turn = document.createElement('article');
  turn.innerHTML = '<div data-message-author-role="assistant"><img src="/img.png" style="width:256px;height:256px"></div><span>Image created</span>';
  document.getElementById('thread').appendChild(turn);
});
</script>
</body></html>`

func TestChrome_Lifecycle_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pixel)
			return
		}
		fmt.Fprint(w, chatPage)
	}))
	defer ts.Close()

	cfg := config.DefaultBrowserConfig()
	cfg.Headless = true
	cfg.NavigationTimeout = "10s"
	cfg.ActionTimeout = "5s"

	opener := browser.NewChromeOpener(cfg, filepath.Join(t.TempDir(), "profile"))
	strategy := locator.NewStrategy(config.LocatorsConfig{}).WithBudget(500*time.Millisecond, 50*time.Millisecond)
	lc := browser.NewLifecycle(opener, strategy, ts.URL)
	defer lc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := lc.Ensure(ctx)
	require.NoError(t, err)

	n, err := s.Count(ctx, `[role="dialog"]`)
	require.NoError(t, err)
	require.Equal(t, 0, n, "dialog should have been dismissed")

	require.NoError(t, s.Fill(ctx, "#prompt-textarea", "a red square"))
	require.NoError(t, s.PressEnter(ctx, "#prompt-textarea"))

	response := `[data-message-author-role="assistant"]`
	require.Eventually(t, func() bool {
		st, err := s.LastBlockState(ctx, response, []string{"a[download]"})
		return err == nil && st.Found && len(st.Media) == 1 && st.Media[0].Complete
	}, 10*time.Second, 100*time.Millisecond)

	st, err := s.LastBlockState(ctx, response, nil)
	require.NoError(t, err)
	require.Contains(t, st.Text, "Image created")
	require.Len(t, st.Media, 1)
	require.Equal(t, 256, st.Media[0].RenderedWidth)
	require.Equal(t, 256, st.Media[0].RenderedHeight)

	f, err := s.Fetch(ctx, ts.URL+"/img.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", f.ContentType)
	require.Equal(t, pixel, f.Body)

	enabled, err := s.Enabled(ctx, "#prompt-textarea")
	require.NoError(t, err)
	require.True(t, enabled)

	require.NoError(t, s.InstallMutationProbe(ctx, response))
	_, err = s.MutationCount(ctx)
	require.NoError(t, err)

	png, err := s.Screenshot(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, png)
}
