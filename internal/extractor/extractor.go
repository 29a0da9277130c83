// Package extractor saves the artifacts of a finished response block.
package extractor

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"genimg/internal/browser"
	"genimg/internal/logging"

	"golang.org/x/net/html"
)

// ScreenshotSuffix names the fallback artifact: {prefix}_screenshot.png.
const ScreenshotSuffix = "_screenshot.png"

// Extractor writes artifacts into Dir.
type Extractor struct {
	Dir string
}

// New creates an extractor writing into dir.
func New(dir string) *Extractor {
	return &Extractor{Dir: dir}
}

// Prefix returns the artifact prefix for the 1-based prompt index.
func Prefix(index int) string {
	return fmt.Sprintf("prompt_%03d", index)
}

// Save downloads every image of the last block matching selector as
// {prefix}_{k}.{ext}, k from 1. When no image could be saved it captures a
// full-page screenshot as the only output. The error is non-nil only when
// even the screenshot failed.
func (e *Extractor) Save(ctx context.Context, s browser.Surface, selector, prefix string) ([]string, error) {
	log := logging.Get(logging.CategoryExtractor)
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	var sources []string
	blockHTML, err := s.LastBlockHTML(ctx, selector)
	if err != nil {
		log.Warn("%s: read response block: %v", prefix, err)
	} else {
		pageURL, err := s.URL(ctx)
		if err != nil {
			log.Debug("%s: page url unavailable: %v", prefix, err)
		}
		sources, err = Sources(blockHTML, pageURL)
		if err != nil {
			log.Warn("%s: parse response block: %v", prefix, err)
		}
	}

	var outputs []string
	for _, src := range sources {
		f, err := s.Fetch(ctx, src)
		if err != nil {
			log.Warn("%s: fetch %s: %v", prefix, truncate(src, 80), err)
			continue
		}
		if len(f.Body) == 0 {
			log.Warn("%s: empty body from %s", prefix, truncate(src, 80))
			continue
		}
		name := fmt.Sprintf("%s_%d.%s", prefix, len(outputs)+1, ExtensionFor(f.ContentType))
		path := filepath.Join(e.Dir, name)
		if err := os.WriteFile(path, f.Body, 0o644); err != nil {
			log.Warn("%s: write %s: %v", prefix, path, err)
			continue
		}
		log.Info("saved %s (%d bytes)", path, len(f.Body))
		outputs = append(outputs, path)
	}
	if len(outputs) > 0 {
		return outputs, nil
	}

	log.Warn("%s: no usable image among %d source(s); saving a screenshot", prefix, len(sources))
	png, err := s.Screenshot(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("screenshot fallback: %w", err)
	}
	path := filepath.Join(e.Dir, prefix+ScreenshotSuffix)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, fmt.Errorf("screenshot fallback: %w", err)
	}
	return []string{path}, nil
}

// Snapshot writes error_<index>.png and error_<index>.html for postmortem.
// Both halves are best effort; the paths actually written are returned.
func (e *Extractor) Snapshot(ctx context.Context, s browser.Surface, index int) []string {
	log := logging.Get(logging.CategoryExtractor)
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		log.Warn("error snapshot: %v", err)
		return nil
	}

	var written []string
	base := filepath.Join(e.Dir, fmt.Sprintf("error_%d", index))
	if png, err := s.Screenshot(ctx, true); err != nil {
		log.Warn("error snapshot screenshot: %v", err)
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		log.Warn("error snapshot screenshot: %v", err)
	} else {
		written = append(written, base+".png")
	}
	if markup, err := s.HTML(ctx); err != nil {
		log.Warn("error snapshot markup: %v", err)
	} else if err := os.WriteFile(base+".html", []byte(markup), 0o644); err != nil {
		log.Warn("error snapshot markup: %v", err)
	} else {
		written = append(written, base+".html")
	}
	return written
}

// Sources returns the preferred URL of every img in blockHTML, in document
// order and without duplicates. A srcset wins over src, taking its last
// candidate. Relative URLs resolve against pageURL.
func Sources(blockHTML, pageURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(blockHTML))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)

	var (
		out  []string
		seen = map[string]bool{}
		walk func(*html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if src := resolve(base, pick(n)); src != "" && !seen[src] {
				seen[src] = true
				out = append(out, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func pick(n *html.Node) string {
	var src, srcset string
	for _, a := range n.Attr {
		switch a.Key {
		case "src":
			src = strings.TrimSpace(a.Val)
		case "srcset":
			srcset = a.Val
		}
	}
	if c := lastCandidate(srcset); c != "" {
		return c
	}
	return src
}

// lastCandidate returns the URL of the last srcset candidate.
func lastCandidate(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		fields := strings.Fields(parts[i])
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	if base == nil || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "blob:") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// ExtensionFor maps a declared content type to a file extension.
func ExtensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "bin"
	}
	switch mt {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "bin"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
