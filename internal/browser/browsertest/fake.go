// Package browsertest provides an in-memory browser.Surface for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"genimg/internal/browser"
)

// PNG is a tiny payload served for generated images and screenshots.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Surface is a scriptable browser.Surface. Static fields describe the page;
// the optional *Func fields override a method entirely. Hooks run without
// the lock held, so they may call back into the Surface.
type Surface struct {
	mu sync.Mutex

	SessionID string
	Elements  map[string]int
	Disabled  map[string]bool
	Blocks    []browser.BlockState
	Resources map[string]browser.Fetched
	Mutations int
	PageURL   string
	PageHTML  string
	// Errs makes the named method fail ("Count", "Fill", "Navigate", ...).
	Errs map[string]error

	CountFunc      func(selector string) (int, error)
	BlockStateFunc func() (browser.BlockState, error)
	MutationFunc   func() (int, error)
	EnabledFunc    func(selector string) (bool, error)
	// OnSubmit runs when filled text is submitted by Enter or a click.
	OnSubmit func(s *Surface, text string)

	pending   string
	submitted []string
	calls     []string
	probe     bool
	closed    bool
}

var _ browser.Surface = (*Surface)(nil)

// New returns an empty surface.
func New(id string) *Surface {
	return &Surface{
		SessionID: id,
		Elements:  map[string]int{},
		Disabled:  map[string]bool{},
		Resources: map[string]browser.Fetched{},
		Errs:      map[string]error{},
		PageURL:   "https://chat.example/",
		PageHTML:  "<html><body></body></html>",
	}
}

// NewChat returns a surface that behaves like a working image chat: a
// composer is present, and every submission appends one finished response
// block whose image is fetchable.
func NewChat(id, composer, response string) *Surface {
	s := New(id)
	s.Elements[composer] = 1
	s.OnSubmit = func(s *Surface, text string) {
		s.Respond(response, ReadyBlock(fmt.Sprintf("https://files.example/%s/%d.png", id, s.ResponseCount(response)+1)))
	}
	return s
}

// ReadyBlock is a block that passes every readiness check.
func ReadyBlock(src string) browser.BlockState {
	return browser.BlockState{
		Found: true,
		Media: []browser.Media{{
			Src: src, Complete: true,
			NaturalWidth: 1024, NaturalHeight: 1024,
			RenderedWidth: 512, RenderedHeight: 512,
		}},
		Text:        "Image created",
		SaveControl: true,
	}
}

// Respond appends a response block matching selector and serves its media.
func (s *Surface) Respond(selector string, block browser.BlockState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Elements[selector]++
	s.Blocks = append(s.Blocks, block)
	for _, m := range block.Media {
		if m.Src != "" && !strings.HasPrefix(m.Src, "data:") {
			s.Resources[m.Src] = browser.Fetched{Body: PNG, ContentType: "image/png"}
		}
	}
}

// ResponseCount returns the static count for selector.
func (s *Surface) ResponseCount(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Elements[selector]
}

// Submitted returns every submitted prompt in order.
func (s *Surface) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted...)
}

// Calls returns the method log, e.g. "Click #x".
func (s *Surface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Surface) record(method string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	if s.closed {
		return fmt.Errorf("%s: session closed", method)
	}
	return s.Errs[method]
}

func (s *Surface) ID() string { return s.SessionID }

func (s *Surface) Count(_ context.Context, selector string) (int, error) {
	s.mu.Lock()
	fn := s.CountFunc
	err := s.Errs["Count"]
	n := s.Elements[selector]
	s.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return n, err
}

func (s *Surface) Click(_ context.Context, selector string) error {
	if err := s.record("Click", selector); err != nil {
		return err
	}
	s.submit()
	return nil
}

func (s *Surface) Fill(_ context.Context, selector, text string) error {
	if err := s.record("Fill", selector); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = text
	s.mu.Unlock()
	return nil
}

func (s *Surface) PressEnter(_ context.Context, selector string) error {
	if err := s.record("PressEnter", selector); err != nil {
		return err
	}
	s.submit()
	return nil
}

func (s *Surface) submit() {
	s.mu.Lock()
	text := s.pending
	s.pending = ""
	if text != "" {
		s.submitted = append(s.submitted, text)
	}
	hook := s.OnSubmit
	s.mu.Unlock()
	if text != "" && hook != nil {
		hook(s, text)
	}
}

func (s *Surface) Enabled(_ context.Context, selector string) (bool, error) {
	s.mu.Lock()
	fn := s.EnabledFunc
	disabled := s.Disabled[selector]
	s.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return !disabled, nil
}

func (s *Surface) LastBlockState(_ context.Context, _ string, _ []string) (browser.BlockState, error) {
	s.mu.Lock()
	fn := s.BlockStateFunc
	var last browser.BlockState
	if len(s.Blocks) > 0 {
		last = s.Blocks[len(s.Blocks)-1]
	}
	err := s.Errs["LastBlockState"]
	s.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return last, err
}

// LastBlockHTML renders the last block's media as img elements.
func (s *Surface) LastBlockHTML(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["LastBlockHTML"]; err != nil {
		return "", err
	}
	if len(s.Blocks) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(`<div data-message-author-role="assistant">`)
	for _, m := range s.Blocks[len(s.Blocks)-1].Media {
		fmt.Fprintf(&b, `<img src="%s">`, m.Src)
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (s *Surface) InstallMutationProbe(_ context.Context, selector string) error {
	if err := s.record("InstallMutationProbe", selector); err != nil {
		return err
	}
	s.mu.Lock()
	s.probe = true
	s.mu.Unlock()
	return nil
}

func (s *Surface) MutationCount(_ context.Context) (int, error) {
	s.mu.Lock()
	fn := s.MutationFunc
	n := s.Mutations
	s.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return n, nil
}

func (s *Surface) RemoveMutationProbe(_ context.Context) error {
	s.mu.Lock()
	s.probe = false
	s.mu.Unlock()
	return nil
}

func (s *Surface) URL(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageURL, nil
}

func (s *Surface) Navigate(_ context.Context, url string) error {
	if err := s.record("Navigate", url); err != nil {
		return err
	}
	s.mu.Lock()
	s.PageURL = url
	s.mu.Unlock()
	return nil
}

func (s *Surface) Fetch(_ context.Context, url string) (browser.Fetched, error) {
	if err := s.record("Fetch", url); err != nil {
		return browser.Fetched{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.Resources[url]
	if !ok {
		return browser.Fetched{}, fmt.Errorf("HTTP 404: %s", url)
	}
	return f, nil
}

func (s *Surface) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	if err := s.record("Screenshot", fmt.Sprint(fullPage)); err != nil {
		return nil, err
	}
	return PNG, nil
}

func (s *Surface) HTML(_ context.Context) (string, error) {
	if err := s.record("HTML"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageHTML, nil
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Close")
	s.closed = true
	return s.Errs["Close"]
}

// Opener hands out surfaces built by New, recording each one.
type Opener struct {
	mu     sync.Mutex
	New    func(id string) *Surface
	Err    error
	opened []*Surface
}

var _ browser.Opener = (*Opener)(nil)

func (o *Opener) Open(_ context.Context, id string) (browser.Surface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	s := o.New(id)
	o.opened = append(o.opened, s)
	return s, nil
}

// Opened returns every surface opened so far.
func (o *Opener) Opened() []*Surface {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Surface(nil), o.opened...)
}
