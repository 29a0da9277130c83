// Package browser owns the external interactive session: the Surface the
// rest of genimg observes and acts through, a Chrome-backed implementation
// driven over the DevTools protocol, and the lifecycle that rebuilds the
// session after any failed attempt.
package browser

import (
	"context"
	"fmt"
)

// Media is one image element inside a response block.
type Media struct {
	Src           string `json:"src"`
	Complete      bool   `json:"complete"`
	NaturalWidth  int    `json:"natural_width"`
	NaturalHeight int    `json:"natural_height"`
	// Rendered size from the layout box, rounded to whole pixels.
	RenderedWidth  int `json:"rendered_width"`
	RenderedHeight int `json:"rendered_height"`
}

// BlockState is a snapshot of the last element matching a selector.
type BlockState struct {
	Found bool    `json:"found"`
	Media []Media `json:"media"`
	// Text is the visible text of the block's turn container.
	Text string `json:"text"`
	// SaveControl reports a save or download control inside the turn.
	SaveControl bool `json:"save_control"`
}

// Fetched is a resource fetched through the page's own network context.
type Fetched struct {
	Body        []byte
	ContentType string
}

// Surface is everything the batch does to the external session. Selectors
// are CSS; "last" means the last element in document order.
type Surface interface {
	// ID identifies the session for logs.
	ID() string

	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error
	Enabled(ctx context.Context, selector string) (bool, error)

	LastBlockState(ctx context.Context, selector string, saveControls []string) (BlockState, error)
	LastBlockHTML(ctx context.Context, selector string) (string, error)

	// InstallMutationProbe starts counting structural mutations under the
	// last block matching selector, replacing any earlier probe.
	InstallMutationProbe(ctx context.Context, selector string) error
	MutationCount(ctx context.Context) (int, error)
	RemoveMutationProbe(ctx context.Context) error

	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Fetch(ctx context.Context, url string) (Fetched, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	// Close ends the session and releases everything it holds.
	Close() error
}

// SessionError is a session fault: the surface could not be opened or
// became unusable. It is always fatal to the current attempt.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
