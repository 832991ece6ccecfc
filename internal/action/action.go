// Package action delivers control activations: the rewritten URL a user
// asked to copy or open.
package action

import (
	"context"
	"time"

	"github.com/hazyhaar/postlink/platform"
)

// Mode mirrors the control mode.
type Mode string

const (
	ModeCopy     Mode = "copy"
	ModeNavigate Mode = "navigate"
)

// Activation is one click on an injected control.
type Activation struct {
	ID       string      `json:"id"`
	Mode     Mode        `json:"mode"`
	URL      string      `json:"url"`
	PostKey  string      `json:"post_key,omitempty"`
	Platform platform.ID `json:"platform"`
	PageURL  string      `json:"page_url,omitempty"`
	At       time.Time   `json:"at"`
}

// Sink is an activation backend. A Deliver error is shown to the user as
// transient feedback on the control; it never stops processing.
type Sink interface {
	Deliver(ctx context.Context, a Activation) error
	Close() error
}
