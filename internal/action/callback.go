package action

import "context"

// Func handles an activation in process.
type Func func(ctx context.Context, a Activation) error

// Callback delivers activations through a Go function.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. A nil fn accepts everything.
func NewCallback(fn Func) *Callback { return &Callback{fn: fn} }

func (c *Callback) Deliver(ctx context.Context, a Activation) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, a)
}

func (c *Callback) Close() error { return nil }
