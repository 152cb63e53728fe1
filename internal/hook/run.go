package hook

import (
	"context"
	"errors"

	"github.com/roach88/optisess/internal/session"
)

// Func is the body of a unit of work. It usually calls c.Start to read
// the session and edits the returned working copy.
type Func func(ctx context.Context, c *session.Controller) error

// Run begins a unit of work on id, runs fn and flushes. The flush happens
// even if fn fails or panics; a panic is re-raised once the flush is done.
// The flush ignores cancellation of ctx.
func Run(ctx context.Context, m *session.Manager, id string, fn Func) (err error) {
	c := m.Begin(id)
	defer func() {
		r := recover()
		flushErr := c.Flush(context.WithoutCancel(ctx))
		if r != nil {
			panic(r)
		}
		err = errors.Join(err, flushErr)
	}()
	return fn(ctx, c)
}
