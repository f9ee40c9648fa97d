package tracegate

import (
	"context"
)

// ToolFunc is the function signature that Wrap guards.
// The caller provides an Action describing the intended operation.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that evaluates and records the action before
// calling fn. A blocked action returns a *BlockedError without calling fn.
// Otherwise fn's result is returned after redaction or rewriting. Actions
// wrapped calls make through ctx are recorded as children of this call.
func (c *Client) Wrap(fn ToolFunc) ToolFunc {
	return func(ctx context.Context, action Action) (any, error) {
		out, err := c.sess.Intercept(ctx, toInternalAction(action), func(ctx context.Context) (any, error) {
			return fn(ctx, action)
		})
		if err != nil {
			return nil, toBlocked(action, err)
		}
		return out, nil
	}
}
