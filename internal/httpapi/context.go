package httpapi

import (
	"context"
)

// serverBaseCtx is a process-level context canceled on shutdown so open
// generation streams end with the server. Cancel it with cause
// pipeline.ErrShuttingDown so runs still send their error event.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done,
// carrying the cause of whichever ended first.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel(context.Cause(a))
		case <-b.Done():
			cancel(context.Cause(b))
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(nil) }
}

// streamContext joins the request with the server lifetime and applies the
// configured stream timeout.
func streamContext(req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, req)
	if streamTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, streamTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// clientGone reports whether the request or the server went away.
func clientGone(req context.Context) bool {
	return req.Err() != nil || serverBaseCtx.Err() != nil
}
