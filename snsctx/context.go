// Package snsctx carries per-call diagnostics flags through context.
package snsctx

import "context"

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

// IsVerbose reports whether bus transactions made with ctx should be dumped
// to the debug log.
func IsVerbose(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}
