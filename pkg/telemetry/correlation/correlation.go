// Package correlation carries the id that ties an HTTP request to its log
// lines, spans and audit rows.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

const maxInboundLength = 64

type ctxKey struct{}

// FromContext returns the correlation id on ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Adopt attaches an inbound id when it is printable and short, otherwise a
// fresh ULID. It returns the id in effect.
func Adopt(ctx context.Context, inbound string) (context.Context, string) {
	if id := sanitize(inbound); id != "" {
		return WithID(ctx, id), id
	}
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxInboundLength {
		return ""
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return raw
}
