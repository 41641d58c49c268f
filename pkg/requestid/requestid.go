// Package requestid carries the id of a status server request through its context.
package requestid

import (
	"context"
	"net/http"
)

// Header carries the request ID in both directions.
const Header = "X-Request-Id"

type ctxKey struct{}

func ToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromRequest returns the ID stored by ToContext, or "".
func FromRequest(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}
