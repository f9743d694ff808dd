package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/promptfactory/internal/core"
)

// withRequestMetadata carries the client address into run logging.
// RemoteAddr is already resolved by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClientIP(ctx, r.RemoteAddr)
}
