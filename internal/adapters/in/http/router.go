// internal/adapters/in/http/router.go
package httpin

import (
	"net/http"
	"time"

	"blockto/internal/adapters/in/http/handlers"
	"blockto/internal/adapters/in/http/middleware"
)

// RouterDeps collects the handlers' dependencies injected from main.go.
type RouterDeps struct {
	MintUC      handlers.MintTransferer
	MintTimeout time.Duration

	Auth          *middleware.WalletAuthMiddleware
	MintLimiter   middleware.Limiter
	OnRateLimited func()

	Metrics       http.Handler
	AllowedOrigin string
}

// NewRouter sets up HTTP routing.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	// Health check (always on)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	if deps.MintUC != nil {
		var h http.Handler = handlers.NewMintHandler(deps.MintUC, deps.MintTimeout)
		h = middleware.RateLimitByWallet(deps.MintLimiter, deps.OnRateLimited)(h)
		auth := deps.Auth
		if auth == nil {
			auth = &middleware.WalletAuthMiddleware{}
		}
		h = auth.Handler(h)
		mux.Handle("/api/nft/mint", h)
	}

	// Recover は内側、CORS は外側（panic 時にも CORS ヘッダが付くように）
	var root http.Handler = middleware.Recover(mux)
	root = middleware.CORS(deps.AllowedOrigin)(root)
	return root
}
