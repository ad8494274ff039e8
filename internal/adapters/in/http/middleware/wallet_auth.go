// internal/adapters/in/http/middleware/wallet_auth.go
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"

	mintdom "blockto/internal/domain/mint"
)

// FirebaseAuthClient は firebase auth クライアントのエイリアス。
type FirebaseAuthClient = fbauth.Client

// TokenVerifier は *FirebaseAuthClient を満たす最小 IF（テストで差し替え可能）
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// context key は string を使わず、衝突回避のため独自型を使用（SA1029 対策）
type ctxKey struct{ name string }

var (
	ctxKeyUID    = ctxKey{name: "uid"}
	ctxKeyWallet = ctxKey{name: "walletAddress"}
)

// wallet address を探す custom claim（先勝ち）
var walletClaims = []string{"walletAddress", "address", "wallet"}

// WalletAuthMiddleware
// 責任と機能:
// - Authorization: Bearer <Firebase ID token> を検証し、uid と受取 wallet address を context に詰める
// - ヘッダ無しはそのまま通す（session 無し = 後段で MissingSession として扱う）
// - 不正なトークンは 401
// - DevHeader が設定されている場合のみ、そのヘッダの値を wallet address として受け付ける（ローカル開発用）
type WalletAuthMiddleware struct {
	Verifier  TokenVerifier
	DevHeader string
}

func (m *WalletAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if h := strings.TrimSpace(m.DevHeader); h != "" {
			if addr := strings.TrimSpace(r.Header.Get(h)); addr != "" {
				log.Printf("[wallet_auth] dev header used wallet=%s", maskAddr(addr))
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKeyWallet, addr)))
				return
			}
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeUnauthorized(w, "unauthorized: missing bearer token")
			return
		}
		idToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if idToken == "" {
			writeUnauthorized(w, "unauthorized: empty bearer token")
			return
		}

		if m.Verifier == nil {
			http.Error(w, "wallet auth middleware not initialized", http.StatusServiceUnavailable)
			return
		}

		token, err := m.Verifier.VerifyIDToken(ctx, idToken)
		if err != nil {
			log.Printf("[wallet_auth] verify failed err=%v", err)
			writeUnauthorized(w, "invalid token")
			return
		}

		uid := strings.TrimSpace(token.UID)
		if uid == "" {
			writeUnauthorized(w, "invalid uid in token")
			return
		}
		ctx = context.WithValue(ctx, ctxKeyUID, uid)

		if addr := walletFromToken(token); addr != "" {
			ctx = context.WithValue(ctx, ctxKeyWallet, addr)
		} else {
			log.Printf("[wallet_auth] token has no wallet address uid=%s", uid)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func walletFromToken(t *fbauth.Token) string {
	for _, key := range walletClaims {
		if raw, ok := t.Claims[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	// wallet sign-in (custom token) では uid 自体が address
	if mintdom.IsValidAddress(t.UID) {
		return t.UID
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"errorKind":"MissingSession","error":"` + msg + `"}`))
}

// CurrentWalletAddress returns the authenticated recipient address.
func CurrentWalletAddress(r *http.Request) (string, bool) {
	v, ok := r.Context().Value(ctxKeyWallet).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// CurrentUserUID returns the Firebase UID when a token was verified.
func CurrentUserUID(r *http.Request) (string, bool) {
	v, ok := r.Context().Value(ctxKeyUID).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func maskAddr(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}
