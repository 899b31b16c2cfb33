package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/market-orders/internal/domain/auth"
	"github.com/xenking/market-orders/internal/domain/user"
)

var errForbidden = errors.New("forbidden")

type userIDKey struct{}

// UserID returns the authenticated user id stored in ctx.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

func withUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// authenticated resolves the caller from the Authorization header before
// next runs. Requests without a valid token get 403.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := h.authenticate(r.Context(), auth.TokenFromHeader(r.Header.Get("Authorization")))
		if err != nil {
			if errors.Is(err, errForbidden) {
				writeForbidden(w)
				return
			}
			writeError(w, r, err)
			return
		}

		ctx := withUserID(r.Context(), u.ID)
		ctx = zctx.With(ctx, zap.Int64("user_id", u.ID))
		next(w, r.WithContext(ctx))
	})
}

// authenticate hashes the token with the pepper, looks the hash up and
// compares it in constant time.
func (h *Handler) authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, errForbidden
	}

	hash := auth.HashToken(h.pepper, token)
	u, err := h.users.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errForbidden
		}
		return nil, errors.Wrap(err, "find user by token")
	}

	want, _ := hex.DecodeString(hash)
	got, err := hex.DecodeString(u.TokenHash)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, errForbidden
	}
	return u, nil
}

func currentUser(r *http.Request) int64 {
	id, _ := UserID(r.Context())
	return id
}
