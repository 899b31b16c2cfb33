package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
)

// DeleteAccount removes the caller. Their products and orders go with them,
// and so do placements of their products in other users' orders.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), currentUser(r)); err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}
