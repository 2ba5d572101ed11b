package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type SignOuter interface {
	SignOut(ctx context.Context, r *http.Request) error
}

type AuthHandler struct {
	auth SignOuter
	log  *zap.Logger
}

func NewAuthHandler(auth SignOuter, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), r); err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
