package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/creatify/internal/middleware"
	"github.com/creatify/internal/push"
)

type PushHandler struct {
	svc       *push.Service
	publicKey string
}

func NewPushHandler(svc *push.Service, publicKey string) *PushHandler {
	return &PushHandler{svc: svc, publicKey: publicKey}
}

// PublicKey handles GET /push/publickey: the VAPID public key the browser
// needs to subscribe.
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusNotFound, "push disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.publicKey})
}

// Subscribe handles POST /push/subscribe; the body is the browser
// PushSubscription object as-is.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8192))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.svc.Subscribe(r.Context(), userID, body); err != nil {
		if errors.Is(err, push.ErrInvalidSubscription) {
			writeError(w, http.StatusBadRequest, "invalid subscription")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe handles DELETE /push/subscribe.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8192))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.svc.Unsubscribe(r.Context(), userID, body); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
