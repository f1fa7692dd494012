package handler

import (
	"net/http"

	"github.com/creatify/internal/imagehost"
)

type UploadHandler struct {
	signer *imagehost.Signer
}

func NewUploadHandler(signer *imagehost.Signer) *UploadHandler {
	return &UploadHandler{signer: signer}
}

// Signature handles GET /upload/signature: signs the upload parameters so
// the browser can upload directly to the image host.
func (h *UploadHandler) Signature(w http.ResponseWriter, r *http.Request) {
	if !h.signer.Configured() {
		writeError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}
	params := map[string]string{
		"folder":    r.URL.Query().Get("folder"),
		"public_id": r.URL.Query().Get("publicId"),
	}
	writeJSON(w, http.StatusOK, h.signer.Sign(params))
}
