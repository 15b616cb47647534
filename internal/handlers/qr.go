// internal/handlers/qr.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// QR renders a PNG QR code pointing at the lobby's join page.
func (h *LobbyHandlers) QR(w http.ResponseWriter, r *http.Request) {
	code := game.NormalizeCode(chi.URLParam(r, "code"))
	if !h.svc.LobbyExists(code) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: game.ErrLobbyNotFound.Message, Code: game.ErrLobbyNotFound.Code})
		return
	}

	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minQRSize || n > maxQRSize {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "size must be between 128 and 1024", Code: "invalid_request"})
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.joinURL(code), qrcode.Medium, size)
	if err != nil {
		h.logger.WithError(err).WithField("lobby", code).Error("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
