package api

import (
	"errors"
	"net/http"
	"time"

	"humanpass/cmd/internal/syncbroker"
)

type syncResponse struct {
	Ready     bool      `json:"ready"`
	Scanned   bool      `json:"scanned,omitempty"`
	URL       string    `json:"url,omitempty"`
	ShortCode string    `json:"shortCode,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// handleSyncPoll is the desktop's side of the handoff: poll the mailbox
// until the phone publishes a link. Pending and expired are the same
// answer by design.
func (h *Handler) handleSyncPoll(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	status, rec, err := h.broker.Poll(r.Context(), token)
	if err != nil {
		if errors.Is(err, syncbroker.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid sync token")
			return
		}
		h.log.Error("sync.poll.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	switch status {
	case syncbroker.StatusComplete:
		writeJSON(w, http.StatusOK, syncResponse{
			Ready:     true,
			URL:       rec.URL,
			ShortCode: rec.ShortCode,
			CreatedAt: rec.CreatedAt,
		})
	case syncbroker.StatusScanned:
		writeJSON(w, http.StatusOK, syncResponse{Ready: false, Scanned: true})
	default:
		writeJSON(w, http.StatusOK, syncResponse{Ready: false})
	}
}
