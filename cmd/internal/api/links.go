package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"humanpass/cmd/internal/link"
	"humanpass/cmd/internal/syncbroker"
)

type linkResponse struct {
	URL       string    `json:"url"`
	ShortCode string    `json:"shortCode"`
	CreatedAt time.Time `json:"createdAt"`
	Label     string    `json:"label,omitempty"`
}

func toLinkResponse(l link.Link, origin string) linkResponse {
	return linkResponse{
		URL:       origin + "/v/" + l.ShortCode,
		ShortCode: l.ShortCode,
		CreatedAt: l.CreatedAt,
		Label:     l.Label,
	}
}

func clampLabel(label string) string {
	if len(label) > link.MaxLabelLength {
		return label[:link.MaxLabelLength]
	}
	return label
}

// handleLinkCreate issues or reuses the caller's proof link. An
// optional sync token relays the result to the device waiting on the
// mailbox.
func (h *Handler) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if !h.admit(w, r, h.cfg.LinkLimit) {
		return
	}

	var req struct {
		Label     string `json:"label"`
		SyncToken string `json:"syncToken"`
	}
	// Body is optional; an empty body means no label. A body that is
	// present but malformed is still an error, otherwise a garbled
	// syncToken would silently skip the mailbox publish.
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	l, reused, err := h.links.IssueOrReuse(r.Context(), userID, clampLabel(req.Label))
	if err != nil {
		h.log.Error("link.issue.fail", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if reused {
		metricLinksReused.Inc()
	} else {
		metricLinksIssued.Inc()
	}

	origin := originFromHost(r.Host)
	resp := toLinkResponse(l, origin)

	if req.SyncToken != "" {
		err := h.broker.Publish(r.Context(), req.SyncToken, resp.URL, l.ShortCode, l.CreatedAt)
		switch {
		case errors.Is(err, syncbroker.ErrInvalidToken):
			writeError(w, http.StatusBadRequest, "Invalid sync token")
			return
		case err != nil:
			h.log.Error("link.sync_publish.fail", "user_id", userID, "err", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		metricSyncPublishes.Inc()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLinkList returns the caller's links, newest first.
func (h *Handler) handleLinkList(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	links, err := h.links.List(r.Context(), userID)
	if err != nil {
		h.log.Error("link.list.fail", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	origin := originFromHost(r.Host)
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkResponse(l, origin))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLinkRename updates the label on a link the caller owns.
func (h *Handler) handleLinkRename(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Label string `json:"label"`
	}
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	code := r.PathValue("code")
	l, err := h.links.Rename(r.Context(), userID, code, clampLabel(req.Label))
	if err != nil {
		if errors.Is(err, link.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		h.log.Error("link.rename.fail", "user_id", userID, "code", code, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "label": l.Label})
}
