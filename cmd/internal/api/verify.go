package api

import (
	"errors"
	"net/http"
	"time"

	"humanpass/cmd/internal/link"
)

type verifyResponse struct {
	Verified      bool      `json:"verified"`
	Fraud         bool      `json:"fraud,omitempty"`
	LabelMismatch bool      `json:"labelMismatch,omitempty"`
	ShortCode     string    `json:"shortCode,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	Label         string    `json:"label,omitempty"`
}

// handleVerifyAPI is the machine-readable verification check embedded
// by third-party sites. Unknown codes are a negative answer, not an
// error; the endpoint leaks nothing about why.
func (h *Handler) handleVerifyAPI(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	l, err := h.links.Resolve(r.Context(), code)
	if err != nil {
		if errors.Is(err, link.ErrNotFound) {
			writeJSON(w, http.StatusOK, verifyResponse{Verified: false})
			return
		}
		h.log.Error("verify.resolve.fail", "code", code, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	flagged, err := h.fraud.Check(r.Context(), l.ShortCode, r.Referer())
	if err != nil {
		h.log.Error("verify.fraud_check.fail", "code", code, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if flagged {
		metricFraudDetected.Inc()
		writeJSON(w, http.StatusOK, verifyResponse{Verified: false, Fraud: true})
		return
	}

	if expected := r.URL.Query().Get("label"); expected != "" && l.Label != expected {
		writeJSON(w, http.StatusOK, verifyResponse{Verified: false, LabelMismatch: true})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Verified:  true,
		ShortCode: l.ShortCode,
		CreatedAt: l.CreatedAt,
		Label:     l.Label,
	})
}

// handleVerifyPage is the human-readable counterpart of the verify API.
// Same checks, rendered HTML, real status codes.
func (h *Handler) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	l, err := h.links.Resolve(r.Context(), code)
	if err != nil {
		if errors.Is(err, link.ErrNotFound) {
			renderVerifyNotFound(w)
			return
		}
		h.log.Error("verify.resolve.fail", "code", code, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	flagged, err := h.fraud.Check(r.Context(), l.ShortCode, r.Referer())
	if err != nil {
		h.log.Error("verify.fraud_check.fail", "code", code, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if flagged {
		metricFraudDetected.Inc()
		renderVerifyFraud(w)
		return
	}

	renderVerify(w, l, originFromHost(r.Host))
}

// handleStats exposes the public verification counter.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := h.links.Count(r.Context())
	if err != nil {
		h.log.Error("stats.count.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"verifications": n})
}
