package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"humanpass/cmd/internal/passkey"
	"humanpass/cmd/internal/session"
)

// handleRegisterOptions starts a registration ceremony. The fresh user
// ID travels with the options and comes back on verify.
func (h *Handler) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.cfg.RegisterLimit) {
		return
	}

	creation, userID, err := h.verifier.BeginRegistration(r.Context(), r.Host)
	if err != nil {
		h.log.Error("auth.register.options.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"options": creation,
		"userId":  userID,
	})
}

// handleRegisterVerify completes registration: validates the
// attestation, rejects emulator authenticators, and signs the new user
// in.
func (h *Handler) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.cfg.RegisterLimit) {
		return
	}

	var req struct {
		UserID   string          `json:"userId"`
		Response json.RawMessage `json:"response"`
	}
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil || req.UserID == "" || len(req.Response) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	u, err := h.verifier.FinishRegistration(r.Context(), r.Host, req.UserID, req.Response)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrChallengeExpired):
			writeError(w, http.StatusBadRequest, "Challenge expired or not found")
		case errors.Is(err, passkey.ErrBlockedAuthenticator):
			writeError(w, http.StatusForbidden, "This authenticator type is not allowed")
		case errors.Is(err, passkey.ErrVerificationFailed):
			writeError(w, http.StatusBadRequest, "Registration verification failed")
		default:
			h.log.Error("auth.register.verify.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}

	if err := h.startSession(r.Context(), w, r.Host, u.ID); err != nil {
		h.log.Error("auth.session.create.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.log.Info("auth.register.ok", "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// handleLoginOptions starts a discoverable-credential login ceremony.
func (h *Handler) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.cfg.LoginLimit) {
		return
	}

	assertion, err := h.verifier.BeginLogin(r.Context(), r.Host)
	if err != nil {
		h.log.Error("auth.pass.options.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"options": assertion})
}

// handleLoginVerify completes a login ceremony and signs the user in.
func (h *Handler) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.cfg.LoginLimit) {
		return
	}

	var req struct {
		Response json.RawMessage `json:"response"`
	}
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil || len(req.Response) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	u, err := h.verifier.FinishLogin(r.Context(), r.Host, req.Response)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrChallengeExpired):
			writeError(w, http.StatusBadRequest, "Challenge expired or not found")
		case errors.Is(err, passkey.ErrVerificationFailed), errors.Is(err, passkey.ErrNotFound):
			writeError(w, http.StatusBadRequest, "Authentication failed")
		default:
			h.log.Error("auth.pass.verify.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}

	if err := h.startSession(r.Context(), w, r.Host, u.ID); err != nil {
		h.log.Error("auth.session.create.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.log.Info("auth.pass.ok", "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// handleAuthReset signs the caller out. Idempotent; resetting with no
// session is still ok.
func (h *Handler) handleAuthReset(w http.ResponseWriter, r *http.Request) {
	if token, ok := session.ReadCookie(r); ok {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			h.log.Error("auth.reset.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		session.ClearCookie(w, r.Host)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
