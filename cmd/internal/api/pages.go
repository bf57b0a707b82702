package api

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"humanpass/cmd/internal/link"
	"humanpass/cmd/internal/session"
	"humanpass/cmd/internal/syncbroker"
)

// The pages are deliberately minimal. Status codes and the data on the
// page are the contract; presentation is not.
var pageTmpl = template.Must(template.New("pages").Parse(`
{{define "layout_head"}}<!doctype html>
<html lang="en"><head><meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title></head><body>{{end}}

{{define "layout_foot"}}</body></html>{{end}}

{{define "home"}}{{template "layout_head" "humanpass"}}
<h1>humanpass</h1>
<p>Short-lived proof-of-humanness links.</p>
<p><a href="/app">Get your link</a></p>
{{template "layout_foot"}}{{end}}

{{define "auth"}}{{template "layout_head" "Sign in - humanpass"}}
<h1>Sign in</h1>
<p>Use your device's screen lock to continue.</p>
{{if .SyncToken}}<p data-sync-token="{{.SyncToken}}">This device will send the link back to where you scanned the code.</p>{{end}}
{{template "layout_foot"}}{{end}}

{{define "app"}}{{template "layout_head" "Your link - humanpass"}}
<h1>Your link</h1>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p>Code: <code>{{.ShortCode}}</code></p>
{{if .Label}}<p>Label: {{.Label}}</p>{{end}}
<p>Created {{.CreatedAt.Format "2006-01-02 15:04 MST"}}</p>
{{if .Synced}}<p>Sent to your other device.</p>{{end}}
{{template "layout_foot"}}{{end}}

{{define "verify"}}{{template "layout_head" "Verified human - humanpass"}}
<h1>&#10003; Verified human</h1>
<p>This link was generated by a verified human on {{.CreatedAt.Format "January 2, 2006 at 15:04 MST"}}.</p>
{{if .Label}}<p>Label: {{.Label}}</p>{{end}}
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p><a href="/app">Get your own</a></p>
{{template "layout_foot"}}{{end}}

{{define "verify_not_found"}}{{template "layout_head" "Link not found - humanpass"}}
<h1>Link not found</h1>
<p>This verification link does not exist or has been removed.</p>
{{template "layout_foot"}}{{end}}

{{define "verify_fraud"}}{{template "layout_head" "Verification blocked - humanpass"}}
<h1>Verification blocked</h1>
<p>This link has been shared across multiple sites and can no longer be trusted.</p>
{{template "layout_foot"}}{{end}}
`))

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.ExecuteTemplate(w, name, data)
}

type verifyPageData struct {
	URL       string
	CreatedAt time.Time
	Label     string
}

func renderVerify(w http.ResponseWriter, l link.Link, origin string) {
	renderPage(w, http.StatusOK, "verify", verifyPageData{
		URL:       origin + "/v/" + l.ShortCode,
		CreatedAt: l.CreatedAt,
		Label:     l.Label,
	})
}

func renderVerifyNotFound(w http.ResponseWriter) {
	renderPage(w, http.StatusNotFound, "verify_not_found", nil)
}

func renderVerifyFraud(w http.ResponseWriter) {
	renderPage(w, http.StatusForbidden, "verify_fraud", nil)
}

// handleHomePage renders the landing page.
func (h *Handler) handleHomePage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, "home", nil)
}

type appPageData struct {
	URL       string
	ShortCode string
	Label     string
	CreatedAt time.Time
	Synced    bool
}

// handleAppPage is the dashboard. Without a session it renders the
// sign-in page, marking the sync mailbox as scanned first so the
// desktop sees progress while the phone authenticates. With a session
// it issues or reuses the link and, when a sync token rode along,
// relays the link to the waiting device.
func (h *Handler) handleAppPage(w http.ResponseWriter, r *http.Request) {
	syncToken := r.URL.Query().Get("sync")

	userID, err := h.authenticate(w, r)
	if err != nil {
		if !errors.Is(err, session.ErrUnauthenticated) {
			h.log.Error("app.session.fail", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if syncToken != "" {
			if err := h.broker.MarkScanned(r.Context(), syncToken); err != nil && !errors.Is(err, syncbroker.ErrInvalidToken) {
				h.log.Error("app.sync.scan.fail", "err", err)
			}
		}
		renderPage(w, http.StatusOK, "auth", struct{ SyncToken string }{syncToken})
		return
	}

	l, reused, err := h.links.IssueOrReuse(r.Context(), userID, "")
	if err != nil {
		h.log.Error("app.link.issue.fail", "user_id", userID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reused {
		metricLinksReused.Inc()
	} else {
		metricLinksIssued.Inc()
	}

	url := originFromHost(r.Host) + "/v/" + l.ShortCode
	synced := false
	if syncToken != "" {
		err := h.broker.Publish(r.Context(), syncToken, url, l.ShortCode, l.CreatedAt)
		switch {
		case err == nil:
			metricSyncPublishes.Inc()
			synced = true
		case errors.Is(err, syncbroker.ErrInvalidToken):
			// Malformed token from the QR path; the page still works.
		default:
			h.log.Error("app.sync.publish.fail", "user_id", userID, "err", err)
		}
	}

	renderPage(w, http.StatusOK, "app", appPageData{
		URL:       url,
		ShortCode: l.ShortCode,
		Label:     l.Label,
		CreatedAt: l.CreatedAt,
		Synced:    synced,
	})
}
