package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/record"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// OfflineBanner is shown while the monitor reports offline.
const OfflineBanner = form.MessageBufferedOffline

var notices = map[string]string{
	"sent":        form.MessageSent,
	"buffered":    form.MessageBufferedOffline,
	"retry":       form.MessageBufferedRetry,
	"geolocation": "Geolocation is not supported by this browser.",
	"invalid":     "Coordinates are out of range.",
	"storage":     "Your submission could not be saved. Try again when you're back online.",
	"busy":        "A submission is already in progress.",
	"error":       "Something went wrong. Please try again.",
}

type pageData struct {
	Online  bool
	Storage bool
	Pending int
	Form    form.Status
	Notice  string
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		// Still render the form; the pending count is the only casualty
		slog.Warn("status for page", "error", err)
	}

	data := pageData{
		Online:  st.Online,
		Storage: st.Storage,
		Pending: st.Pending,
		Form:    st.Form,
		Notice:  notices[r.URL.Query().Get("notice")],
	}
	if !data.Online && data.Notice == OfflineBanner {
		data.Notice = ""
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		slog.Error("render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// captureForm handles the "Get GPS Coordinates" button. Explicit latitude and
// longitude form values are used when both are present.
func (h *handlers) captureForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectNotice(w, r, "error")
		return
	}

	var loc *geo.Location
	if r.PostForm.Get("latitude") != "" || r.PostForm.Get("longitude") != "" {
		lat, err1 := record.ParseCoordinate(r.PostForm.Get("latitude"))
		lon, err2 := record.ParseCoordinate(r.PostForm.Get("longitude"))
		if err := errors.Join(err1, err2); err != nil || !lat.Valid || !lon.Valid {
			redirectNotice(w, r, "invalid")
			return
		}
		loc = &geo.Location{Latitude: lat.Value, Longitude: lon.Value}
	}

	if _, err := h.engine.Capture(r.Context(), loc); err != nil {
		redirectNotice(w, r, noticeFor(err))
		return
	}
	redirectNotice(w, r, "")
}

func (h *handlers) submitForm(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Submit(r.Context())
	if err != nil {
		redirectNotice(w, r, noticeFor(err))
		return
	}
	notice := res.Outcome.String()
	if res.Outcome == form.Buffered && res.DeliveryErr != nil {
		notice = "retry"
	}
	redirectNotice(w, r, notice)
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, geo.ErrOutOfRange):
		return "invalid"
	case record.IsGeolocationUnavailable(err):
		return "geolocation"
	case record.IsStorageUnavailable(err):
		return "storage"
	case errors.Is(err, form.ErrSubmitInProgress):
		return "busy"
	default:
		return "error"
	}
}

// redirectNotice sends the browser back to the page (POST/redirect/GET).
func redirectNotice(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/"
	if notice != "" {
		target += "?" + url.Values{"notice": {notice}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
