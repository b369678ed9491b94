package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/gpsform/internal/engine"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/reconcile"
	"github.com/roach88/gpsform/internal/record"
)

// maxBodyBytes caps API request bodies.
const maxBodyBytes = 1 << 16

type handlers struct {
	engine Engine
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CoordinatesRequest sets the held coordinates. Both fields absent asks the
// configured locator for a fix instead.
type CoordinatesRequest struct {
	Latitude  record.Coordinate `json:"latitude"`
	Longitude record.Coordinate `json:"longitude"`
}

// SubmitResponse reports how a submission was resolved.
type SubmitResponse struct {
	Outcome       form.Outcome      `json:"outcome"`
	Record        record.FormRecord `json:"record"`
	Message       string            `json:"message"`
	DeliveryError string            `json:"delivery_error,omitempty"`
}

// PendingResponse lists buffered records in insertion order.
type PendingResponse struct {
	Records []record.FormRecord `json:"records"`
	Total   int                 `json:"total"`
}

// ConnectivityRequest is a host online/offline signal.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// ConnectivityResponse reports the applied signal and any pass it caused.
type ConnectivityResponse struct {
	Online bool           `json:"online"`
	Synced bool           `json:"synced"`
	Report *ReportPayload `json:"report,omitempty"`
}

// ReportPayload is the JSON view of a reconcile pass.
type ReportPayload struct {
	Attempted int     `json:"attempted"`
	Delivered []int64 `json:"delivered"`
	Failed    []int64 `json:"failed"`
	Remaining int     `json:"remaining"`
}

func reportPayload(r reconcile.Report) *ReportPayload {
	p := &ReportPayload{
		Attempted: r.Attempted,
		Delivered: r.Delivered,
		Failed:    r.Failed,
		Remaining: r.Remaining,
	}
	if p.Delivered == nil {
		p.Delivered = []int64{}
	}
	if p.Failed == nil {
		p.Failed = []int64{}
	}
	return p
}

func (h *handlers) postCoordinates(w http.ResponseWriter, r *http.Request) {
	var req CoordinatesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var loc *geo.Location
	switch {
	case req.Latitude.Valid && req.Longitude.Valid:
		loc = &geo.Location{Latitude: req.Latitude.Value, Longitude: req.Longitude.Value}
	case req.Latitude.Valid || req.Longitude.Valid:
		writeError(w, http.StatusBadRequest, errors.New("latitude and longitude must be set together"))
		return
	}

	got, err := h.engine.Capture(r.Context(), loc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (h *handlers) postSubmit(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Submit(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := SubmitResponse{
		Outcome: res.Outcome,
		Record:  res.Record,
		Message: res.Message(),
	}
	if res.DeliveryErr != nil {
		resp.DeliveryError = res.DeliveryErr.Error()
	}

	status := http.StatusOK
	if res.Outcome == form.Buffered {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) getPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.Pending(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if records == nil {
		records = []record.FormRecord{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{Records: records, Total: len(records)})
}

func (h *handlers) postSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Sync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload(report))
}

func (h *handlers) postConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Online == nil {
		writeError(w, http.StatusBadRequest, errors.New("online is required"))
		return
	}

	report, ran, err := h.engine.SetOnline(r.Context(), *req.Online)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := ConnectivityResponse{Online: *req.Online, Synced: ran}
	if ran {
		resp.Report = reportPayload(report)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, geo.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrOffline), errors.Is(err, form.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoQueue), errors.Is(err, engine.ErrStopped),
		record.IsStorageUnavailable(err), record.IsGeolocationUnavailable(err):
		return http.StatusServiceUnavailable
	case record.IsDeliveryError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var e *record.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return ""
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes an ErrorResponse.
func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Warn("api request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: errorCode(err)})
}
