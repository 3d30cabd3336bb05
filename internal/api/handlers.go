package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dniswara/wanotify/internal/engine"
	"github.com/dniswara/wanotify/internal/model"
	"github.com/dniswara/wanotify/internal/queue"
	"github.com/dniswara/wanotify/internal/store"
	"github.com/dniswara/wanotify/internal/template"
)

type Handler struct {
	engine    *engine.Engine
	store     store.MessageStore
	templates *template.Store
}

func NewHandler(e *engine.Engine, st store.MessageStore, templates *template.Store) *Handler {
	return &Handler{engine: e, store: st, templates: templates}
}

// envelope is the uniform response shape. Data and Error are mutually
// exclusive; Message carries a human-readable outcome line.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"ok": true}})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: h.engine.Status(r.Context())})
}

type sendRequest struct {
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err)
		return
	}

	receipt, err := h.engine.SendDirect(r.Context(), req.Phone, req.Message, req.MessageType)
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Message sent successfully",
		Data:    receipt,
	})
}

type scheduleRequest struct {
	Phone       string     `json:"phone"`
	Message     string     `json:"message"`
	MessageType string     `json:"messageType,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func (h *Handler) ScheduleMessage(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.ScheduledAt == nil {
		fail(w, fmt.Errorf("%w: scheduledAt is required", model.ErrValidation))
		return
	}

	saved, err := h.engine.Schedule(r.Context(), req.Phone, req.Message, req.MessageType, *req.ScheduledAt)
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Message scheduled",
		Data:    saved,
	})
}

func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, pagination, err := h.store.History(r.Context(), store.Filters{
		Status: string(model.Scheduled),
		Page:   parseInt(q.Get("page"), 1),
		Limit:  parseInt(q.Get("limit"), store.DefaultPageSize),
	})
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]any{"items": items, "pagination": pagination},
	})
}

func (h *Handler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelScheduled(r.Context(), r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Scheduled message cancelled"})
}

func (h *Handler) MessageHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filters{
		Status:    q.Get("status"),
		Template:  q.Get("template"),
		Recipient: q.Get("recipient"),
		Page:      parseInt(q.Get("page"), 1),
		Limit:     parseInt(q.Get("limit"), store.DefaultPageSize),
	}

	var err error
	if f.DateFrom, err = parseTime(q.Get("dateFrom")); err != nil {
		fail(w, err)
		return
	}
	if f.DateTo, err = parseTime(q.Get("dateTo")); err != nil {
		fail(w, err)
		return
	}

	items, pagination, err := h.store.History(r.Context(), f)
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]any{"items": items, "pagination": pagination},
	})
}

func (h *Handler) MessageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (h *Handler) StoredQueue(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.QueueSnapshot(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: snap})
}

type cleanupRequest struct {
	Keep int `json:"keep"`
}

func (h *Handler) CleanupMessages(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{Keep: 500}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			fail(w, err)
			return
		}
	}
	if req.Keep <= 0 {
		req.Keep = 500
	}

	result, err := h.store.Cleanup(r.Context(), req.Keep)
	if err != nil {
		fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Cleanup completed",
		Data:    result,
	})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var enabled *bool
	if raw := q.Get("enabled"); raw != "" {
		v := raw == "true"
		enabled = &v
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    h.templates.List(q.Get("category"), enabled),
	})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.CreateInput
	if err := decodeBody(r, &in); err != nil {
		fail(w, err)
		return
	}

	created, err := h.templates.Create(in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Template created", Data: created})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.PathValue("id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: t})
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.UpdateInput
	if err := decodeBody(r, &in); err != nil {
		fail(w, err)
		return
	}

	updated, err := h.templates.Update(r.PathValue("id"), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Template updated", Data: updated})
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Template deleted"})
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = "all"
	}

	contents, err := h.engine.QueueContents(queue.Bucket(bucket))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: contents})
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := h.engine.ClearQueue(queue.Bucket(r.PathValue("bucket")))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Queue cleared",
		Data:    map[string]int{"removed": removed},
	})
}

func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req engine.BroadcastRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, err)
		return
	}

	b, err := h.engine.CreateBroadcast(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Broadcast created", Data: b})
}

func (h *Handler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	status := model.BroadcastStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: h.engine.Broadcasts(status)})
}

func (h *Handler) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		fail(w, fmt.Errorf("%w: broadcast id must be numeric", model.ErrValidation))
		return
	}

	b, err := h.engine.BroadcastByID(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: b})
}

func (h *Handler) ReloadGateway(w http.ResponseWriter, r *http.Request) {
	h.engine.Reload()
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Gateway settings reloaded",
		Data:    h.engine.Status(r.Context()).Gateway,
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", model.ErrValidation)
	}
	return nil
}

func fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid time %q", model.ErrValidation, raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
