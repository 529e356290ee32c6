package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/libs/httpx"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

type SlotFinder interface {
	Slots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
}

type Committer interface {
	Commit(ctx context.Context, req booking.Request) (model.Session, error)
	Cancel(ctx context.Context, mentorID, sessionID, reason string) (model.Session, error)
}

type SessionLister interface {
	ListSessions(ctx context.Context, mentorID string, limit int) ([]model.Session, error)
}

type SessionHandler struct {
	finder    SlotFinder
	committer Committer
	lister    SessionLister
	logger    *slog.Logger
}

func NewSessionHandler(finder SlotFinder, committer Committer, lister SessionLister, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{finder: finder, committer: committer, lister: lister, logger: logger}
}

// Register mounts the booking API on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/sessions", h.Sessions)
	mux.HandleFunc("/api/v1/sessions/cancel", h.Cancel)
}

type slotItem struct {
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Available       bool   `json:"available"`
}

type createSessionRequest struct {
	MentorID        string `json:"mentor_id"`
	MenteeID        string `json:"mentee_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	ContactEmail    string `json:"contact_email"`
	ContactPhone    string `json:"contact_phone"`
	ContactTelegram string `json:"contact_telegram"`
}

type cancelSessionRequest struct {
	MentorID  string `json:"mentor_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type sessionItem struct {
	SessionID       string `json:"session_id"`
	MentorID        string `json:"mentor_id"`
	MenteeID        string `json:"mentee_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func (h *SessionHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	mentorID := strings.TrimSpace(q.Get("mentor_id"))
	if mentorID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "mentor_id is required")
		return
	}
	day, err := availability.ParseDay(q.Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	durationMins, err := strconv.Atoi(strings.TrimSpace(q.Get("duration_minutes")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "duration_minutes must be an integer")
		return
	}
	stepMins := 0
	if raw := strings.TrimSpace(q.Get("step_minutes")); raw != "" {
		if stepMins, err = strconv.Atoi(raw); err != nil || stepMins <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "step_minutes must be a positive integer")
			return
		}
	}

	slots, err := h.finder.Slots(r.Context(), availability.Query{
		MentorID: mentorID,
		Day:      day,
		Duration: time.Duration(durationMins) * time.Minute,
		Step:     time.Duration(stepMins) * time.Minute,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:       s.Start.UTC().Format(time.RFC3339),
			EndTime:         s.End().UTC().Format(time.RFC3339),
			DurationMinutes: int(s.Duration / time.Minute),
			Available:       s.Available,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Sessions serves GET (list) and POST (book) on the collection.
func (h *SessionHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "start_time must be RFC3339")
		return
	}

	s, err := h.committer.Commit(r.Context(), booking.Request{
		MentorID:        req.MentorID,
		MenteeID:        req.MenteeID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Contact: model.Contact{
			Email:    req.ContactEmail,
			Phone:    req.ContactPhone,
			Telegram: req.ContactTelegram,
		},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toSessionItem(s))
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req cancelSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s, err := h.committer.Cancel(r.Context(), req.MentorID, req.SessionID, req.Reason)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSessionItem(s))
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	mentorID := strings.TrimSpace(r.URL.Query().Get("mentor_id"))
	if mentorID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "mentor_id is required")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	sessions, err := h.lister.ListSessions(r.Context(), mentorID, limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionItem(s))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func toSessionItem(s model.Session) sessionItem {
	item := sessionItem{
		SessionID:       s.ID,
		MentorID:        s.MentorID,
		MenteeID:        s.MenteeID,
		StartTime:       s.ScheduledAt.UTC().Format(time.RFC3339),
		EndTime:         s.EndsAt().UTC().Format(time.RFC3339),
		DurationMinutes: int(s.Duration() / time.Minute),
		Status:          s.Status,
	}
	if s.CancelledAt != nil {
		item.CancelledAt = s.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !s.CreatedAt.IsZero() {
		item.CreatedAt = s.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *SessionHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *booking.ValidationError
	var ce *booking.ConflictError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, availability.ErrInvalidQuery):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ce) && ce.Reason == booking.SlotTaken:
		httpx.WriteError(w, http.StatusConflict, ce.Error())
	case errors.As(err, &ce):
		httpx.WriteError(w, http.StatusUnprocessableEntity, ce.Error())
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, booking.ErrNotCancellable):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrStoreUnavailable), db.IsUnavailable(err):
		h.logger.Warn("store unavailable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
