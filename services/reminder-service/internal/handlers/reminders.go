package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/libs/httpx"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/sweep"
)

type Sweeper interface {
	RunOnce(ctx context.Context) (sweep.Summary, error)
}

type RecordLister interface {
	Records(ctx context.Context, sessionID string) ([]model.Record, error)
}

type ReminderHandler struct {
	sweeper Sweeper
	records RecordLister
	logger  *slog.Logger
}

func NewReminderHandler(sweeper Sweeper, records RecordLister, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{sweeper: sweeper, records: records, logger: logger}
}

func (h *ReminderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/sweeps", h.Sweep)
	mux.HandleFunc("/api/v1/reminders", h.Reminders)
}

type recordItem struct {
	SessionID     string `json:"session_id"`
	OffsetMinutes int    `json:"offset_minutes"`
	SentAt        string `json:"sent_at"`
	Outcome       string `json:"outcome"`
	Channel       string `json:"channel,omitempty"`
}

// Sweep runs one sweep on demand, next to the ticker.
func (h *ReminderHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sum, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.writeStoreErr(w, "sweep failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func (h *ReminderHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	recs, err := h.records.Records(r.Context(), sessionID)
	if err != nil {
		h.writeStoreErr(w, "list reminders failed", err)
		return
	}
	items := make([]recordItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, recordItem{
			SessionID:     rec.SessionID,
			OffsetMinutes: rec.OffsetMinutes,
			SentAt:        rec.SentAt.UTC().Format(time.RFC3339),
			Outcome:       rec.Outcome,
			Channel:       rec.Channel,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"reminders": items})
}

func (h *ReminderHandler) writeStoreErr(w http.ResponseWriter, msg string, err error) {
	if db.IsUnavailable(err) {
		h.logger.Warn(msg, "err", err)
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.logger.Error(msg, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal error")
}
