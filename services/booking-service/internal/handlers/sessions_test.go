package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/mentorslots/services/booking-service/internal/model"
)

type fakeFinder struct {
	got   availability.Query
	slots []availability.Slot
	err   error
}

func (f *fakeFinder) Slots(_ context.Context, q availability.Query) ([]availability.Slot, error) {
	f.got = q
	return f.slots, f.err
}

type fakeCommitter struct {
	got       booking.Request
	session   model.Session
	commitErr error
	cancelErr error
}

func (f *fakeCommitter) Commit(_ context.Context, req booking.Request) (model.Session, error) {
	f.got = req
	return f.session, f.commitErr
}

func (f *fakeCommitter) Cancel(_ context.Context, mentorID, sessionID, _ string) (model.Session, error) {
	if f.cancelErr != nil {
		return model.Session{}, f.cancelErr
	}
	s := f.session
	s.ID, s.MentorID, s.Status = sessionID, mentorID, model.StatusCancelled
	return s, nil
}

type fakeLister struct {
	limit    int
	sessions []model.Session
}

func (f *fakeLister) ListSessions(_ context.Context, _ string, limit int) ([]model.Session, error) {
	f.limit = limit
	return f.sessions, nil
}

func newTestMux(finder *fakeFinder, committer *fakeCommitter, lister *fakeLister) *http.ServeMux {
	mux := http.NewServeMux()
	NewSessionHandler(finder, committer, lister, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSlotsEndpoint(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	finder := &fakeFinder{slots: []availability.Slot{{Start: start, Duration: 15 * time.Minute, Available: true}}}
	mux := newTestMux(finder, &fakeCommitter{}, &fakeLister{})

	rec := do(t, mux, http.MethodGet, "/api/v1/slots?mentor_id=m1&date=2026-03-02&duration_minutes=15&step_minutes=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].StartTime != "2026-03-02T09:00:00Z" || items[0].EndTime != "2026-03-02T09:15:00Z" || !items[0].Available {
		t.Fatalf("unexpected items: %+v", items)
	}
	if finder.got.Step != 5*time.Minute || finder.got.Day.String() != "2026-03-02" {
		t.Fatalf("unexpected query: %+v", finder.got)
	}
}

func TestSlotsEndpointRejectsBadInput(t *testing.T) {
	mux := newTestMux(&fakeFinder{err: fmt.Errorf("%w: duration", availability.ErrInvalidQuery)}, &fakeCommitter{}, &fakeLister{})
	for _, target := range []string{
		"/api/v1/slots?date=2026-03-02&duration_minutes=15",
		"/api/v1/slots?mentor_id=m1&date=03-02-2026&duration_minutes=15",
		"/api/v1/slots?mentor_id=m1&date=2026-03-02&duration_minutes=abc",
		"/api/v1/slots?mentor_id=m1&date=2026-03-02&duration_minutes=15&step_minutes=0",
		"/api/v1/slots?mentor_id=m1&date=2026-03-02&duration_minutes=0",
	} {
		if rec := do(t, mux, http.MethodGet, target, "", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestCreateSession(t *testing.T) {
	committer := &fakeCommitter{session: model.Session{
		ID:              "sess-1",
		MentorID:        "m1",
		MenteeID:        "u1",
		ScheduledAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          model.StatusScheduled,
	}}
	mux := newTestMux(&fakeFinder{}, committer, &fakeLister{})

	body := `{"mentor_id":"m1","mentee_id":"u1","start_time":"2026-03-02T10:00:00+01:00","duration_minutes":30,"contact_email":"u1@example.com"}`
	rec := do(t, mux, http.MethodPost, "/api/v1/sessions", body, map[string]string{"Idempotency-Key": "k-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !committer.got.Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) || committer.got.IdempotencyKey != "k-1" {
		t.Fatalf("unexpected request: %+v", committer.got)
	}
	if committer.got.Contact.Email != "u1@example.com" {
		t.Fatalf("contact not forwarded: %+v", committer.got.Contact)
	}
	var item sessionItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.SessionID != "sess-1" || item.EndTime != "2026-03-02T09:30:00Z" {
		t.Fatalf("unexpected response: %+v", item)
	}
}

func TestCreateSessionErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{&booking.ConflictError{Reason: booking.SlotTaken}, http.StatusConflict, "this time is no longer available"},
		{&booking.ConflictError{Reason: booking.SlotUnavailable}, http.StatusUnprocessableEntity, ""},
		{&booking.ValidationError{Field: "duration_minutes", Reason: "must be positive"}, http.StatusBadRequest, "invalid duration_minutes: must be positive"},
		{fmt.Errorf("%w: timeout", booking.ErrStoreUnavailable), http.StatusServiceUnavailable, ""},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	body := `{"mentor_id":"m1","mentee_id":"u1","start_time":"2026-03-02T09:00:00Z","duration_minutes":30}`
	for _, tc := range cases {
		mux := newTestMux(&fakeFinder{}, &fakeCommitter{commitErr: tc.err}, &fakeLister{})
		rec := do(t, mux, http.MethodPost, "/api/v1/sessions", body, nil)
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		if tc.msg == "" {
			continue
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["error"] != tc.msg {
			t.Fatalf("expected message %q, got %q", tc.msg, resp["error"])
		}
	}
}

func TestCreateSessionRejectsBadBody(t *testing.T) {
	mux := newTestMux(&fakeFinder{}, &fakeCommitter{}, &fakeLister{})
	for _, body := range []string{`{`, `{"start_time":"tomorrow"}`} {
		if rec := do(t, mux, http.MethodPost, "/api/v1/sessions", body, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCancelAndListSessions(t *testing.T) {
	committer := &fakeCommitter{session: model.Session{ScheduledAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}}
	lister := &fakeLister{sessions: []model.Session{{ID: "s1", MentorID: "m1", ScheduledAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Status: model.StatusScheduled}}}
	mux := newTestMux(&fakeFinder{}, committer, lister)

	rec := do(t, mux, http.MethodPost, "/api/v1/sessions/cancel", `{"mentor_id":"m1","session_id":"s1","reason":"sick"}`, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Fatalf("unexpected cancel response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/sessions?mentor_id=m1&limit=500", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if lister.limit != 50 {
		t.Fatalf("out of range limit must fall back to 50, got %d", lister.limit)
	}
	var items []sessionItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil || len(items) != 1 || items[0].DurationMinutes != 60 {
		t.Fatalf("unexpected list: %+v (%v)", items, err)
	}

	committer.cancelErr = model.ErrNotFound
	if rec := do(t, mux, http.MethodPost, "/api/v1/sessions/cancel", `{"mentor_id":"m1","session_id":"nope"}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodDelete, "/api/v1/sessions", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
