package sweep

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/mentorslots/services/reminder-service/internal/model"
)

// Due selects the reminders to send now: scheduled sessions starting within
// [now, now+horizon] whose fire time has passed and that have no record yet. Each
// (session, offset) pair appears at most once. Tasks are ordered by fire time.
func Due(cands []model.Candidate, now time.Time, horizon time.Duration) []model.Task {
	end := now.Add(horizon)
	seen := make(map[taskKey]struct{}, len(cands))
	var out []model.Task
	for _, c := range cands {
		if c.Status != model.SessionScheduled || c.Recorded || c.OffsetMinutes <= 0 {
			continue
		}
		if c.ScheduledAt.Before(now) || c.ScheduledAt.After(end) {
			continue
		}
		fireAt := c.FireAt()
		if fireAt.After(now) {
			continue
		}
		key := taskKey{sessionID: c.SessionID, offset: c.OffsetMinutes}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, model.Task{
			SessionID:     c.SessionID,
			MentorID:      c.MentorID,
			MenteeID:      c.MenteeID,
			ScheduledAt:   c.ScheduledAt,
			OffsetMinutes: c.OffsetMinutes,
			FireAt:        fireAt,
			Contact:       c.Contact,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

type taskKey struct {
	sessionID string
	offset    int
}
