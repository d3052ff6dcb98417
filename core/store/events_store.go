package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Event is an immutable audit entry attached to a subject.
type Event struct {
	ID          int64          `json:"id"`
	UUID        string         `json:"uuid"`
	SubjectType SubjectType    `json:"subject_type"`
	SubjectID   int64          `json:"subject_id"`
	Source      string         `json:"source"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (s *participantsStore) LogEvent(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if strings.TrimSpace(ev.Description) == "" {
		return fmt.Errorf("event description is required")
	}
	if ev.UUID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		ev.UUID = id.String()
	}
	now := time.Now().UTC()
	if ev.StartedAt.IsZero() {
		ev.StartedAt = now
	}
	ev.CreatedAt = now
	details := "{}"
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return err
		}
		details = string(b)
	}
	return s.q.queryRow(ctx, `
		INSERT INTO events(uuid, subject_type, subject_id, source, description, details, started_at, created_at)
		VALUES(?,?,?,?,?,?,?,?)
		RETURNING id`,
		ev.UUID, string(ev.SubjectType), ev.SubjectID, ev.Source, ev.Description, details, ev.StartedAt, ev.CreatedAt).Scan(&ev.ID)
}

// ListEvents returns the subject's events oldest first. A non-positive limit
// returns all of them.
func (s *participantsStore) ListEvents(ctx context.Context, ref SubjectRef, limit int) ([]Event, error) {
	query := `
		SELECT id, uuid, subject_type, subject_id, source, description, details, started_at, created_at
		FROM events WHERE subject_type=? AND subject_id=?
		ORDER BY started_at, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.q.query(ctx, query, string(ref.Type), ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var ev Event
		var subjectType, details string
		if err := rows.Scan(&ev.ID, &ev.UUID, &subjectType, &ev.SubjectID, &ev.Source, &ev.Description, &details, &ev.StartedAt, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.SubjectType = SubjectType(subjectType)
		if details != "" && details != "{}" {
			_ = json.Unmarshal([]byte(details), &ev.Details)
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
