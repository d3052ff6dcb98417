package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"warroom/core/roles"
)

const (
	IncidentStatusActive = "active"
	IncidentStatusStable = "stable"
	IncidentStatusClosed = "closed"
)

type Incident struct {
	ID               int64                 `json:"id"`
	Name             string                `json:"name"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Status           string                `json:"status"`
	IncidentType     string                `json:"incident_type"`
	IncidentPriority string                `json:"incident_priority"`
	Visibility       string                `json:"visibility"`
	Holders          map[roles.Role]int64  `json:"holders"`
	Locations        map[roles.Role]string `json:"locations,omitempty"`
	ReportedAt       time.Time             `json:"reported_at"`
	StableAt         *time.Time            `json:"stable_at,omitempty"`
	ClosedAt         *time.Time            `json:"closed_at,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func (i *Incident) Ref() SubjectRef {
	return SubjectRef{Type: SubjectIncident, ID: i.ID}
}

type IncidentFilter struct {
	Search       string
	Status       string
	IncidentType string
	Limit        int
	Offset       int
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident, nameFormat string) (int64, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	GetIncidentByName(ctx context.Context, name string) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	UpdateIncidentStatus(ctx context.Context, id int64, status string) (*Incident, error)
	DeleteIncident(ctx context.Context, id int64) error
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

func incidentColumns() string {
	return `id, name, title, description, status, incident_type, incident_priority, visibility, ` +
		pointerColumns() + `, reported_at, stable_at, closed_at, created_at, updated_at`
}

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident, nameFormat string) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(incident.Status) == "" {
		incident.Status = IncidentStatusActive
	}
	if strings.TrimSpace(incident.Visibility) == "" {
		incident.Visibility = "open"
	}
	if incident.ReportedAt.IsZero() {
		incident.ReportedAt = now
	}
	err := s.db.inTx(ctx, func(q querier) error {
		if strings.TrimSpace(incident.Name) == "" {
			seq, err := nextSubjectSeq(ctx, q, SubjectIncident, now.Year())
			if err != nil {
				return err
			}
			incident.Name = buildSubjectName(nameFormat, "INC-{year}-{seq:05}", now.Year(), seq)
		}
		return q.queryRow(ctx, `
			INSERT INTO incidents(name, title, description, status, incident_type, incident_priority, visibility, reported_at, created_at, updated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?)
			RETURNING id`,
			incident.Name, incident.Title, incident.Description, incident.Status, incident.IncidentType, incident.IncidentPriority, incident.Visibility, incident.ReportedAt, now, now).Scan(&incident.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	incident.CreatedAt = now
	incident.UpdatedAt = now
	incident.Holders = map[roles.Role]int64{}
	return incident.ID, nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.querier().queryRow(ctx, `SELECT `+incidentColumns()+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) GetIncidentByName(ctx context.Context, name string) (*Incident, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	row := s.db.querier().queryRow(ctx, `SELECT `+incidentColumns()+` FROM incidents WHERE name=?`, strings.TrimSpace(name))
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.IncidentType != "" {
		clauses = append(clauses, "incident_type=?")
		args = append(args, filter.IncidentType)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ? OR name LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q, q)
	}
	query := `SELECT ` + incidentColumns() + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY reported_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.querier().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *incident)
	}
	return res, rows.Err()
}

// UpdateIncidentStatus moves an incident between active, stable and closed.
// The stable and closed timestamps are stamped the first time the status is
// reached. Re-applying the current status is a conflict.
func (s *incidentsStore) UpdateIncidentStatus(ctx context.Context, id int64, status string) (*Incident, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case IncidentStatusActive, IncidentStatusStable, IncidentStatusClosed:
	default:
		return nil, fmt.Errorf("unknown incident status %q", status)
	}
	existing, err := s.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.Status == status {
		return nil, ErrConflict
	}
	now := time.Now().UTC()
	stableAt, closedAt := existing.StableAt, existing.ClosedAt
	if status == IncidentStatusStable && stableAt == nil {
		stableAt = &now
	}
	if status == IncidentStatusClosed && closedAt == nil {
		closedAt = &now
	}
	res, err := s.db.querier().exec(ctx, `
		UPDATE incidents SET status=?, stable_at=?, closed_at=?, updated_at=?
		WHERE id=? AND status=?`,
		status, nullableTime(stableAt), nullableTime(closedAt), now, id, existing.Status)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.GetIncident(ctx, id)
}

func (s *incidentsStore) DeleteIncident(ctx context.Context, id int64) error {
	return s.db.inTx(ctx, func(q querier) error {
		return deleteSubject(ctx, q, SubjectRef{Type: SubjectIncident, ID: id})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var stableAt, closedAt sql.NullTime
	ps := newPointerScanner()
	dest := []any{&inc.ID, &inc.Name, &inc.Title, &inc.Description, &inc.Status, &inc.IncidentType, &inc.IncidentPriority, &inc.Visibility}
	dest = append(dest, ps.dest()...)
	dest = append(dest, &inc.ReportedAt, &stableAt, &closedAt, &inc.CreatedAt, &inc.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(inc.Status) == "" {
		inc.Status = IncidentStatusActive
	}
	if stableAt.Valid {
		inc.StableAt = &stableAt.Time
	}
	if closedAt.Valid {
		inc.ClosedAt = &closedAt.Time
	}
	inc.Holders, inc.Locations = ps.result()
	return &inc, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
