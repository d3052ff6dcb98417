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

type Case struct {
	ID          int64                 `json:"id"`
	Name        string                `json:"name"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	Holders     map[roles.Role]int64  `json:"holders"`
	Locations   map[roles.Role]string `json:"locations,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func (c *Case) Ref() SubjectRef {
	return SubjectRef{Type: SubjectCase, ID: c.ID}
}

type CasesStore interface {
	CreateCase(ctx context.Context, c *Case, nameFormat string) (int64, error)
	GetCase(ctx context.Context, id int64) (*Case, error)
	ListCases(ctx context.Context, limit int) ([]Case, error)
	DeleteCase(ctx context.Context, id int64) error
}

type casesStore struct {
	db *DB
}

func NewCasesStore(db *DB) CasesStore {
	return &casesStore{db: db}
}

func caseColumns() string {
	return `id, name, title, description, status, ` + pointerColumns() + `, created_at, updated_at`
}

func (s *casesStore) CreateCase(ctx context.Context, c *Case, nameFormat string) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(c.Status) == "" {
		c.Status = "new"
	}
	err := s.db.inTx(ctx, func(q querier) error {
		if strings.TrimSpace(c.Name) == "" {
			seq, err := nextSubjectSeq(ctx, q, SubjectCase, now.Year())
			if err != nil {
				return err
			}
			c.Name = buildSubjectName(nameFormat, "CASE-{year}-{seq:05}", now.Year(), seq)
		}
		return q.queryRow(ctx, `
			INSERT INTO cases(name, title, description, status, created_at, updated_at)
			VALUES(?,?,?,?,?,?)
			RETURNING id`,
			c.Name, c.Title, c.Description, c.Status, now, now).Scan(&c.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Holders = map[roles.Role]int64{}
	return c.ID, nil
}

func (s *casesStore) GetCase(ctx context.Context, id int64) (*Case, error) {
	row := s.db.querier().queryRow(ctx, `SELECT `+caseColumns()+` FROM cases WHERE id=?`, id)
	return scanCase(row)
}

func (s *casesStore) ListCases(ctx context.Context, limit int) ([]Case, error) {
	query := `SELECT ` + caseColumns() + ` FROM cases ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.querier().query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}
	return res, rows.Err()
}

func (s *casesStore) DeleteCase(ctx context.Context, id int64) error {
	return s.db.inTx(ctx, func(q querier) error {
		return deleteSubject(ctx, q, SubjectRef{Type: SubjectCase, ID: id})
	})
}

func scanCase(row rowScanner) (*Case, error) {
	var c Case
	ps := newPointerScanner()
	dest := []any{&c.ID, &c.Name, &c.Title, &c.Description, &c.Status}
	dest = append(dest, ps.dest()...)
	dest = append(dest, &c.CreatedAt, &c.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Holders, c.Locations = ps.result()
	return &c, nil
}
