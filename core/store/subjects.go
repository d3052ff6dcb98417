package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"warroom/core/roles"
)

// SubjectType names the kind of record participants are attached to.
type SubjectType string

const (
	SubjectIncident SubjectType = "incident"
	SubjectCase     SubjectType = "case"
)

func ParseSubjectType(raw string) (SubjectType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "incident", "incidents":
		return SubjectIncident, nil
	case "case", "cases":
		return SubjectCase, nil
	}
	return "", fmt.Errorf("unknown subject type %q", raw)
}

// Label is the capitalised name used in event descriptions.
func (t SubjectType) Label() string {
	switch t {
	case SubjectIncident:
		return "Incident"
	case SubjectCase:
		return "Case"
	}
	return string(t)
}

func (t SubjectType) table() (string, error) {
	switch t {
	case SubjectIncident:
		return "incidents", nil
	case SubjectCase:
		return "cases", nil
	}
	return "", fmt.Errorf("unknown subject type %q", string(t))
}

type SubjectRef struct {
	Type SubjectType `json:"type"`
	ID   int64       `json:"id"`
}

func (r SubjectRef) String() string {
	return string(r.Type) + ":" + strconv.FormatInt(r.ID, 10)
}

// SubjectPointers is the cached current holder of every privileged role on a
// subject. Roles without a holder are absent from Holders.
type SubjectPointers struct {
	Ref       SubjectRef            `json:"subject"`
	Holders   map[roles.Role]int64  `json:"holders"`
	Locations map[roles.Role]string `json:"locations,omitempty"`
}

func (p *SubjectPointers) Holder(r roles.Role) (int64, bool) {
	if p == nil {
		return 0, false
	}
	id, ok := p.Holders[r]
	return id, ok
}

func pointerColumns() string {
	var cols []string
	for _, spec := range roles.Pointers() {
		cols = append(cols, spec.Column)
		if spec.LocationColumn != "" {
			cols = append(cols, spec.LocationColumn)
		}
	}
	return strings.Join(cols, ", ")
}

// pointerScanner collects scan targets for pointerColumns and folds them into
// maps once the row has been read.
type pointerScanner struct {
	ids       []sql.NullInt64
	locations []sql.NullString
}

func newPointerScanner() *pointerScanner {
	specs := roles.Pointers()
	return &pointerScanner{
		ids:       make([]sql.NullInt64, len(specs)),
		locations: make([]sql.NullString, len(specs)),
	}
}

func (ps *pointerScanner) dest() []any {
	var out []any
	for i, spec := range roles.Pointers() {
		out = append(out, &ps.ids[i])
		if spec.LocationColumn != "" {
			out = append(out, &ps.locations[i])
		}
	}
	return out
}

func (ps *pointerScanner) result() (map[roles.Role]int64, map[roles.Role]string) {
	holders := map[roles.Role]int64{}
	locations := map[roles.Role]string{}
	for i, spec := range roles.Pointers() {
		if ps.ids[i].Valid {
			holders[spec.Role] = ps.ids[i].Int64
		}
		if spec.LocationColumn != "" && ps.locations[i].Valid && ps.locations[i].String != "" {
			locations[spec.Role] = ps.locations[i].String
		}
	}
	return holders, locations
}

func subjectPointers(ctx context.Context, q querier, ref SubjectRef) (*SubjectPointers, error) {
	table, err := ref.Type.table()
	if err != nil {
		return nil, err
	}
	ps := newPointerScanner()
	row := q.queryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id=?`, pointerColumns(), table), ref.ID)
	if err := row.Scan(ps.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	holders, locations := ps.result()
	return &SubjectPointers{Ref: ref, Holders: holders, Locations: locations}, nil
}

func setSubjectPointer(ctx context.Context, q querier, ref SubjectRef, spec roles.PointerSpec, participantID *int64, location string) error {
	table, err := ref.Type.table()
	if err != nil {
		return err
	}
	sets := []string{spec.Column + "=?"}
	args := []any{nullableID(participantID)}
	if spec.LocationColumn != "" {
		sets = append(sets, spec.LocationColumn+"=?")
		args = append(args, location)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), ref.ID)
	res, err := q.exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func lockSubject(ctx context.Context, q querier, ref SubjectRef) (bool, error) {
	table, err := ref.Type.table()
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id=?`, table)
	if q.dialect == DialectPostgres && q.inTx {
		query += " FOR UPDATE"
	}
	var id int64
	if err := q.queryRow(ctx, query, ref.ID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func listSubjects(ctx context.Context, q querier, t SubjectType) ([]SubjectRef, error) {
	table, err := t.table()
	if err != nil {
		return nil, err
	}
	rows, err := q.query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SubjectRef
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, SubjectRef{Type: t, ID: id})
	}
	return res, rows.Err()
}

// deleteSubject removes a subject together with its participants, their role
// assignments and its events.
func deleteSubject(ctx context.Context, q querier, ref SubjectRef) error {
	table, err := ref.Type.table()
	if err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM role_assignments WHERE participant_id IN (SELECT id FROM participants WHERE subject_type=? AND subject_id=?)`, string(ref.Type), ref.ID); err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM participants WHERE subject_type=? AND subject_id=?`, string(ref.Type), ref.ID); err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM events WHERE subject_type=? AND subject_id=?`, string(ref.Type), ref.ID); err != nil {
		return err
	}
	res, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table), ref.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nextSubjectSeq(ctx context.Context, q querier, t SubjectType, year int) (int64, error) {
	var seq int64
	if err := q.queryRow(ctx, `
		INSERT INTO subject_counters(subject_type, year, seq)
		VALUES(?,?,1)
		ON CONFLICT (subject_type, year)
		DO UPDATE SET seq = subject_counters.seq + 1
		RETURNING seq
	`, string(t), year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

var seqToken = regexp.MustCompile(`\{seq(?::(\d+))?\}`)

// buildSubjectName expands {year} and {seq} / {seq:NN} (zero padded) tokens.
func buildSubjectName(format, fallback string, year int, seq int64) string {
	if strings.TrimSpace(format) == "" {
		format = fallback
	}
	out := strings.ReplaceAll(format, "{year}", strconv.Itoa(year))
	return seqToken.ReplaceAllStringFunc(out, func(token string) string {
		m := seqToken.FindStringSubmatch(token)
		if len(m) == 2 && m[1] != "" {
			if width, err := strconv.Atoi(m[1]); err == nil && width > 0 {
				return fmt.Sprintf("%0*d", width, seq)
			}
		}
		return strconv.FormatInt(seq, 10)
	})
}
