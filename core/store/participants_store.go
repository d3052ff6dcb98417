package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"warroom/core/roles"
)

type Individual struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	Team      string    `json:"team,omitempty"`
	Weblink   string    `json:"weblink,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndividualProfile seeds a newly created individual. It is ignored when the
// individual already exists.
type IndividualProfile struct {
	Name     string
	Location string
	Team     string
	Weblink  string
}

type Participant struct {
	ID           int64            `json:"id"`
	SubjectType  SubjectType      `json:"subject_type"`
	SubjectID    int64            `json:"subject_id"`
	IndividualID int64            `json:"individual_id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	ServiceRef   *string          `json:"service_ref,omitempty"`
	Location     string           `json:"location,omitempty"`
	Team         string           `json:"team,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Assignments  []RoleAssignment `json:"assignments,omitempty"`
}

func (p *Participant) Subject() SubjectRef {
	return SubjectRef{Type: p.SubjectType, ID: p.SubjectID}
}

// ActiveRoles lists the kinds of the loaded assignments that are still active.
func (p *Participant) ActiveRoles() []roles.Role {
	var out []roles.Role
	for _, a := range p.Assignments {
		if a.Active() {
			out = append(out, a.Role)
		}
	}
	return out
}

type RoleAssignment struct {
	ID            int64      `json:"id"`
	ParticipantID int64      `json:"participant_id"`
	Role          roles.Role `json:"role"`
	ActivatedAt   time.Time  `json:"activated_at"`
	RenouncedAt   *time.Time `json:"renounced_at,omitempty"`
}

func (a RoleAssignment) Active() bool {
	return a.RenouncedAt == nil
}

// ParticipantsStore persists individuals, participants, their role
// assignments, the cached subject pointers and the subject event log. A store
// obtained inside InTx runs every call on that transaction.
type ParticipantsStore interface {
	InTx(ctx context.Context, fn func(tx ParticipantsStore) error) error
	Savepoint(ctx context.Context, name string, fn func() error) error
	LockSubject(ctx context.Context, ref SubjectRef) (bool, error)
	ListSubjects(ctx context.Context, t SubjectType) ([]SubjectRef, error)

	GetOrCreateIndividual(ctx context.Context, email string, profile IndividualProfile) (*Individual, error)
	GetIndividualByEmail(ctx context.Context, email string) (*Individual, error)

	GetOrCreateParticipant(ctx context.Context, ref SubjectRef, individual *Individual, serviceRef *string, initialRole roles.Role, now time.Time) (*Participant, bool, error)
	GetParticipant(ctx context.Context, id int64) (*Participant, error)
	GetParticipantBySubjectAndEmail(ctx context.Context, ref SubjectRef, email string) (*Participant, error)
	ListParticipants(ctx context.Context, ref SubjectRef) ([]Participant, error)
	SetParticipantService(ctx context.Context, participantID int64, serviceRef *string) error

	GetRoleAssignment(ctx context.Context, id int64) (*RoleAssignment, error)
	ListRoleAssignments(ctx context.Context, participantID int64) ([]RoleAssignment, error)
	ActiveAssignmentsForSubject(ctx context.Context, ref SubjectRef, role roles.Role) ([]RoleAssignment, error)
	LastRenouncedAssignment(ctx context.Context, participantID int64) (*RoleAssignment, error)
	AppendRoleAssignment(ctx context.Context, participantID int64, role roles.Role, at time.Time) (*RoleAssignment, error)
	RenounceRoleAssignment(ctx context.Context, id int64, at time.Time) error

	SubjectPointers(ctx context.Context, ref SubjectRef) (*SubjectPointers, error)
	SetSubjectPointer(ctx context.Context, ref SubjectRef, spec roles.PointerSpec, participantID *int64, location string) error

	LogEvent(ctx context.Context, ev *Event) error
	ListEvents(ctx context.Context, ref SubjectRef, limit int) ([]Event, error)
}

type participantsStore struct {
	db *DB
	q  querier
}

func NewParticipantsStore(db *DB) ParticipantsStore {
	return &participantsStore{db: db, q: db.querier()}
}

// InTx runs fn with a store bound to a single transaction. Nested calls reuse
// the enclosing transaction.
func (s *participantsStore) InTx(ctx context.Context, fn func(tx ParticipantsStore) error) error {
	if s.q.inTx {
		return fn(s)
	}
	return s.db.inTx(ctx, func(q querier) error {
		return fn(&participantsStore{db: s.db, q: q})
	})
}

// Savepoint runs fn under a named savepoint of the bound transaction so a
// failing fn leaves the rest of the transaction intact.
func (s *participantsStore) Savepoint(ctx context.Context, name string, fn func() error) error {
	return s.q.savepoint(ctx, name, fn)
}

func (s *participantsStore) LockSubject(ctx context.Context, ref SubjectRef) (bool, error) {
	return lockSubject(ctx, s.q, ref)
}

func (s *participantsStore) ListSubjects(ctx context.Context, t SubjectType) ([]SubjectRef, error) {
	return listSubjects(ctx, s.q, t)
}

func (s *participantsStore) SubjectPointers(ctx context.Context, ref SubjectRef) (*SubjectPointers, error) {
	return subjectPointers(ctx, s.q, ref)
}

func (s *participantsStore) SetSubjectPointer(ctx context.Context, ref SubjectRef, spec roles.PointerSpec, participantID *int64, location string) error {
	return setSubjectPointer(ctx, s.q, ref, spec, participantID, location)
}

// NormalizeEmail is the canonical form individuals are keyed by.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

func (s *participantsStore) GetOrCreateIndividual(ctx context.Context, email string, profile IndividualProfile) (*Individual, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("individual email is required")
	}
	name := normalizeName(profile.Name)
	if name == "" {
		name = email
	}
	now := time.Now().UTC()
	if _, err := s.q.exec(ctx, `
		INSERT INTO individuals(email, name, location, team, weblink, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT (email) DO NOTHING`,
		email, name, strings.TrimSpace(profile.Location), strings.TrimSpace(profile.Team), strings.TrimSpace(profile.Weblink), now, now); err != nil {
		return nil, err
	}
	ind, err := s.GetIndividualByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if ind == nil {
		return nil, ErrNotFound
	}
	return ind, nil
}

func (s *participantsStore) GetIndividualByEmail(ctx context.Context, email string) (*Individual, error) {
	var ind Individual
	err := s.q.queryRow(ctx, `
		SELECT id, email, name, location, team, weblink, created_at, updated_at
		FROM individuals WHERE email=?`, NormalizeEmail(email)).
		Scan(&ind.ID, &ind.Email, &ind.Name, &ind.Location, &ind.Team, &ind.Weblink, &ind.CreatedAt, &ind.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ind, nil
}

// GetOrCreateParticipant returns the participant joining individual to the
// subject, creating it with a single initialRole assignment activated at now
// when absent. The bool reports whether it was created.
func (s *participantsStore) GetOrCreateParticipant(ctx context.Context, ref SubjectRef, individual *Individual, serviceRef *string, initialRole roles.Role, now time.Time) (*Participant, bool, error) {
	var id int64
	err := s.q.queryRow(ctx, `
		INSERT INTO participants(subject_type, subject_id, individual_id, service_ref, location, team, created_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT (subject_type, subject_id, individual_id) DO NOTHING
		RETURNING id`,
		string(ref.Type), ref.ID, individual.ID, nullableString(serviceRef), individual.Location, individual.Team, now).Scan(&id)
	created := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = false
	case err != nil:
		return nil, false, err
	}
	if created {
		if _, err := s.AppendRoleAssignment(ctx, id, initialRole, now); err != nil {
			return nil, false, err
		}
		p, err := s.GetParticipant(ctx, id)
		return p, true, err
	}
	p, err := s.GetParticipantBySubjectAndEmail(ctx, ref, individual.Email)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, ErrNotFound
	}
	return p, false, nil
}

const participantSelect = `
	SELECT p.id, p.subject_type, p.subject_id, p.individual_id, i.email, i.name, p.service_ref, p.location, p.team, p.created_at
	FROM participants p
	JOIN individuals i ON i.id = p.individual_id`

func (s *participantsStore) GetParticipant(ctx context.Context, id int64) (*Participant, error) {
	p, err := scanParticipant(s.q.queryRow(ctx, participantSelect+` WHERE p.id=?`, id))
	if err != nil || p == nil {
		return p, err
	}
	if p.Assignments, err = s.ListRoleAssignments(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *participantsStore) GetParticipantBySubjectAndEmail(ctx context.Context, ref SubjectRef, email string) (*Participant, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	p, err := scanParticipant(s.q.queryRow(ctx, participantSelect+`
		WHERE p.subject_type=? AND p.subject_id=? AND i.email=?`, string(ref.Type), ref.ID, email))
	if err != nil || p == nil {
		return p, err
	}
	if p.Assignments, err = s.ListRoleAssignments(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *participantsStore) ListParticipants(ctx context.Context, ref SubjectRef) ([]Participant, error) {
	rows, err := s.q.query(ctx, participantSelect+`
		WHERE p.subject_type=? AND p.subject_id=?
		ORDER BY p.created_at, p.id`, string(ref.Type), ref.ID)
	if err != nil {
		return nil, err
	}
	var res []Participant
	index := map[int64]int{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(res)
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(res) == 0 {
		return res, nil
	}
	arows, err := s.q.query(ctx, `
		SELECT ra.id, ra.participant_id, ra.role, ra.activated_at, ra.renounced_at
		FROM role_assignments ra
		JOIN participants p ON p.id = ra.participant_id
		WHERE p.subject_type=? AND p.subject_id=?
		ORDER BY ra.activated_at, ra.id`, string(ref.Type), ref.ID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		a, err := scanRoleAssignment(arows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[a.ParticipantID]; ok {
			res[i].Assignments = append(res[i].Assignments, *a)
		}
	}
	return res, arows.Err()
}

func (s *participantsStore) SetParticipantService(ctx context.Context, participantID int64, serviceRef *string) error {
	res, err := s.q.exec(ctx, `UPDATE participants SET service_ref=? WHERE id=?`, nullableString(serviceRef), participantID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

const assignmentSelect = `SELECT id, participant_id, role, activated_at, renounced_at FROM role_assignments`

func (s *participantsStore) GetRoleAssignment(ctx context.Context, id int64) (*RoleAssignment, error) {
	a, err := scanRoleAssignment(s.q.queryRow(ctx, assignmentSelect+` WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListRoleAssignments returns a participant's history in activation order.
func (s *participantsStore) ListRoleAssignments(ctx context.Context, participantID int64) ([]RoleAssignment, error) {
	return s.listAssignments(ctx, assignmentSelect+` WHERE participant_id=? ORDER BY activated_at, id`, participantID)
}

// ActiveAssignmentsForSubject lists active assignments of one kind across all
// participants of the subject, most recently activated first.
func (s *participantsStore) ActiveAssignmentsForSubject(ctx context.Context, ref SubjectRef, role roles.Role) ([]RoleAssignment, error) {
	return s.listAssignments(ctx, `
		SELECT ra.id, ra.participant_id, ra.role, ra.activated_at, ra.renounced_at
		FROM role_assignments ra
		JOIN participants p ON p.id = ra.participant_id
		WHERE p.subject_type=? AND p.subject_id=? AND ra.role=? AND ra.renounced_at IS NULL
		ORDER BY ra.activated_at DESC, ra.id DESC`, string(ref.Type), ref.ID, string(role))
}

func (s *participantsStore) LastRenouncedAssignment(ctx context.Context, participantID int64) (*RoleAssignment, error) {
	a, err := scanRoleAssignment(s.q.queryRow(ctx, assignmentSelect+`
		WHERE participant_id=? AND renounced_at IS NOT NULL
		ORDER BY renounced_at DESC, id DESC LIMIT 1`, participantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *participantsStore) AppendRoleAssignment(ctx context.Context, participantID int64, role roles.Role, at time.Time) (*RoleAssignment, error) {
	a := RoleAssignment{ParticipantID: participantID, Role: role, ActivatedAt: at}
	if err := s.q.queryRow(ctx, `
		INSERT INTO role_assignments(participant_id, role, activated_at)
		VALUES(?,?,?)
		RETURNING id`, participantID, string(role), at).Scan(&a.ID); err != nil {
		return nil, err
	}
	return &a, nil
}

// RenounceRoleAssignment stamps renounced_at on an active assignment.
// ErrNotFound when the id is unknown, ErrInvalidState when already renounced.
func (s *participantsStore) RenounceRoleAssignment(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.exec(ctx, `UPDATE role_assignments SET renounced_at=? WHERE id=? AND renounced_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	existing, err := s.GetRoleAssignment(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	return ErrInvalidState
}

func (s *participantsStore) listAssignments(ctx context.Context, query string, args ...any) ([]RoleAssignment, error) {
	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RoleAssignment
	for rows.Next() {
		a, err := scanRoleAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func scanParticipant(row rowScanner) (*Participant, error) {
	var p Participant
	var subjectType string
	var service sql.NullString
	if err := row.Scan(&p.ID, &subjectType, &p.SubjectID, &p.IndividualID, &p.Email, &p.Name, &service, &p.Location, &p.Team, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.SubjectType = SubjectType(subjectType)
	if service.Valid {
		p.ServiceRef = &service.String
	}
	return &p, nil
}

func scanRoleAssignment(row rowScanner) (*RoleAssignment, error) {
	var a RoleAssignment
	var role string
	var renounced sql.NullTime
	if err := row.Scan(&a.ID, &a.ParticipantID, &role, &a.ActivatedAt, &renounced); err != nil {
		return nil, err
	}
	a.Role = roles.Role(role)
	if renounced.Valid {
		t := renounced.Time
		a.RenouncedAt = &t
	}
	return &a, nil
}
