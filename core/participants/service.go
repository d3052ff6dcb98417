// Package participants implements the role assignment state machine: who takes
// part in an incident or case and which roles they currently hold.
package participants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"warroom/core/metrics"
	"warroom/core/roles"
	"warroom/core/store"
	"warroom/core/utils"
)

// Notifier receives a description of every committed transition. Delivery is
// the notifier's business; the engine does not wait for it.
type Notifier interface {
	Notify(ctx context.Context, ref store.SubjectRef, description string)
}

// Options tune a single Assign. ServiceRef, when set, replaces the
// participant's service reference. Profile seeds a newly created individual.
type Options struct {
	ServiceRef *string
	Profile    store.IndividualProfile
}

type AssignResult struct {
	Participant *store.Participant     `json:"participant"`
	Assignment  *store.RoleAssignment  `json:"assignment,omitempty"`
	Renounced   []store.RoleAssignment `json:"renounced,omitempty"`
	Created     bool                   `json:"created"`
	Changed     bool                   `json:"changed"`
}

type Service struct {
	store    store.ParticipantsStore
	logger   *utils.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	source   string
	now      func() time.Time
}

func NewService(ps store.ParticipantsStore, source string, logger *utils.Logger, m *metrics.Metrics) *Service {
	if strings.TrimSpace(source) == "" {
		source = "Warroom Core App"
	}
	return &Service{store: ps, logger: logger, metrics: m, source: source, now: utils.NowUTC}
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) SetClock(now func() time.Time) {
	if now == nil {
		now = utils.NowUTC
	}
	s.now = now
}

// AddParticipant joins email to the subject with the default role.
func (s *Service) AddParticipant(ctx context.Context, ref store.SubjectRef, email string, opts Options) (*AssignResult, error) {
	return s.Assign(ctx, ref, email, roles.Default(), opts)
}

// Assign grants role to the participant identified by email, creating the
// individual and the participant when needed. For privileged roles every other
// active holder of the kind on the subject is renounced first and the subject
// pointer follows the new holder. Assigning a role the participant already
// actively holds changes nothing.
func (s *Service) Assign(ctx context.Context, ref store.SubjectRef, email string, role roles.Role, opts Options) (*AssignResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	if store.NormalizeEmail(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	var res *AssignResult
	err := s.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		if err := s.lock(ctx, tx, ref); err != nil {
			return err
		}
		var err error
		res, err = s.assignTx(ctx, tx, ref, email, role, opts, s.now())
		if err != nil || !res.Changed {
			return err
		}
		s.logEventTx(ctx, tx, ref, ref.Type.Label()+" group updated", map[string]any{
			"email": res.Participant.Email,
			"role":  string(role),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Changed {
		s.metrics.Transition("assign", string(role))
		s.notify(ctx, ref, fmt.Sprintf("%s is now %s", res.Participant.Name, role))
	}
	return res, nil
}

func (s *Service) assignTx(ctx context.Context, tx store.ParticipantsStore, ref store.SubjectRef, email string, role roles.Role, opts Options, now time.Time) (*AssignResult, error) {
	ind, err := tx.GetOrCreateIndividual(ctx, email, opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("resolve individual: %w", err)
	}
	existing, err := tx.GetParticipantBySubjectAndEmail(ctx, ref, ind.Email)
	if err != nil {
		return nil, err
	}
	res := &AssignResult{Participant: existing}
	if existing != nil && holdsActive(existing, role) {
		return res, nil
	}
	if roles.IsPrivileged(role) {
		actives, err := tx.ActiveAssignmentsForSubject(ctx, ref, role)
		if err != nil {
			return nil, err
		}
		for _, a := range actives {
			if existing != nil && a.ParticipantID == existing.ID {
				continue
			}
			if err := tx.RenounceRoleAssignment(ctx, a.ID, now); err != nil {
				return nil, fmt.Errorf("renounce previous %s: %w", role, err)
			}
			renounced := a
			renounced.RenouncedAt = &now
			res.Renounced = append(res.Renounced, renounced)
		}
	}
	if existing == nil {
		p, created, err := tx.GetOrCreateParticipant(ctx, ref, ind, opts.ServiceRef, role, now)
		if err != nil {
			return nil, err
		}
		res.Participant = p
		res.Created = created
		if len(p.Assignments) > 0 {
			a := p.Assignments[len(p.Assignments)-1]
			res.Assignment = &a
		}
	} else {
		a, err := tx.AppendRoleAssignment(ctx, existing.ID, role, now)
		if err != nil {
			return nil, err
		}
		if opts.ServiceRef != nil {
			if err := tx.SetParticipantService(ctx, existing.ID, opts.ServiceRef); err != nil {
				return nil, err
			}
		}
		res.Assignment = a
		if res.Participant, err = tx.GetParticipant(ctx, existing.ID); err != nil {
			return nil, err
		}
	}
	res.Changed = true
	if err := s.syncPointer(ctx, tx, ref, role); err != nil {
		return nil, err
	}
	return res, nil
}

// Renounce ends one active assignment on the subject.
func (s *Service) Renounce(ctx context.Context, ref store.SubjectRef, assignmentID int64) (*store.RoleAssignment, error) {
	var out *store.RoleAssignment
	var name string
	err := s.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		if err := s.lock(ctx, tx, ref); err != nil {
			return err
		}
		a, err := tx.GetRoleAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("role assignment %d: %w", assignmentID, ErrNotFound)
		}
		p, err := tx.GetParticipant(ctx, a.ParticipantID)
		if err != nil {
			return err
		}
		if p == nil || p.Subject() != ref {
			return fmt.Errorf("role assignment %d on %s: %w", assignmentID, ref, ErrNotFound)
		}
		now := s.now()
		if err := tx.RenounceRoleAssignment(ctx, a.ID, now); err != nil {
			return fmt.Errorf("role assignment %d: %w", assignmentID, err)
		}
		a.RenouncedAt = &now
		if err := s.syncPointer(ctx, tx, ref, a.Role); err != nil {
			return err
		}
		name = p.Name
		s.logEventTx(ctx, tx, ref, fmt.Sprintf("%s has renounced the %s role", p.Name, a.Role), map[string]any{
			"email": p.Email,
			"role":  string(a.Role),
		})
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition("renounce", string(out.Role))
	s.notify(ctx, ref, fmt.Sprintf("%s is no longer %s", name, out.Role))
	return out, nil
}

// InactivateParticipant renounces every active assignment of the participant.
// It reports false when email is not a participant of the subject.
func (s *Service) InactivateParticipant(ctx context.Context, ref store.SubjectRef, email string) (bool, error) {
	var p *store.Participant
	err := s.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		if err := s.lock(ctx, tx, ref); err != nil {
			return err
		}
		var err error
		p, err = s.inactivateTx(ctx, tx, ref, email)
		return err
	})
	if err != nil || p == nil {
		return false, err
	}
	s.metrics.Transition("inactivate", "*")
	s.notify(ctx, ref, p.Name+" has been inactivated")
	return true, nil
}

func (s *Service) inactivateTx(ctx context.Context, tx store.ParticipantsStore, ref store.SubjectRef, email string) (*store.Participant, error) {
	p, err := tx.GetParticipantBySubjectAndEmail(ctx, ref, email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.logger.Debugf("participants: %s is not a participant of %s", store.NormalizeEmail(email), ref)
		return nil, nil
	}
	now := s.now()
	touched := map[roles.Role]bool{}
	for _, a := range p.Assignments {
		if !a.Active() {
			continue
		}
		if err := tx.RenounceRoleAssignment(ctx, a.ID, now); err != nil {
			return nil, fmt.Errorf("renounce %s: %w", a.Role, err)
		}
		touched[a.Role] = true
	}
	for _, r := range roles.Privileged() {
		if !touched[r] {
			continue
		}
		if err := s.syncPointer(ctx, tx, ref, r); err != nil {
			return nil, err
		}
	}
	s.logEventTx(ctx, tx, ref, p.Name+" has been inactivated", map[string]any{"email": p.Email})
	return p, nil
}

// Reactivate re-assigns the role of the participant's most recently renounced
// assignment. It reports false when email is not a participant of the subject
// or has never renounced a role.
func (s *Service) Reactivate(ctx context.Context, ref store.SubjectRef, email string, serviceRef *string) (bool, error) {
	var res *AssignResult
	var role roles.Role
	err := s.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		if err := s.lock(ctx, tx, ref); err != nil {
			return err
		}
		p, err := tx.GetParticipantBySubjectAndEmail(ctx, ref, email)
		if err != nil || p == nil {
			return err
		}
		last, err := tx.LastRenouncedAssignment(ctx, p.ID)
		if err != nil || last == nil {
			return err
		}
		role = last.Role
		res, err = s.assignTx(ctx, tx, ref, p.Email, role, Options{ServiceRef: serviceRef}, s.now())
		if err != nil {
			return err
		}
		if !res.Changed {
			if serviceRef == nil {
				return nil
			}
			if err := tx.SetParticipantService(ctx, p.ID, serviceRef); err != nil {
				return err
			}
		}
		s.logEventTx(ctx, tx, ref, p.Name+" has been reactivated", map[string]any{
			"email": p.Email,
			"role":  string(role),
		})
		return nil
	})
	if err != nil || res == nil {
		return false, err
	}
	if res.Changed {
		s.metrics.Transition("reactivate", string(role))
		s.notify(ctx, ref, res.Participant.Name+" has been reactivated")
	}
	return true, nil
}

// RemoveParticipant inactivates the participant and clears its service
// reference. It reports false when email is not a participant of the subject.
func (s *Service) RemoveParticipant(ctx context.Context, ref store.SubjectRef, email string) (bool, error) {
	var p *store.Participant
	err := s.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		if err := s.lock(ctx, tx, ref); err != nil {
			return err
		}
		var err error
		p, err = s.inactivateTx(ctx, tx, ref, email)
		if err != nil || p == nil {
			return err
		}
		if err := tx.SetParticipantService(ctx, p.ID, nil); err != nil {
			return err
		}
		s.logEventTx(ctx, tx, ref, p.Name+" has been removed", map[string]any{"email": p.Email})
		return nil
	})
	if err != nil || p == nil {
		return false, err
	}
	s.metrics.Transition("remove", "*")
	s.notify(ctx, ref, p.Name+" has been removed")
	return true, nil
}

func (s *Service) GetParticipant(ctx context.Context, ref store.SubjectRef, email string) (*store.Participant, error) {
	return s.store.GetParticipantBySubjectAndEmail(ctx, ref, email)
}

func (s *Service) ListParticipants(ctx context.Context, ref store.SubjectRef) ([]store.Participant, error) {
	return s.store.ListParticipants(ctx, ref)
}

func (s *Service) ListEvents(ctx context.Context, ref store.SubjectRef, limit int) ([]store.Event, error) {
	return s.store.ListEvents(ctx, ref, limit)
}

// LogEvent records an event outside of any transition. Failures are logged
// and counted, never returned.
func (s *Service) LogEvent(ctx context.Context, ref store.SubjectRef, description, source string) {
	if strings.TrimSpace(source) == "" {
		source = s.source
	}
	ev := &store.Event{SubjectType: ref.Type, SubjectID: ref.ID, Source: source, Description: description, StartedAt: s.now()}
	if err := s.store.LogEvent(ctx, ev); err != nil {
		s.logger.Warnf("participants: event %q on %s dropped: %v", description, ref, err)
		s.metrics.AuditFailure()
	}
}

// logEventTx writes the event inside the running transaction behind a
// savepoint. A failed write is undone on its own and the transition commits.
func (s *Service) logEventTx(ctx context.Context, tx store.ParticipantsStore, ref store.SubjectRef, description string, details map[string]any) {
	ev := &store.Event{
		SubjectType: ref.Type,
		SubjectID:   ref.ID,
		Source:      s.source,
		Description: description,
		Details:     details,
		StartedAt:   s.now(),
	}
	err := tx.Savepoint(ctx, "audit_event", func() error {
		return tx.LogEvent(ctx, ev)
	})
	if err != nil {
		s.logger.Warnf("participants: event %q on %s dropped: %v", description, ref, err)
		s.metrics.AuditFailure()
	}
}

func (s *Service) lock(ctx context.Context, tx store.ParticipantsStore, ref store.SubjectRef) error {
	ok, err := tx.LockSubject(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, ref store.SubjectRef, description string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, ref, description)
}

func holdsActive(p *store.Participant, role roles.Role) bool {
	for _, a := range p.Assignments {
		if a.Role == role && a.Active() {
			return true
		}
	}
	return false
}
