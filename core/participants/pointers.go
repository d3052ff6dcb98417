package participants

import (
	"context"
	"fmt"

	"warroom/core/roles"
	"warroom/core/store"
)

// syncPointer recomputes the cached subject pointer for a privileged role from
// assignment history: the most recently activated active assignment wins,
// ties broken by id. With no active holder the pointer is cleared.
func (s *Service) syncPointer(ctx context.Context, tx store.ParticipantsStore, ref store.SubjectRef, role roles.Role) error {
	spec, ok := roles.Pointer(role)
	if !ok {
		return nil
	}
	holder, err := currentHolder(ctx, tx, ref, role)
	if err != nil {
		return err
	}
	if holder == nil {
		return tx.SetSubjectPointer(ctx, ref, spec, nil, "")
	}
	return tx.SetSubjectPointer(ctx, ref, spec, &holder.ID, holder.Location)
}

// CurrentHolder derives the participant holding a privileged role on the
// subject from assignment history. It returns nil when the role is vacant.
func (s *Service) CurrentHolder(ctx context.Context, ref store.SubjectRef, role roles.Role) (*store.Participant, error) {
	if !roles.IsPrivileged(role) {
		return nil, fmt.Errorf("%w: %s is not a privileged role", ErrInvalidArgument, role)
	}
	return currentHolder(ctx, s.store, ref, role)
}

// SubjectPointers returns the cached pointers of the subject.
func (s *Service) SubjectPointers(ctx context.Context, ref store.SubjectRef) (*store.SubjectPointers, error) {
	ptrs, err := s.store.SubjectPointers(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ptrs == nil {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return ptrs, nil
}

func currentHolder(ctx context.Context, ps store.ParticipantsStore, ref store.SubjectRef, role roles.Role) (*store.Participant, error) {
	actives, err := ps.ActiveAssignmentsForSubject(ctx, ref, role)
	if err != nil {
		return nil, err
	}
	if len(actives) == 0 {
		return nil, nil
	}
	return ps.GetParticipant(ctx, actives[0].ParticipantID)
}
