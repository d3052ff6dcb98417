package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warroom/core/participants"
	"warroom/core/roles"
	"warroom/core/store"
)

// CreateCase stores a case and assigns its reporter and, when given, its
// assignee.
func (s *Service) CreateCase(ctx context.Context, in CaseInput) (*store.Case, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", participants.ErrInvalidArgument)
	}
	c := &store.Case{Title: strings.TrimSpace(in.Title), Description: strings.TrimSpace(in.Description)}
	if _, err := s.cases.CreateCase(ctx, c, s.casesCfg.NameFormat); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	s.participants.LogEvent(ctx, c.Ref(), "Case created", s.cfg.EventSource)
	if store.NormalizeEmail(in.ReporterEmail) != "" {
		if _, err := s.participants.Assign(ctx, c.Ref(), in.ReporterEmail, roles.Reporter, participants.Options{}); err != nil {
			return nil, fmt.Errorf("assign reporter: %w", err)
		}
	}
	if store.NormalizeEmail(in.AssigneeEmail) != "" {
		if _, err := s.participants.Assign(ctx, c.Ref(), in.AssigneeEmail, roles.Assignee, participants.Options{}); err != nil {
			return nil, fmt.Errorf("assign assignee: %w", err)
		}
	}
	return s.GetCase(ctx, c.ID)
}

func (s *Service) GetCase(ctx context.Context, id int64) (*store.Case, error) {
	c, err := s.cases.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("case %d: %w", id, participants.ErrNotFound)
	}
	return c, nil
}

func (s *Service) ListCases(ctx context.Context, limit int) ([]store.Case, error) {
	return s.cases.ListCases(ctx, limit)
}

func (s *Service) DeleteCase(ctx context.Context, id int64) error {
	if err := s.cases.DeleteCase(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("case %d: %w", id, participants.ErrNotFound)
		}
		return err
	}
	return nil
}
