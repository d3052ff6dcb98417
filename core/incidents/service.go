// Package incidents creates incidents and cases and staffs their initial
// roles through the participant engine.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warroom/config"
	"warroom/core/metrics"
	"warroom/core/oncall"
	"warroom/core/participants"
	"warroom/core/roles"
	"warroom/core/store"
	"warroom/core/utils"
)

type CreateInput struct {
	Title            string                  `json:"title"`
	Description      string                  `json:"description"`
	Status           string                  `json:"status"`
	IncidentType     string                  `json:"incident_type"`
	IncidentPriority string                  `json:"incident_priority"`
	Visibility       string                  `json:"visibility"`
	ReporterEmail    string                  `json:"reporter_email"`
	Reporter         store.IndividualProfile `json:"-"`
}

type CaseInput struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ReporterEmail string `json:"reporter_email"`
	AssigneeEmail string `json:"assignee_email"`
}

type Service struct {
	cfg          config.IncidentsConfig
	casesCfg     config.CasesConfig
	incidents    store.IncidentsStore
	cases        store.CasesStore
	participants *participants.Service
	resolver     oncall.Resolver
	pager        oncall.Pager
	logger       *utils.Logger
	metrics      *metrics.Metrics
}

func NewService(cfg config.IncidentsConfig, casesCfg config.CasesConfig, incidents store.IncidentsStore, cases store.CasesStore, engine *participants.Service, logger *utils.Logger, m *metrics.Metrics) *Service {
	return &Service{cfg: cfg, casesCfg: casesCfg, incidents: incidents, cases: cases, participants: engine, logger: logger, metrics: m}
}

// SetOncall wires the oncall collaborators. Without a resolver every role
// falls back to the reporter; without a pager nobody is paged.
func (s *Service) SetOncall(resolver oncall.Resolver, pager oncall.Pager) {
	s.resolver = resolver
	s.pager = pager
}

// Create stores a new incident and assigns reporter, commander and liaison, in
// that order. Commander and liaison default to the reporter unless the
// incident type names an oncall service that resolves to someone else.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Incident, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", participants.ErrInvalidArgument)
	}
	if store.NormalizeEmail(in.ReporterEmail) == "" {
		return nil, fmt.Errorf("%w: reporter email is required", participants.ErrInvalidArgument)
	}
	typ, err := s.resolveType(in.IncidentType)
	if err != nil {
		return nil, err
	}
	priority, err := s.resolvePriority(in.IncidentPriority)
	if err != nil {
		return nil, err
	}
	visibility := strings.TrimSpace(in.Visibility)
	if visibility == "" {
		visibility = typ.Visibility
	}
	inc := &store.Incident{
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		Status:           strings.ToLower(strings.TrimSpace(in.Status)),
		IncidentType:     typ.Name,
		IncidentPriority: priority.Name,
		Visibility:       visibility,
	}
	switch inc.Status {
	case "", store.IncidentStatusActive, store.IncidentStatusStable, store.IncidentStatusClosed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", participants.ErrInvalidArgument, in.Status)
	}
	if _, err := s.incidents.CreateIncident(ctx, inc, s.cfg.NameFormat); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	s.logger.Printf("incidents: created %s (%s/%s)", inc.Name, inc.IncidentType, inc.IncidentPriority)
	s.participants.LogEvent(ctx, inc.Ref(), "Incident created", s.cfg.EventSource)

	for _, role := range []roles.Role{roles.Reporter, roles.Commander, roles.Liaison} {
		if _, err := s.AssignRole(ctx, inc, in.ReporterEmail, role, in.Reporter); err != nil {
			return nil, fmt.Errorf("assign %s: %w", role, err)
		}
	}
	return s.Get(ctx, inc.ID)
}

// AssignRole resolves who should hold role on the incident and hands the
// assignment to the participant engine. The commander is paged when the
// incident priority asks for it; a failed page is logged only.
func (s *Service) AssignRole(ctx context.Context, inc *store.Incident, reporterEmail string, role roles.Role, profile store.IndividualProfile) (*participants.AssignResult, error) {
	email := reporterEmail
	var serviceRef *string
	typ, _ := s.cfg.FindType(inc.IncidentType)
	var service string
	switch role {
	case roles.Commander:
		service = typ.CommanderService
	case roles.Liaison:
		service = typ.LiaisonService
	}
	if service != "" {
		svc := service
		serviceRef = &svc
		if s.resolver != nil {
			resolved, err := s.resolver.Resolve(ctx, service)
			if err != nil {
				return nil, fmt.Errorf("resolve oncall for %s: %w", service, err)
			}
			if resolved != "" {
				email = resolved
			}
		}
		if role == roles.Commander {
			s.pageCommander(ctx, inc, service, email)
		}
	}
	opts := participants.Options{ServiceRef: serviceRef}
	if store.NormalizeEmail(email) == store.NormalizeEmail(reporterEmail) {
		opts.Profile = profile
	}
	return s.participants.Assign(ctx, inc.Ref(), email, role, opts)
}

func (s *Service) pageCommander(ctx context.Context, inc *store.Incident, service, email string) {
	priority, ok := s.cfg.FindPriority(inc.IncidentPriority)
	if !ok || !priority.PageCommander || s.pager == nil {
		return
	}
	err := s.pager.Page(ctx, oncall.Page{
		ServiceRef:  service,
		Email:       email,
		Name:        inc.Name,
		Title:       inc.Title,
		Description: inc.Description,
	})
	s.metrics.Page(err == nil)
	if err != nil {
		s.logger.Warnf("incidents: paging %s for %s failed: %v", service, inc.Name, err)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, fmt.Errorf("incident %d: %w", id, participants.ErrNotFound)
	}
	return inc, nil
}

func (s *Service) List(ctx context.Context, filter store.IncidentFilter) ([]store.Incident, error) {
	return s.incidents.ListIncidents(ctx, filter)
}

// UpdateStatus moves the incident to status and records the change.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*store.Incident, error) {
	inc, err := s.incidents.UpdateIncidentStatus(ctx, id, status)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, fmt.Errorf("incident %d already %s: %w", id, status, participants.ErrInvalidState)
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("incident %d: %w", id, participants.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", participants.ErrInvalidArgument, err)
	}
	s.participants.LogEvent(ctx, inc.Ref(), "Incident marked as "+inc.Status, s.cfg.EventSource)
	return inc, nil
}

// Delete removes the incident with its participants and events.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.incidents.DeleteIncident(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("incident %d: %w", id, participants.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *Service) resolveType(name string) (config.IncidentType, error) {
	name = strings.TrimSpace(name)
	if len(s.cfg.Types) == 0 {
		if name == "" {
			name = s.cfg.DefaultType
		}
		return config.IncidentType{Name: name, Visibility: "open"}, nil
	}
	if name == "" {
		name = s.cfg.DefaultType
		if name == "" {
			return config.IncidentType{}, fmt.Errorf("%w: no incident type given and no default defined", participants.ErrConfiguration)
		}
	}
	typ, ok := s.cfg.FindType(name)
	if !ok {
		if name == s.cfg.DefaultType {
			return config.IncidentType{}, fmt.Errorf("%w: default incident type %q is not defined", participants.ErrConfiguration, name)
		}
		return config.IncidentType{}, fmt.Errorf("%w: unknown incident type %q", participants.ErrInvalidArgument, name)
	}
	if typ.Disabled {
		return config.IncidentType{}, fmt.Errorf("%w: incident type %q must be enabled", participants.ErrInvalidArgument, name)
	}
	if typ.Visibility == "" {
		typ.Visibility = "open"
	}
	return typ, nil
}

func (s *Service) resolvePriority(name string) (config.IncidentPriority, error) {
	name = strings.TrimSpace(name)
	if len(s.cfg.Priorities) == 0 {
		if name == "" {
			name = s.cfg.DefaultPriority
		}
		return config.IncidentPriority{Name: name}, nil
	}
	if name == "" {
		name = s.cfg.DefaultPriority
		if name == "" {
			return config.IncidentPriority{}, fmt.Errorf("%w: no incident priority given and no default defined", participants.ErrConfiguration)
		}
	}
	p, ok := s.cfg.FindPriority(name)
	if !ok {
		if name == s.cfg.DefaultPriority {
			return config.IncidentPriority{}, fmt.Errorf("%w: default incident priority %q is not defined", participants.ErrConfiguration, name)
		}
		return config.IncidentPriority{}, fmt.Errorf("%w: unknown incident priority %q", participants.ErrInvalidArgument, name)
	}
	if p.Disabled {
		return config.IncidentPriority{}, fmt.Errorf("%w: incident priority %q must be enabled", participants.ErrInvalidArgument, name)
	}
	return p, nil
}
