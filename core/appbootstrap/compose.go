package appbootstrap

import (
	"fmt"

	"warroom/api"
	"warroom/config"
	"warroom/core/auth"
	"warroom/core/incidents"
	"warroom/core/metrics"
	"warroom/core/notify"
	"warroom/core/oncall"
	"warroom/core/participants"
	"warroom/core/rbac"
	"warroom/core/store"
	"warroom/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	notifier   *notify.Notifier
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger, m *metrics.Metrics) (*runtimeComposition, error) {
	participantsStore := store.NewParticipantsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	casesStore := store.NewCasesStore(db)

	engine := participants.NewService(participantsStore, cfg.Incidents.EventSource, logger, m)
	notifier, err := notify.NewFromConfig(cfg.Notify, logger, m)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if notifier != nil {
		engine.SetNotifier(notifier)
	}

	incidentsSvc := incidents.NewService(cfg.Incidents, cfg.Cases, incidentsStore, casesStore, engine, logger, m)
	resolver, pager := oncall.FromConfig(cfg.Oncall)
	incidentsSvc.SetOncall(resolver, pager)

	policy, err := rbac.NewPolicy(cfg.Auth.Roles)
	if err != nil {
		return nil, err
	}

	var workers []api.BackgroundWorker
	if cfg.Scheduler.Enabled {
		workers = append(workers, participants.NewReconciler(participantsStore, cfg.Scheduler.PointerSyncSpec, logger, m))
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			DB:           db,
			IncidentsSvc: incidentsSvc,
			Participants: engine,
			Policy:       policy,
			Tokens:       auth.NewTokenAuthenticator(cfg.Auth.Tokens),
			Metrics:      m,
		},
		notifier: notifier,
		workers:  workers,
	}, nil
}
