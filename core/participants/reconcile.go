package participants

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"warroom/core/metrics"
	"warroom/core/roles"
	"warroom/core/store"
	"warroom/core/utils"
)

// Reconciler walks every subject and rewrites cached pointers that no longer
// match assignment history.
type Reconciler struct {
	store   store.ParticipantsStore
	spec    string
	logger  *utils.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewReconciler(ps store.ParticipantsStore, spec string, logger *utils.Logger, m *metrics.Metrics) *Reconciler {
	if spec == "" {
		spec = "@every 15m"
	}
	return &Reconciler{store: ps, spec: spec, logger: logger, metrics: m}
}

// RunOnce repairs all subjects and returns the number of pointers rewritten.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	repaired := 0
	for _, t := range []store.SubjectType{store.SubjectIncident, store.SubjectCase} {
		refs, err := r.store.ListSubjects(ctx, t)
		if err != nil {
			return repaired, fmt.Errorf("list %s subjects: %w", t, err)
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			n, err := r.repair(ctx, ref)
			if err != nil {
				return repaired, fmt.Errorf("repair %s: %w", ref, err)
			}
			repaired += n
		}
	}
	if repaired > 0 {
		r.logger.Printf("participants: reconciler repaired %d subject pointers", repaired)
	}
	return repaired, nil
}

func (r *Reconciler) repair(ctx context.Context, ref store.SubjectRef) (int, error) {
	repaired := 0
	err := r.store.InTx(ctx, func(tx store.ParticipantsStore) error {
		ok, err := tx.LockSubject(ctx, ref)
		if err != nil || !ok {
			return err
		}
		ptrs, err := tx.SubjectPointers(ctx, ref)
		if err != nil || ptrs == nil {
			return err
		}
		for _, spec := range roles.Pointers() {
			holder, err := currentHolder(ctx, tx, ref, spec.Role)
			if err != nil {
				return err
			}
			cached, has := ptrs.Holder(spec.Role)
			switch {
			case holder == nil && !has:
				continue
			case holder != nil && has && holder.ID == cached && (spec.LocationColumn == "" || ptrs.Locations[spec.Role] == holder.Location):
				continue
			}
			if holder == nil {
				err = tx.SetSubjectPointer(ctx, ref, spec, nil, "")
			} else {
				err = tx.SetSubjectPointer(ctx, ref, spec, &holder.ID, holder.Location)
			}
			if err != nil {
				return err
			}
			r.logger.Warnf("participants: %s pointer on %s drifted, repaired", spec.Role, ref)
			r.metrics.PointerRepair(string(spec.Role))
			repaired++
		}
		return nil
	})
	return repaired, err
}

// StartWithContext schedules RunOnce on the cron spec until StopWithContext.
func (r *Reconciler) StartWithContext(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Errorf("participants: pointer reconcile failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("pointer sync schedule %q: %w", r.spec, err)
	}
	c.Start()
	r.cron = c
	r.running = true
	return nil
}

func (r *Reconciler) StopWithContext(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	c := r.cron
	wasRunning := r.running
	r.cron = nil
	r.running = false
	r.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
