package participants

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warroom/core/metrics"
	"warroom/core/roles"
	"warroom/core/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(_ context.Context, ref store.SubjectRef, description string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ref.String()+" "+description)
}

type harness struct {
	db       *store.DB
	store    store.ParticipantsStore
	svc      *Service
	metrics  *metrics.Metrics
	notifier *recordingNotifier
	ref      store.SubjectRef
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "warroom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, nil))
	inc := &store.Incident{Title: "Checkout is down"}
	_, err = store.NewIncidentsStore(db).CreateIncident(ctx, inc, "")
	require.NoError(t, err)

	ps := store.NewParticipantsStore(db)
	m := metrics.New()
	svc := NewService(ps, "Warroom Core App", nil, m)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc.SetClock(clock.Now)
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	return &harness{db: db, store: ps, svc: svc, metrics: m, notifier: n, ref: inc.Ref()}
}

func (h *harness) pointer(t *testing.T, role roles.Role) (int64, bool) {
	t.Helper()
	ptrs, err := h.svc.SubjectPointers(context.Background(), h.ref)
	require.NoError(t, err)
	return ptrs.Holder(role)
}

func (h *harness) activeOfKind(t *testing.T, role roles.Role) []store.RoleAssignment {
	t.Helper()
	active, err := h.store.ActiveAssignmentsForSubject(context.Background(), h.ref, role)
	require.NoError(t, err)
	return active
}

func (h *harness) participant(t *testing.T, email string) *store.Participant {
	t.Helper()
	p, err := h.svc.GetParticipant(context.Background(), h.ref, email)
	require.NoError(t, err)
	require.NotNil(t, p, "participant %s", email)
	return p
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestCommanderHandoverScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Assign(ctx, h.ref, "alice@example.com", roles.Commander, Options{})
	require.NoError(t, err)
	require.True(t, res.Created)
	alice := res.Participant
	holder, ok := h.pointer(t, roles.Commander)
	require.True(t, ok)
	require.Equal(t, alice.ID, holder)
	require.Len(t, h.activeOfKind(t, roles.Commander), 1)

	res, err = h.svc.Assign(ctx, h.ref, "bob@example.com", roles.Commander, Options{})
	require.NoError(t, err)
	bob := res.Participant
	require.Len(t, res.Renounced, 1)
	holder, _ = h.pointer(t, roles.Commander)
	require.Equal(t, bob.ID, holder)

	aliceNow := h.participant(t, "alice@example.com")
	require.Len(t, aliceNow.Assignments, 1)
	prev := aliceNow.Assignments[0]
	require.NotNil(t, prev.RenouncedAt)
	require.True(t, prev.RenouncedAt.After(prev.ActivatedAt))
	require.False(t, prev.RenouncedAt.After(res.Assignment.ActivatedAt))

	active := h.activeOfKind(t, roles.Commander)
	require.Len(t, active, 1)
	require.Equal(t, bob.ID, active[0].ParticipantID)

	ok, err = h.svc.InactivateParticipant(ctx, h.ref, "bob@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, h.participant(t, "bob@example.com").ActiveRoles())
	_, ok = h.pointer(t, roles.Commander)
	require.False(t, ok, "commander pointer is cleared when nobody holds the role")
	vacant, err := h.svc.CurrentHolder(ctx, h.ref, roles.Commander)
	require.NoError(t, err)
	require.Nil(t, vacant)

	ok, err = h.svc.Reactivate(ctx, h.ref, "bob@example.com", nil)
	require.NoError(t, err)
	require.True(t, ok)
	holder, ok = h.pointer(t, roles.Commander)
	require.True(t, ok)
	require.Equal(t, bob.ID, holder)
	current, err := h.svc.CurrentHolder(ctx, h.ref, roles.Commander)
	require.NoError(t, err)
	require.Equal(t, bob.ID, current.ID)
	require.Len(t, h.activeOfKind(t, roles.Commander), 1)

	events, err := h.svc.ListEvents(ctx, h.ref, 0)
	require.NoError(t, err)
	var descriptions []string
	for _, ev := range events {
		descriptions = append(descriptions, ev.Description)
		require.Equal(t, "Warroom Core App", ev.Source)
	}
	require.Equal(t, []string{
		"Incident group updated",
		"Incident group updated",
		"bob@example.com has been inactivated",
		"bob@example.com has been reactivated",
	}, descriptions)
}

func TestAtMostOneActivePrivilegedAssignment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	steps := []struct {
		email string
		role  roles.Role
	}{
		{"a@example.com", roles.Scribe},
		{"b@example.com", roles.Scribe},
		{"a@example.com", roles.Liaison},
		{"c@example.com", roles.Scribe},
		{"b@example.com", roles.Liaison},
		{"a@example.com", roles.Scribe},
		{"c@example.com", roles.Participant},
		{"b@example.com", roles.Participant},
	}
	for i, step := range steps {
		res, err := h.svc.Assign(ctx, h.ref, step.email, step.role, Options{})
		require.NoError(t, err, "step %d", i)
		for _, r := range roles.Privileged() {
			active := h.activeOfKind(t, r)
			require.LessOrEqual(t, len(active), 1, "step %d role %s", i, r)
			holder, ok := h.pointer(t, r)
			if len(active) == 0 {
				require.False(t, ok, "step %d role %s", i, r)
				continue
			}
			require.True(t, ok)
			require.Equal(t, active[0].ParticipantID, holder, "step %d role %s", i, r)
		}
		if roles.IsPrivileged(step.role) {
			holder, _ := h.pointer(t, step.role)
			require.Equal(t, res.Participant.ID, holder)
		}
	}
	// participant is not exclusive
	list, err := h.svc.ListParticipants(ctx, h.ref)
	require.NoError(t, err)
	withParticipantRole := 0
	for _, p := range list {
		for _, r := range p.ActiveRoles() {
			if r == roles.Participant {
				withParticipantRole++
			}
		}
	}
	require.Equal(t, 2, withParticipantRole)
}

func TestParticipantMayHoldSeveralKinds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.AddParticipant(ctx, h.ref, "dan@example.com", Options{})
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, h.ref, "dan@example.com", roles.Liaison, Options{})
	require.NoError(t, err)
	p := h.participant(t, "dan@example.com")
	require.ElementsMatch(t, []roles.Role{roles.Participant, roles.Liaison}, p.ActiveRoles())
}

func TestReassignSameHolderIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.svc.Assign(ctx, h.ref, "erin@example.com", roles.Reporter, Options{})
	require.NoError(t, err)
	require.True(t, first.Changed)
	again, err := h.svc.Assign(ctx, h.ref, "ERIN@example.com", roles.Reporter, Options{})
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.Nil(t, again.Assignment)
	require.Equal(t, first.Participant.ID, again.Participant.ID)
	require.Len(t, h.participant(t, "erin@example.com").Assignments, 1)

	events, err := h.svc.ListEvents(ctx, h.ref, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.EqualValues(t, 1, counterValue(t, h.metrics, "warroom_role_transitions_total"))
}

func TestAssignRecordsLocationSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Assign(ctx, h.ref, "fay@example.com", roles.Commander, Options{Profile: store.IndividualProfile{Name: "Fay", Location: "Dublin"}})
	require.NoError(t, err)
	ptrs, err := h.svc.SubjectPointers(ctx, h.ref)
	require.NoError(t, err)
	require.Equal(t, "Dublin", ptrs.Locations[roles.Commander])
	inc, err := store.NewIncidentsStore(h.db).GetIncident(ctx, h.ref.ID)
	require.NoError(t, err)
	require.Equal(t, "Dublin", inc.Locations[roles.Commander])
}

func TestRenounce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Assign(ctx, h.ref, "gus@example.com", roles.Observer, Options{})
	require.NoError(t, err)
	id := res.Assignment.ID

	out, err := h.svc.Renounce(ctx, h.ref, id)
	require.NoError(t, err)
	require.NotNil(t, out.RenouncedAt)
	_, ok := h.pointer(t, roles.Observer)
	require.False(t, ok)

	_, err = h.svc.Renounce(ctx, h.ref, id)
	require.True(t, errors.Is(err, ErrInvalidState), "double renounce: %v", err)

	_, err = h.svc.Renounce(ctx, h.ref, 9999)
	require.True(t, errors.Is(err, ErrNotFound), "missing assignment: %v", err)

	other := &store.Case{Title: "other"}
	_, err = store.NewCasesStore(h.db).CreateCase(ctx, other, "")
	require.NoError(t, err)
	res, err = h.svc.Assign(ctx, h.ref, "gus@example.com", roles.Observer, Options{})
	require.NoError(t, err)
	_, err = h.svc.Renounce(ctx, other.Ref(), res.Assignment.ID)
	require.True(t, errors.Is(err, ErrNotFound), "assignment on another subject: %v", err)
}

func TestRenounceFallsBackToNoHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Assign(ctx, h.ref, "hal@example.com", roles.Assignee, Options{})
	require.NoError(t, err)
	_, err = h.svc.Renounce(ctx, h.ref, res.Assignment.ID)
	require.NoError(t, err)
	holder, err := h.svc.CurrentHolder(ctx, h.ref, roles.Assignee)
	require.NoError(t, err)
	require.Nil(t, holder)
	_, err = h.svc.CurrentHolder(ctx, h.ref, roles.Participant)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReactivateOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.svc.Reactivate(ctx, h.ref, "nobody@example.com", nil)
	require.NoError(t, err)
	require.False(t, ok, "not a participant")

	_, err = h.svc.AddParticipant(ctx, h.ref, "ivy@example.com", Options{})
	require.NoError(t, err)
	ok, err = h.svc.Reactivate(ctx, h.ref, "ivy@example.com", nil)
	require.NoError(t, err)
	require.False(t, ok, "no renounced history")

	_, err = h.svc.Assign(ctx, h.ref, "ivy@example.com", roles.Scribe, Options{})
	require.NoError(t, err)
	ok, err = h.svc.InactivateParticipant(ctx, h.ref, "ivy@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	svc := "payments-oncall"
	ok, err = h.svc.Reactivate(ctx, h.ref, "ivy@example.com", &svc)
	require.NoError(t, err)
	require.True(t, ok)
	p := h.participant(t, "ivy@example.com")
	require.Equal(t, []roles.Role{roles.Scribe}, p.ActiveRoles(), "the most recently renounced kind comes back")
	require.NotNil(t, p.ServiceRef)
	require.Equal(t, svc, *p.ServiceRef)
}

func TestReactivateTakesOverFromCurrentHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Assign(ctx, h.ref, "jo@example.com", roles.Commander, Options{})
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, h.ref, "kim@example.com", roles.Commander, Options{})
	require.NoError(t, err)
	ok, err := h.svc.Reactivate(ctx, h.ref, "jo@example.com", nil)
	require.NoError(t, err)
	require.True(t, ok)
	active := h.activeOfKind(t, roles.Commander)
	require.Len(t, active, 1)
	require.Equal(t, h.participant(t, "jo@example.com").ID, active[0].ParticipantID)
}

func TestInactivateAndRemoveUnknownParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ok, err := h.svc.InactivateParticipant(ctx, h.ref, "ghost@example.com")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = h.svc.RemoveParticipant(ctx, h.ref, "ghost@example.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveParticipantClearsService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := "db-oncall"
	_, err := h.svc.Assign(ctx, h.ref, "lee@example.com", roles.Liaison, Options{ServiceRef: &svc})
	require.NoError(t, err)
	require.NotNil(t, h.participant(t, "lee@example.com").ServiceRef)

	ok, err := h.svc.RemoveParticipant(ctx, h.ref, "lee@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	p := h.participant(t, "lee@example.com")
	require.Nil(t, p.ServiceRef)
	require.Empty(t, p.ActiveRoles())
	_, has := h.pointer(t, roles.Liaison)
	require.False(t, has)

	events, err := h.svc.ListEvents(ctx, h.ref, 0)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, "lee@example.com has been removed", last.Description)
}

func TestUnknownSubjectAndBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	missing := store.SubjectRef{Type: store.SubjectIncident, ID: 4040}
	_, err := h.svc.Assign(ctx, missing, "a@example.com", roles.Commander, Options{})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.Assign(ctx, h.ref, "a@example.com", roles.Role("owner"), Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.svc.Assign(ctx, h.ref, "  ", roles.Commander, Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	ind, err := h.store.GetIndividualByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Nil(t, ind, "failed transition must not leave an individual behind")
}

func TestAuditFailureDoesNotRollBackTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.db.Exec(`DROP TABLE events`)
	require.NoError(t, err)

	res, err := h.svc.Assign(ctx, h.ref, "max@example.com", roles.Commander, Options{})
	require.NoError(t, err)
	holder, ok := h.pointer(t, roles.Commander)
	require.True(t, ok)
	require.Equal(t, res.Participant.ID, holder)
	require.EqualValues(t, 1, counterValue(t, h.metrics, "warroom_audit_event_failures_total"))

	ok, err = h.svc.InactivateParticipant(ctx, h.ref, "max@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, counterValue(t, h.metrics, "warroom_audit_event_failures_total"))

	h.svc.LogEvent(ctx, h.ref, "manual note", "")
	require.EqualValues(t, 3, counterValue(t, h.metrics, "warroom_audit_event_failures_total"))
}

func TestNotificationsFollowCommittedTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Assign(ctx, h.ref, "ned@example.com", roles.Scribe, Options{Profile: store.IndividualProfile{Name: "Ned"}})
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, h.ref, "ned@example.com", roles.Scribe, Options{})
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, store.SubjectRef{Type: store.SubjectIncident, ID: 77}, "ned@example.com", roles.Scribe, Options{})
	require.Error(t, err)
	require.Equal(t, []string{h.ref.String() + " Ned is now scribe"}, h.notifier.calls)
}

func TestConcurrentAssignsKeepSingleHolder(t *testing.T) {
	h := newHarness(t)
	h.svc.SetClock(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Assign(ctx, h.ref, fmt.Sprintf("racer%d@example.com", i), roles.Commander, Options{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	active := h.activeOfKind(t, roles.Commander)
	require.Len(t, active, 1)
	holder, ok := h.pointer(t, roles.Commander)
	require.True(t, ok)
	require.Equal(t, active[0].ParticipantID, holder)
}
