package purge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/notify"
	"github.com/ruteri/appinstance-provisioning-backend/storage"
	"github.com/ruteri/appinstance-provisioning-backend/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedInstance(t *testing.T, stores *interfaces.Stores, id string, status interfaces.InstanceStatus, age time.Duration, providerID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, stores.Instances.Create(ctx, &interfaces.AppInstance{
		ID:             id,
		ApplicationID:  "app-1",
		ProviderID:     providerID,
		InstantiatorID: "owner-" + id,
		Status:         status,
		Name:           interfaces.LocalizedString{interfaces.RootLocale: id},
		NeededScopes:   interfaces.NeededScopes{},
		DestructionURI: "https://provider.example/destroy",
		StatusChanged:  testNow.Add(-age),
	}))
	require.NoError(t, stores.ACL.Create(ctx, &interfaces.AccessControlEntry{ID: "ace-" + id, InstanceID: id, UserID: "admin-" + id, AppAdmin: true}))
	require.NoError(t, stores.Scopes.Create(ctx, &interfaces.Scope{ID: interfaces.ScopeID(id, "read"), InstanceID: id, LocalID: "read"}))
}

func seedOrganization(t *testing.T, stores *interfaces.Stores, id string, status interfaces.OrganizationStatus, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, stores.Organizations.Create(ctx, &interfaces.Organization{ID: id, Name: id, Status: status, StatusChanged: testNow.Add(-age)}))
	require.NoError(t, stores.Organizations.AddMember(ctx, id, "admin-"+id, true))
	require.NoError(t, stores.Organizations.AddMember(ctx, id, "member-"+id, false))
}

type fixture struct {
	stores   *interfaces.Stores
	caller   *webhook.MockCaller
	notifier *notify.MockNotifier
	sweeper  *Sweeper
}

func newFixture(stores *interfaces.Stores) *fixture {
	caller := new(webhook.MockCaller)
	notifier := new(notify.MockNotifier)
	d := deprovisioning.New(stores, caller, testLogger())
	s := New(Config{Now: func() time.Time { return testNow }}, stores, d, notifier, testLogger())
	return &fixture{stores: stores, caller: caller, notifier: notifier, sweeper: s}
}

func memoryStores() *interfaces.Stores {
	return storage.NewMemoryStores(func() time.Time { return testNow })
}

func TestSweepStoppedInstances(t *testing.T) {
	stores := memoryStores()
	week := DefaultRetention
	seedInstance(t, stores, "old-stopped", interfaces.InstanceStopped, week+time.Hour, "")
	seedInstance(t, stores, "new-stopped", interfaces.InstanceStopped, week-time.Hour, "")
	seedInstance(t, stores, "old-running", interfaces.InstanceRunning, 30*week, "")

	f := newFixture(stores)
	f.caller.On("Call", mock.Anything, mock.MatchedBy(func(r webhook.Request) bool {
		return r.Kind == webhook.KindDestruction
	})).Return(webhook.Result{Outcome: webhook.Delivered, StatusCode: http.StatusNoContent}).Once()
	f.notifier.On("Notify", mock.Anything, interfaces.Notification{
		Kind:       interfaces.NotifyInstancePurged,
		InstanceID: "old-stopped",
		Outcome:    string(deprovisioning.DeletedInstance),
		Recipients: []string{"admin-old-stopped", "owner-old-stopped"},
	}).Return(nil).Once()

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[deprovisioning.Status]int{deprovisioning.DeletedInstance: 1}, report.Outcomes)
	assert.EqualValues(t, 1, report.Stats.ScopesDeleted)
	assert.EqualValues(t, 1, report.Stats.AppUsersDeleted)
	assert.Empty(t, report.Skipped)

	_, err = stores.Instances.Get(context.Background(), "old-stopped")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	for _, id := range []string{"new-stopped", "old-running"} {
		_, err := stores.Instances.Get(context.Background(), id)
		assert.NoError(t, err, id)
	}
	f.caller.AssertExpectations(t)
	f.notifier.AssertExpectations(t)

	// A second sweep finds nothing left to do.
	report, err = f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}

func TestSweepProviderFailureStillPurges(t *testing.T) {
	stores := memoryStores()
	seedInstance(t, stores, "old-stopped", interfaces.InstanceStopped, 2*DefaultRetention, "")

	f := newFixture(stores)
	f.caller.On("Call", mock.Anything, mock.Anything).Return(webhook.Result{Outcome: webhook.TimedOut, Err: context.DeadlineExceeded})
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n interfaces.Notification) bool {
		return n.Outcome == string(deprovisioning.ProviderCallError)
	})).Return(errors.New("mail is down"))

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[deprovisioning.ProviderCallError])

	_, err = stores.Instances.Get(context.Background(), "old-stopped")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

// restartingInstances restarts every selected instance right after listing
// it, as a user restarting it mid-sweep would.
type restartingInstances struct {
	interfaces.InstanceStore
}

func (s *restartingInstances) FindStoppedBefore(ctx context.Context, before time.Time) ([]*interfaces.AppInstance, error) {
	instances, err := s.InstanceStore.FindStoppedBefore(ctx, before)
	if err != nil {
		return nil, err
	}
	running := interfaces.InstanceRunning
	for _, instance := range instances {
		if _, err := s.UpdateIfStatus(ctx, instance.ID, interfaces.InstanceStopped, interfaces.InstancePatch{Status: &running}); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func TestSweepSkipsRestartedInstances(t *testing.T) {
	base := memoryStores()
	seedInstance(t, base, "old-stopped", interfaces.InstanceStopped, 2*DefaultRetention, "")
	stores := *base
	stores.Instances = &restartingInstances{InstanceStore: base.Instances}

	f := newFixture(&stores)
	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[deprovisioning.BadInstanceStatus])
	assert.Equal(t, []string{"old-stopped"}, report.Skipped)

	instance, err := base.Instances.Get(context.Background(), "old-stopped")
	require.NoError(t, err)
	assert.Equal(t, interfaces.InstanceRunning, instance.Status)
	n, err := base.Scopes.CountByInstance(context.Background(), "old-stopped")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	f.caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestSweepDeletedOrganizations(t *testing.T) {
	stores := memoryStores()
	seedOrganization(t, stores, "org-old", interfaces.OrganizationDeleted, 2*DefaultRetention)
	seedOrganization(t, stores, "org-new", interfaces.OrganizationDeleted, time.Hour)
	seedOrganization(t, stores, "org-live", interfaces.OrganizationAvailable, 10*DefaultRetention)
	seedInstance(t, stores, "shared-running", interfaces.InstanceRunning, time.Hour, "org-old")
	seedInstance(t, stores, "shared-stopped", interfaces.InstanceStopped, time.Hour, "org-old")
	seedInstance(t, stores, "other", interfaces.InstanceRunning, time.Hour, "org-new")

	f := newFixture(stores)
	f.caller.On("Call", mock.Anything, mock.Anything).Return(webhook.Result{Outcome: webhook.Delivered, StatusCode: http.StatusOK})
	f.notifier.On("Notify", mock.Anything, interfaces.Notification{
		Kind:           interfaces.NotifyOrganizationPurged,
		OrganizationID: "org-old",
		Outcome:        "DELETED",
		Recipients:     []string{"admin-org-old"},
	}).Return(nil).Once()

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrganizationsDeleted)
	assert.Equal(t, 2, report.Outcomes[deprovisioning.DeletedInstance])
	f.caller.AssertNumberOfCalls(t, "Call", 2)
	f.notifier.AssertExpectations(t)

	ctx := context.Background()
	_, err = stores.Organizations.Get(ctx, "org-old")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	remaining, err := stores.Instances.FindByProvider(ctx, "org-old")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	for _, id := range []string{"org-new", "org-live"} {
		_, err := stores.Organizations.Get(ctx, id)
		assert.NoError(t, err, id)
	}
	_, err = stores.Instances.Get(ctx, "other")
	assert.NoError(t, err)
}

func TestSweepDryRun(t *testing.T) {
	base := memoryStores()
	seedInstance(t, base, "old-stopped", interfaces.InstanceStopped, 2*DefaultRetention, "")
	seedOrganization(t, base, "org-old", interfaces.OrganizationDeleted, 2*DefaultRetention)
	seedInstance(t, base, "shared", interfaces.InstanceRunning, time.Hour, "org-old")

	stores := storage.DryRun(base, testLogger())
	d := deprovisioning.New(stores, &webhook.DryRunCaller{Log: testLogger()}, testLogger())
	sweeper := New(Config{Now: func() time.Time { return testNow }}, stores, d, notify.NewLogNotifier(testLogger()), testLogger())

	report, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Outcomes[deprovisioning.DeletedInstance])
	assert.Equal(t, 1, report.OrganizationsDeleted)
	assert.EqualValues(t, 2, report.Stats.ScopesDeleted)

	ctx := context.Background()
	for _, id := range []string{"old-stopped", "shared"} {
		_, err := base.Instances.Get(ctx, id)
		assert.NoError(t, err, id)
	}
	_, err = base.Organizations.Get(ctx, "org-old")
	assert.NoError(t, err)
}

func TestSweepCancelled(t *testing.T) {
	stores := memoryStores()
	seedInstance(t, stores, "old-stopped", interfaces.InstanceStopped, 2*DefaultRetention, "")
	f := newFixture(stores)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sweeper.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = stores.Instances.Get(context.Background(), "old-stopped")
	assert.NoError(t, err)
}

// startingInstances starts every organization instance right after listing
// it.
type startingInstances struct {
	interfaces.InstanceStore
}

func (s *startingInstances) FindByProvider(ctx context.Context, providerID string) ([]*interfaces.AppInstance, error) {
	instances, err := s.InstanceStore.FindByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	running := interfaces.InstanceRunning
	for _, instance := range instances {
		if _, err := s.UpdateIfStatus(ctx, instance.ID, interfaces.InstanceStopped, interfaces.InstancePatch{Status: &running}); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func TestSweepOrganizationKeepsChangedInstances(t *testing.T) {
	base := memoryStores()
	seedOrganization(t, base, "org-old", interfaces.OrganizationDeleted, 8*24*time.Hour)
	seedInstance(t, base, "inst-1", interfaces.InstanceStopped, time.Hour, "org-old")
	stores := *base
	stores.Instances = &startingInstances{InstanceStore: base.Instances}

	f := newFixture(&stores)
	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[deprovisioning.BadInstanceStatus])
	assert.Zero(t, report.Outcomes[deprovisioning.DeletedInstance])
	assert.Zero(t, report.OrganizationsDeleted)
	assert.Equal(t, []string{"org-old"}, report.Skipped)

	ctx := context.Background()
	instance, err := base.Instances.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.InstanceRunning, instance.Status)
	_, err = base.Organizations.Get(ctx, "org-old")
	assert.NoError(t, err)

	f.caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

// restoredOrganizations reports every organization as available again once
// it has been selected.
type restoredOrganizations struct {
	interfaces.OrganizationStore
}

func (s *restoredOrganizations) Get(ctx context.Context, id string) (*interfaces.Organization, error) {
	org, err := s.OrganizationStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	restored := *org
	restored.Status = interfaces.OrganizationAvailable
	return &restored, nil
}

func TestSweepSkipsRestoredOrganizations(t *testing.T) {
	base := memoryStores()
	seedOrganization(t, base, "org-old", interfaces.OrganizationDeleted, 2*DefaultRetention)
	seedInstance(t, base, "shared", interfaces.InstanceRunning, time.Hour, "org-old")
	stores := *base
	stores.Organizations = &restoredOrganizations{OrganizationStore: base.Organizations}

	f := newFixture(&stores)
	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, []string{"org-old"}, report.Skipped)

	_, err = base.Instances.Get(context.Background(), "shared")
	assert.NoError(t, err)
	f.caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}
