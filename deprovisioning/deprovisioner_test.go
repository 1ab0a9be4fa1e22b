package deprovisioning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/storage"
	"github.com/ruteri/appinstance-provisioning-backend/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStores() *interfaces.Stores {
	return storage.NewMemoryStores(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
}

// seedInstance creates a RUNNING instance with nScopes scopes and nServices
// services, each service with one subscription and one service credential.
func seedInstance(t *testing.T, stores *interfaces.Stores, id string, nScopes, nServices int) *interfaces.AppInstance {
	t.Helper()
	ctx := context.Background()

	instance := &interfaces.AppInstance{
		ID:                id,
		ApplicationID:     "app-1",
		InstantiatorID:    "user-1",
		Status:            interfaces.InstanceRunning,
		DestructionURI:    "https://provider.example/destroy",
		DestructionSecret: "destroy-secret",
	}
	require.NoError(t, stores.Instances.Create(ctx, instance))
	require.NoError(t, stores.Credentials.Create(ctx, &interfaces.Credential{ClientType: interfaces.ClientTypeInstance, ClientID: id, SecretHash: []byte("h")}))
	require.NoError(t, stores.Tokens.Create(ctx, &interfaces.Token{ID: id + "-token", ClientID: id}))
	require.NoError(t, stores.Authorizations.Create(ctx, &interfaces.Authorization{ID: id + "-authz", AccountID: "user-1", ClientID: id}))

	var scopeIDs []string
	for i := 0; i < nScopes; i++ {
		local := fmt.Sprintf("scope%d", i)
		scopeIDs = append(scopeIDs, interfaces.ScopeID(id, local))
		require.NoError(t, stores.Scopes.Create(ctx, &interfaces.Scope{ID: interfaces.ScopeID(id, local), InstanceID: id, LocalID: local}))
	}
	if nScopes > 0 {
		require.NoError(t, stores.Tokens.Create(ctx, &interfaces.Token{ID: id + "-foreign-token", ClientID: "other-client", ScopeIDs: scopeIDs}))
		require.NoError(t, stores.Authorizations.Create(ctx, &interfaces.Authorization{
			ID: id + "-foreign-authz", AccountID: "user-2", ClientID: "other-client", ScopeIDs: append([]string{"keep:me"}, scopeIDs...),
		}))
	}

	for i := 0; i < nServices; i++ {
		serviceID := fmt.Sprintf("%s-svc%d", id, i)
		require.NoError(t, stores.Services.Create(ctx, &interfaces.Service{ID: serviceID, InstanceID: id, LocalID: fmt.Sprintf("svc%d", i)}))
		require.NoError(t, stores.Subscriptions.Create(ctx, &interfaces.UserSubscription{ID: serviceID + "-sub", UserID: "user-1", ServiceID: serviceID}))
		require.NoError(t, stores.Credentials.Create(ctx, &interfaces.Credential{ClientType: interfaces.ClientTypeService, ClientID: serviceID, SecretHash: []byte("h")}))
	}

	require.NoError(t, stores.ACL.Create(ctx, &interfaces.AccessControlEntry{ID: id + "-ace", InstanceID: id, UserID: "user-1", AppAdmin: true}))
	require.NoError(t, stores.ACL.Create(ctx, &interfaces.AccessControlEntry{ID: id + "-invite", InstanceID: id, Email: "someone@example.com", AppUser: true}))
	require.NoError(t, stores.Hooks.Create(ctx, &interfaces.Hook{ID: id + "-hook", InstanceID: id, EventType: "user.deleted", URI: "https://provider.example/hook"}))
	return instance
}

func delivered(status int) webhook.Result {
	return webhook.Result{Outcome: webhook.Delivered, StatusCode: status}
}

func TestDeleteCascade(t *testing.T) {
	stores := newStores()
	instance := seedInstance(t, stores, "inst-1", 3, 2)
	other := seedInstance(t, stores, "inst-2", 1, 1)

	caller := new(webhook.MockCaller)
	caller.On("Call", mock.Anything, webhook.Request{
		Kind:    webhook.KindDestruction,
		URL:     "https://provider.example/destroy",
		Secret:  "destroy-secret",
		Payload: DestructionPayload{InstanceID: "inst-1"},
	}).Return(delivered(http.StatusOK)).Once()

	d := New(stores, caller, testLogger())
	res, err := d.Delete(context.Background(), Request{
		InstanceID:    "inst-1",
		CheckVersions: []int64{instance.Version},
		CallProvider:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, DeletedInstance, res.Status)
	assert.Equal(t, Stats{
		CredentialsDeleted:               3,
		TokensRevokedForInstance:         1,
		AuthorizationsDeletedForInstance: 1,
		TokensRevokedForScopes:           1,
		AuthorizationsRevokedForScopes:   1,
		ScopesDeleted:                    3,
		AppUsersDeleted:                  2,
		SubscriptionsDeleted:             2,
		ServicesDeleted:                  2,
		HooksDeleted:                     1,
	}, res.Stats)
	caller.AssertExpectations(t)

	_, err = stores.Instances.Get(context.Background(), "inst-1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// The grant keeps its unrelated scope.
	authz, err := stores.Authorizations.Get(context.Background(), "inst-1-foreign-authz")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StringList{"keep:me"}, authz.ScopeIDs)

	// The other instance is untouched.
	_, err = stores.Instances.Get(context.Background(), other.ID)
	assert.NoError(t, err)
	n, err := stores.Scopes.CountByInstance(context.Background(), other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Running again converges to nothing.
	res, err = d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckVersions: []int64{instance.Version}, CallProvider: true})
	require.NoError(t, err)
	assert.Equal(t, NothingToDelete, res.Status)
	assert.Equal(t, Stats{}, res.Stats)
	caller.AssertNumberOfCalls(t, "Call", 1)
}

func TestDeleteVersionDisjunction(t *testing.T) {
	stores := newStores()
	instance := seedInstance(t, stores, "inst-1", 1, 1)
	d := New(stores, new(webhook.MockCaller), testLogger())

	stopped := interfaces.InstanceStopped
	updated, err := stores.Instances.UpdateIfVersion(context.Background(), "inst-1", []int64{instance.Version}, interfaces.InstancePatch{Status: &stopped})
	require.NoError(t, err)

	// Stale token only: the instance changed since.
	res, err := d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckVersions: []int64{instance.Version}})
	require.NoError(t, err)
	assert.Equal(t, BadInstanceVersion, res.Status)
	assert.Equal(t, Stats{}, res.Stats)
	n, err := stores.Scopes.CountByInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "dependents must not be touched")

	// Either of two tokens, one of them current.
	res, err = d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckVersions: []int64{instance.Version, updated.Version}})
	require.NoError(t, err)
	assert.Equal(t, DeletedInstance, res.Status)
	assert.EqualValues(t, 1, res.Stats.ScopesDeleted)

	// Any token for a gone instance is a no-op.
	res, err = d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckVersions: []int64{12345}})
	require.NoError(t, err)
	assert.Equal(t, NothingToDelete, res.Status)
}

func TestDeleteBadStatus(t *testing.T) {
	stores := newStores()
	seedInstance(t, stores, "inst-1", 1, 0)
	d := New(stores, new(webhook.MockCaller), testLogger())

	res, err := d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckStatus: interfaces.InstancePending, CallProvider: true})
	require.NoError(t, err)
	assert.Equal(t, BadInstanceStatus, res.Status)
	assert.False(t, res.Status.Removed())
	require.NotNil(t, res.Instance)
	assert.Equal(t, interfaces.InstanceRunning, res.Instance.Status)

	n, err := stores.Credentials.Count(context.Background(), interfaces.ClientTypeInstance, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteProviderFailureStillCascades(t *testing.T) {
	for name, tc := range map[string]struct {
		result webhook.Result
		status Status
	}{
		"timeout":   {webhook.Result{Outcome: webhook.TimedOut}, ProviderCallError},
		"transport": {webhook.Result{Outcome: webhook.TransportError}, ProviderCallError},
		"rejected":  {delivered(http.StatusInternalServerError), ProviderStatusError},
	} {
		t.Run(name, func(t *testing.T) {
			stores := newStores()
			seedInstance(t, stores, "inst-1", 2, 1)

			caller := new(webhook.MockCaller)
			caller.On("Call", mock.Anything, mock.Anything).Return(tc.result)

			res, err := New(stores, caller, testLogger()).Delete(context.Background(), Request{
				InstanceID:   "inst-1",
				CheckStatus:  interfaces.InstanceRunning,
				CallProvider: true,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.True(t, res.Status.Removed())
			assert.EqualValues(t, 2, res.Stats.ScopesDeleted)
			assert.EqualValues(t, 1, res.Stats.ServicesDeleted)

			_, err = stores.Instances.Get(context.Background(), "inst-1")
			assert.ErrorIs(t, err, interfaces.ErrNotFound)
		})
	}
}

func TestDeleteWithoutProviderCall(t *testing.T) {
	stores := newStores()
	seedInstance(t, stores, "inst-1", 1, 1)
	caller := new(webhook.MockCaller)

	res, err := New(stores, caller, testLogger()).Delete(context.Background(), Request{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, DeletedInstance, res.Status)
	caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)

	_, err = stores.Instances.Get(context.Background(), "inst-1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestDeleteLeftovers(t *testing.T) {
	stores := newStores()
	seedInstance(t, stores, "inst-1", 2, 1)
	n, err := stores.Instances.Delete(context.Background(), "inst-1", interfaces.InstanceCondition{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	d := New(stores, new(webhook.MockCaller), testLogger())
	res, err := d.Delete(context.Background(), Request{InstanceID: "inst-1", CheckStatus: interfaces.InstanceRunning, CallProvider: true})
	require.NoError(t, err)
	assert.Equal(t, DeletedLeftovers, res.Status)
	assert.EqualValues(t, 2, res.Stats.ScopesDeleted)
	assert.Nil(t, res.Instance)

	res, err = d.Delete(context.Background(), Request{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, NothingToDelete, res.Status)
}

// removedConcurrently lets another caller remove the instance document just
// before an unguarded delete.
type removedConcurrently struct {
	interfaces.InstanceStore
}

func (s *removedConcurrently) Delete(ctx context.Context, id string, cond interfaces.InstanceCondition) (int64, error) {
	if !cond.Guarded() {
		if _, err := s.InstanceStore.Delete(ctx, id, cond); err != nil {
			return 0, err
		}
	}
	return s.InstanceStore.Delete(ctx, id, cond)
}

func TestDeleteInstanceRemovedConcurrently(t *testing.T) {
	base := newStores()
	seedInstance(t, base, "inst-1", 1, 1)
	stores := *base
	stores.Instances = &removedConcurrently{InstanceStore: base.Instances}

	res, err := New(&stores, new(webhook.MockCaller), testLogger()).Delete(context.Background(), Request{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, DeletedLeftovers, res.Status)
	assert.EqualValues(t, 1, res.Stats.ScopesDeleted)

	_, err = base.Instances.Get(context.Background(), "inst-1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCleanupProvisioned(t *testing.T) {
	stores := newStores()
	seedInstance(t, stores, "inst-1", 2, 2)
	d := New(stores, new(webhook.MockCaller), testLogger())

	var stats Stats
	require.NoError(t, d.CleanupProvisioned(context.Background(), "inst-1", &stats))
	assert.EqualValues(t, 2, stats.ScopesDeleted)
	assert.EqualValues(t, 2, stats.ServicesDeleted)
	assert.EqualValues(t, 2, stats.SubscriptionsDeleted)
	assert.EqualValues(t, 2, stats.AppUsersDeleted)
	assert.Zero(t, stats.CredentialsDeleted)

	_, err := stores.Instances.Get(context.Background(), "inst-1")
	assert.NoError(t, err)
	n, err := stores.Credentials.Count(context.Background(), interfaces.ClientTypeInstance, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDryRunDelete(t *testing.T) {
	stores := newStores()
	seedInstance(t, stores, "inst-1", 2, 1)
	dry := storage.DryRun(stores, testLogger())

	res, err := New(dry, &webhook.DryRunCaller{Log: testLogger()}, testLogger()).Delete(context.Background(), Request{
		InstanceID:   "inst-1",
		CheckStatus:  interfaces.InstanceRunning,
		CallProvider: true,
	})
	require.NoError(t, err)
	assert.Equal(t, DeletedInstance, res.Status)
	assert.EqualValues(t, 2, res.Stats.ScopesDeleted)

	_, err = stores.Instances.Get(context.Background(), "inst-1")
	assert.NoError(t, err)
	n, err := stores.Scopes.CountByInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
