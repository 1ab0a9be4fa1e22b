package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/api"
	"github.com/ruteri/appinstance-provisioning-backend/api/clients"
	"github.com/ruteri/appinstance-provisioning-backend/api/instances"
	"github.com/ruteri/appinstance-provisioning-backend/api/registration"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/provisioning"
	"github.com/ruteri/appinstance-provisioning-backend/storage"
	"github.com/ruteri/appinstance-provisioning-backend/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLogger(),
		GracefulShutdownDuration: time.Second,
	}
}

func statusOf(t *testing.T, handler http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body.Status
}

func TestHealthAndDrain(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	h := srv.Handler()

	code, status := statusOf(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", status)

	code, _ = statusOf(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	_, status = statusOf(t, h, "/drain")
	assert.Equal(t, "draining", status)
	_, status = statusOf(t, h, "/drain")
	assert.Equal(t, "already draining", status)

	code, status = statusOf(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", status)

	_, status = statusOf(t, h, "/undrain")
	assert.Equal(t, "ready", status)
	_, status = statusOf(t, h, "/undrain")
	assert.Equal(t, "already ready", status)
	code, _ = statusOf(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestPprofDisabled(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// fakeProvider records the signed webhook calls it receives.
type fakeProvider struct {
	mu            sync.Mutex
	instantiation *provisioning.InstantiationPayload
	destroyed     []string
}

func (p *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /instantiate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhook.Verify("inst-secret", body, r.Header.Get(webhook.SignatureHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload provisioning.InstantiationPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.instantiation = &payload
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /destroy", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhook.Verify("destroy-secret", body, r.Header.Get(webhook.SignatureHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload deprovisioning.DestructionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.destroyed = append(p.destroyed, payload.InstanceID)
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestInstanceLifecycle(t *testing.T) {
	ctx := context.Background()
	log := testLogger()

	provider := &fakeProvider{}
	providerSrv := httptest.NewServer(provider.handler())
	defer providerSrv.Close()

	stores := storage.NewMemoryStores(time.Now)
	require.NoError(t, stores.Applications.Create(ctx, &interfaces.Application{
		ID:                  "app-1",
		Name:                interfaces.LocalizedString{"": "Calendar"},
		InstantiationURI:    providerSrv.URL + "/instantiate",
		InstantiationSecret: "inst-secret",
	}))

	caller := webhook.NewClient(webhook.Config{Timeout: 5 * time.Second, Log: log})
	deprovisioner := deprovisioning.New(stores, caller, log)

	// The registration base URL must point at the server itself.
	platform := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + platform.Listener.Addr().String()

	provisioner := provisioning.New(provisioning.Config{RegistrationBaseURL: baseURL}, stores, caller, deprovisioner, log)
	srv, err := New(testConfig(),
		instances.NewHandler(stores.Instances, provisioner, deprovisioner, log),
		registration.NewHandler(provisioner, log),
	)
	require.NoError(t, err)
	platform.Config.Handler = srv.Handler()
	platform.Start()
	defer platform.Close()

	do := func(method, path, ifMatch, body string) *http.Response {
		req, err := http.NewRequest(method, platform.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(api.AccountHeader, "user-1")
		if ifMatch != "" {
			req.Header.Set("If-Match", ifMatch)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// Buy.
	resp := do(http.MethodPost, "/apps/buy/app-1", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var bought api.InstanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bought))
	provider.mu.Lock()
	payload := provider.instantiation
	provider.mu.Unlock()
	require.NotNil(t, payload)
	assert.Equal(t, bought.ID, payload.InstanceID)
	assert.Equal(t, baseURL+"/apps/pending-instance/"+bought.ID, payload.InstanceRegistrationURI)

	// The provider acknowledges.
	services, err := clients.NewRegistrationClient(*payload).Acknowledge(ctx, provisioning.Acknowledgement{
		InstanceID:        bought.ID,
		Services:          []provisioning.ServiceDeclaration{{LocalID: "web", ServiceURI: providerSrv.URL + "/web"}},
		Scopes:            []provisioning.ScopeDeclaration{{LocalID: "events", Name: interfaces.LocalizedString{"": "Events"}}},
		DestructionURI:    providerSrv.URL + "/destroy",
		DestructionSecret: "destroy-secret",
	})
	require.NoError(t, err)
	assert.Len(t, services, 1)

	// Stop it.
	resp = do(http.MethodGet, "/apps/instance/"+bought.ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = do(http.MethodPost, "/apps/instance/"+bought.ID+"/status", etag, `{"status":"STOPPED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stoppedETag := resp.Header.Get("ETag")
	assert.NotEqual(t, etag, stoppedETag)

	// Delete it with the stale and the current tag.
	resp = do(http.MethodDelete, "/apps/instance/"+bought.ID, etag+", "+stoppedETag, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res deprovisioning.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, deprovisioning.DeletedInstance, res.Status)
	assert.EqualValues(t, 1, res.Stats.CredentialsDeleted)
	assert.EqualValues(t, 1, res.Stats.ScopesDeleted)
	assert.EqualValues(t, 1, res.Stats.ServicesDeleted)
	assert.EqualValues(t, 1, res.Stats.SubscriptionsDeleted)
	assert.EqualValues(t, 1, res.Stats.AppUsersDeleted)

	provider.mu.Lock()
	assert.Equal(t, []string{bought.ID}, provider.destroyed)
	provider.mu.Unlock()

	resp = do(http.MethodGet, "/apps/instance/"+bought.ID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
