package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dirmemory "github.com/mihaimyh/billingsync/directory/memory"
	"github.com/mihaimyh/billingsync/internal/config"
	"github.com/mihaimyh/billingsync/pkg/billingsync"
	prommetrics "github.com/mihaimyh/billingsync/pkg/billingsync/metrics/prometheus"
	"github.com/mihaimyh/billingsync/storage/memory"
)

const checkoutPaid = `{"id":"evt_1","type":"checkout.session.completed","data":{"object":` +
	`{"payment_status":"paid","customer_details":{"email":"a@x.com"},"amount_total":500}}}`

type testEnv struct {
	routes routes
	dir    *dirmemory.Directory
	store  *memory.Storage
}

func newTestEnv(t *testing.T, pingers ...pinger) *testEnv {
	t.Helper()

	dir := dirmemory.New()
	dir.AddUser("U1", "a@x.com")
	store := memory.New()

	reg := prometheus.NewRegistry()
	receiver, err := billingsync.NewReceiver(billingsync.Config{
		Directory: dir,
		Store:     store,
		Metrics:   prommetrics.NewMetrics(reg, "test"),
	})
	require.NoError(t, err)

	return &testEnv{
		routes: routes{
			receiver: receiver,
			metrics:  metricsHandler(reg),
			health:   healthHandler(pingers...),
		},
		dir:   dir,
		store: store,
	}
}

func testConfig(router string) *config.Config {
	return &config.Config{
		Port:            "0",
		Router:          router,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestHTTPRouters(t *testing.T) {
	for _, router := range []string{config.RouterGin, config.RouterEcho, config.RouterChi, config.RouterMux, config.RouterHTTP} {
		t.Run(router, func(t *testing.T) {
			env := newTestEnv(t)
			h, err := newHTTPHandler(router, env.routes)
			require.NoError(t, err)

			for _, path := range webhookPaths {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(checkoutPaid)))
				assert.Equal(t, http.StatusOK, rec.Code, path)
				assert.JSONEq(t, `{"received":true}`, rec.Body.String())
			}

			user, _ := env.dir.GetUser("U1")
			assert.Equal(t, "premium", user.CustomClaims["role"])
			assert.Len(t, env.store.CheckoutSessions("U1"), 2)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "ok", rec.Body.String())

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "test_webhook_events_total")

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"type":"customer.created","data":{"object":{}}}`)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestUnknownRouter(t *testing.T) {
	env := newTestEnv(t)
	_, err := newHTTPHandler("iris", env.routes)
	assert.Error(t, err)
}

func TestFiberApp(t *testing.T) {
	env := newTestEnv(t)
	app := newFiberApp(testConfig(config.RouterFiber), env.routes)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(checkoutPaid)), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true}`, string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "test_webhook_role_changes_total")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler_Unavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(failingPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestNewServer(t *testing.T) {
	env := newTestEnv(t)

	srv, err := newServer(testConfig(config.RouterChi), env.routes)
	require.NoError(t, err)
	assert.IsType(t, &httpServer{}, srv)

	srv, err = newServer(testConfig(config.RouterFiber), env.routes)
	require.NoError(t, err)
	assert.IsType(t, &fiberServer{}, srv)
}

func TestOpenBackends_Memory(t *testing.T) {
	cfg := testConfig(config.RouterHTTP)
	cfg.StoreBackend = config.StoreMemory
	cfg.DirectoryBackend = config.DirectoryMemory

	b, err := openBackends(context.Background(), cfg, &billingsync.NoopLogger{})
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &memory.Storage{}, b.store)
	assert.IsType(t, &dirmemory.Directory{}, b.directory)
	assert.Empty(t, b.pingers)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(config.RouterHTTP)
	cfg.StoreBackend = config.StoreMemory
	cfg.DirectoryBackend = config.DirectoryMemory
	cfg.Port = "0"
	cfg.MetricsNamespace = "run_test"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
