package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"uptimewatch/internal/checker"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage/memory"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixedResolver struct {
	status models.Status
	ms     int64
}

func (f fixedResolver) Resolve(ctx context.Context, url string) checker.Resolution {
	if f.status != models.StatusUp {
		return checker.Resolution{Status: f.status, Attempts: 4}
	}
	ms := f.ms
	return checker.Resolution{Status: models.StatusUp, ResponseTimeMS: &ms, Attempts: 1}
}

type busyRunner struct{}

func (busyRunner) Run(ctx context.Context, m models.Monitor) (models.LogEntry, error) {
	return models.LogEntry{}, checker.ErrCheckInProgress
}

// logGuardStore fails the test if the full monitor, log included, is read.
type logGuardStore struct {
	*memory.Store
	t *testing.T
}

func (s logGuardStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	s.t.Errorf("GetMonitor(%q) loaded the full log", id)
	return s.Store.GetMonitor(ctx, id)
}

type testEnv struct {
	store     *memory.Store
	router    http.Handler
	scheduler *checker.Scheduler
	clock     *clockwork.FakeClock
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.New()
	clock := clockwork.NewFakeClockAt(t0)
	runner := checker.NewRunner(store, fixedResolver{status: models.StatusUp, ms: 42}, clock, logger)
	scheduler := checker.NewScheduler(store, runner, checker.SchedulerConfig{MaxConcurrency: 2, Logger: logger})
	t.Cleanup(func() { _ = scheduler.Stop(context.Background()) })

	router := NewRouter(Dependencies{
		Store:      store,
		Runner:     runner,
		Scheduler:  scheduler,
		Prober:     checker.NewHTTPProber(checker.WithProbeTimeout(2 * time.Second)),
		Clock:      clock,
		CronSecret: secret,
		Logger:     logger,
	})
	return &testEnv{store: store, router: router, scheduler: scheduler, clock: clock}
}

func (e *testEnv) seed(t *testing.T, m *models.Monitor) *models.Monitor {
	t.Helper()
	if m.URL == "" {
		m.URL = "https://example.com"
	}
	require.NoError(t, e.store.CreateMonitor(context.Background(), m))
	return m
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestAPIHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestAPITriggerChecks(t *testing.T) {
	t.Run("runs due checks", func(t *testing.T) {
		env := newTestEnv(t, "")
		a := env.seed(t, &models.Monitor{URL: "https://a.example", IntervalMinutes: 5})
		env.seed(t, &models.Monitor{URL: "https://b.example", IntervalMinutes: 5, LastChecked: &t0})

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			rr := env.do(httptest.NewRequest(method, "/v1/cron/check-urls", nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp triggerResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, "success", resp.Status)
			if method == http.MethodGet {
				assert.Equal(t, "Checked 1 URLs", resp.Message)
				assert.Equal(t, []string{a.URL}, resp.ChecksPerformed)
			} else {
				// nothing is due a second time within the same minute
				assert.Equal(t, "Checked 0 URLs", resp.Message)
				assert.Empty(t, resp.ChecksPerformed)
			}
		}
	})

	t.Run("requires bearer secret when configured", func(t *testing.T) {
		env := newTestEnv(t, "s3cret")

		rr := env.do(httptest.NewRequest(http.MethodGet, "/v1/cron/check-urls", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		req := httptest.NewRequest(http.MethodGet, "/v1/cron/check-urls", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

		req = httptest.NewRequest(http.MethodGet, "/v1/cron/check-urls", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		assert.Equal(t, http.StatusOK, env.do(req).Code)
	})

	t.Run("stopped scheduler returns 503", func(t *testing.T) {
		env := newTestEnv(t, "")
		require.NoError(t, env.scheduler.Stop(context.Background()))
		rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/cron/check-urls", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestAPICheckMonitor(t *testing.T) {
	t.Run("records a check", func(t *testing.T) {
		env := newTestEnv(t, "")
		m := env.seed(t, &models.Monitor{IntervalMinutes: 5})

		rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/monitors/"+m.ID+"/check", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp checkMonitorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, m.ID, resp.MonitorID)
		assert.Equal(t, models.StatusUp, resp.Entry.Status)
		assert.Equal(t, int64(42), resp.Entry.ResponseTimeMS)

		got, err := env.store.GetMonitor(context.Background(), m.ID)
		require.NoError(t, err)
		assert.Len(t, got.Logs, 1)
		assert.Equal(t, models.StatusUp, got.Status)
	})

	t.Run("unknown monitor returns 404", func(t *testing.T) {
		env := newTestEnv(t, "")
		rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/monitors/nope/check", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("does not load the log", func(t *testing.T) {
		store := memory.New()
		m := &models.Monitor{URL: "https://example.com", IntervalMinutes: 1}
		require.NoError(t, store.CreateMonitor(context.Background(), m))
		for i := 0; i < 3; i++ {
			require.NoError(t, store.AppendLog(context.Background(), m.ID, models.LogEntry{Timestamp: t0.Add(-time.Duration(i) * time.Minute), Status: models.StatusUp}))
		}
		clock := clockwork.NewFakeClockAt(t0)
		runner := checker.NewRunner(store, fixedResolver{status: models.StatusUp, ms: 7}, clock, zaptest.NewLogger(t))
		router := NewRouter(Dependencies{Store: logGuardStore{Store: store, t: t}, Runner: runner, Clock: clock})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/monitors/"+m.ID+"/check", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp checkMonitorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, int64(7), resp.Entry.ResponseTimeMS)
	})

	t.Run("check in progress returns 409", func(t *testing.T) {
		store := memory.New()
		m := &models.Monitor{URL: "https://example.com", IntervalMinutes: 1}
		require.NoError(t, store.CreateMonitor(context.Background(), m))
		router := NewRouter(Dependencies{Store: store, Runner: busyRunner{}})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/monitors/"+m.ID+"/check", nil))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestAPIGetMonitor(t *testing.T) {
	env := newTestEnv(t, "")
	m := env.seed(t, &models.Monitor{IntervalMinutes: 10})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/v1/monitors/"+m.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got models.Monitor
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, 10, got.IntervalMinutes)
	assert.Equal(t, models.StatusUnknown, got.Status)
	assert.Nil(t, got.LastChecked)

	rr = env.do(httptest.NewRequest(http.MethodGet, "/v1/monitors/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPIGetStats(t *testing.T) {
	env := newTestEnv(t, "")
	m := env.seed(t, &models.Monitor{IntervalMinutes: 60})
	ctx := context.Background()
	for i, status := range []models.Status{models.StatusUp, models.StatusDown, models.StatusUp, models.StatusUp} {
		at := t0.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, env.store.AppendLog(ctx, m.ID, models.LogEntry{Timestamp: at, Status: status, ResponseTimeMS: 100, IntervalMinutes: 60}))
	}

	t.Run("default range", func(t *testing.T) {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/v1/monitors/"+m.ID+"/stats", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp statsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "7d", resp.Range)
		assert.Len(t, resp.Uptime, 7)
		assert.Equal(t, "2024-06-01", resp.Uptime[6].Date)
		assert.Equal(t, 75, resp.Uptime[6].Uptime)
		assert.Equal(t, 4, resp.TotalChecks)
		assert.Len(t, resp.ResponseTimes, 4)
	})

	t.Run("30d range", func(t *testing.T) {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/v1/monitors/"+m.ID+"/stats?range=30d", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp statsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "30d", resp.Range)
		assert.Len(t, resp.Uptime, 30)
	})

	t.Run("bad range", func(t *testing.T) {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/v1/monitors/"+m.ID+"/stats?range=1y", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAPICheckURL(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer target.Close()

	env := newTestEnv(t, "")

	t.Run("reachable url", func(t *testing.T) {
		body := `{"url":"` + target.URL + `/"}`
		rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/check-url", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp checkURLResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.True(t, resp.Reachable)
		assert.Equal(t, http.MethodHead, resp.Method)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, t0, resp.Timestamp)
	})

	t.Run("padded input is trimmed", func(t *testing.T) {
		body := `{"url":"  ` + target.URL + `/ "}`
		rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/check-url", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp checkURLResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, target.URL+"/", resp.URL)
		assert.True(t, resp.Reachable)
	})

	t.Run("invalid input returns 400", func(t *testing.T) {
		for _, body := range []string{`{"url":"ftp://example.com"}`, `{"url":""}`, `not json`} {
			rr := env.do(httptest.NewRequest(http.MethodPost, "/v1/check-url", bytes.NewBufferString(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		}
	})
}
