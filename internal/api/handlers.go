package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"uptimewatch/internal/checker"
	"uptimewatch/internal/models"
	"uptimewatch/internal/stats"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/urlutil"
)

// MonitorChecker runs an immediate check for one monitor.
type MonitorChecker interface {
	Run(ctx context.Context, m models.Monitor) (models.LogEntry, error)
}

// DueChecker runs one scheduling cycle.
type DueChecker interface {
	RunDueChecks(ctx context.Context) ([]string, error)
}

// URLProber probes an arbitrary URL without persisting anything.
type URLProber interface {
	ProbeHeadThenGet(ctx context.Context, url string) checker.ProbeResult
}

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Store      storage.MonitorReader
	Runner     MonitorChecker
	Scheduler  DueChecker
	Prober     URLProber
	Clock      clockwork.Clock
	CronSecret string // empty disables trigger authentication
	Logger     *zap.Logger
}

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	store      storage.MonitorReader
	runner     MonitorChecker
	scheduler  DueChecker
	prober     URLProber
	clock      clockwork.Clock
	cronSecret string
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(deps Dependencies) *Handlers {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handlers{
		store:      deps.Store,
		runner:     deps.Runner,
		scheduler:  deps.Scheduler,
		prober:     deps.Prober,
		clock:      deps.Clock,
		cronSecret: deps.CronSecret,
		logger:     deps.Logger,
	}
}

type checkURLResponse struct {
	URL            string    `json:"url"`
	Reachable      bool      `json:"reachable"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CheckURL probes a URL once (HEAD, then GET on transport failure) and reports the result.
func (h *Handlers) CheckURL(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(reqBody.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	target, err := urlutil.Canonicalize(strings.TrimSpace(reqBody.URL))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.prober.ProbeHeadThenGet(r.Context(), target)
	writeJSON(w, http.StatusOK, checkURLResponse{
		URL:            target,
		Reachable:      res.Success,
		Method:         res.Method,
		StatusCode:     res.StatusCode,
		ResponseTimeMS: res.ResponseTimeMS(),
		Reason:         res.Reason,
		Timestamp:      h.clock.Now().UTC(),
	})
}

type triggerResponse struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	ChecksPerformed []string `json:"checks_performed"`
}

// TriggerChecks runs one scheduling cycle on behalf of an external scheduler.
func (h *Handlers) TriggerChecks(w http.ResponseWriter, r *http.Request) {
	checked, err := h.scheduler.RunDueChecks(r.Context())
	if errors.Is(err, checker.ErrSchedulerStopped) {
		writeError(w, http.StatusServiceUnavailable, "scheduler is shutting down")
		return
	}
	if err != nil {
		h.logger.Error("triggered check cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if checked == nil {
		checked = []string{}
	}
	writeJSON(w, http.StatusOK, triggerResponse{
		Status:          "success",
		Message:         fmt.Sprintf("Checked %d URLs", len(checked)),
		ChecksPerformed: checked,
	})
}

// GetMonitor returns a monitor with its log.
func (h *Handlers) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMonitor(w, r, h.store.GetMonitor)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type checkMonitorResponse struct {
	MonitorID string          `json:"monitor_id"`
	Entry     models.LogEntry `json:"entry"`
}

// CheckMonitor checks a monitor immediately, outside the regular schedule.
func (h *Handlers) CheckMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMonitor(w, r, h.store.LookupMonitor)
	if !ok {
		return
	}

	// a started check is allowed to finish even if the client goes away
	entry, err := h.runner.Run(context.WithoutCancel(r.Context()), *m)
	switch {
	case errors.Is(err, checker.ErrCheckInProgress):
		writeError(w, http.StatusConflict, "a check for this monitor is already running")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	case err != nil:
		h.logger.Error("manual check failed", zap.String("monitor_id", m.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, checkMonitorResponse{MonitorID: m.ID, Entry: entry})
}

type statsResponse struct {
	MonitorID string `json:"monitor_id"`
	Range     string `json:"range"`
	stats.Summary
}

// GetStats returns daily uptime and recent response times for ?range=7d|30d.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	rng := r.URL.Query().Get("range")
	days, err := stats.ParseRange(rng)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, ok := h.loadMonitor(w, r, h.store.GetMonitor)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		MonitorID: m.ID,
		Range:     fmt.Sprintf("%dd", days),
		Summary:   stats.Summarize(m.Logs, h.clock.Now(), days),
	})
}

// Healthz is a simple health check endpoint.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requireCronSecret guards the trigger endpoint with a bearer token when one is configured.
func (h *Handlers) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cronSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type monitorLoader func(ctx context.Context, id string) (*models.Monitor, error)

func (h *Handlers) loadMonitor(w http.ResponseWriter, r *http.Request, load monitorLoader) (*models.Monitor, bool) {
	id := chi.URLParam(r, "id")
	m, err := load(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get monitor failed", zap.String("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return m, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
