package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/scheduler"
	"github.com/aristath/portfolio-engine/pkg/httputil"
)

// CacheStatus reports the state of the analytics cache
type CacheStatus interface {
	Backend() string
	Degraded() bool
	Available(ctx context.Context) bool
}

// JobRunner lists scheduled jobs and runs one on demand
type JobRunner interface {
	Jobs() map[string]string
	RunNow(job scheduler.Job) error
}

// SystemHandlers handles health, status and manual job endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	cache       CacheStatus
	databases   map[string]*database.DB
	runner      JobRunner
	jobs        map[string]scheduler.Job
}

// NewSystemHandlers creates system handlers. runner may be nil.
func NewSystemHandlers(log zerolog.Logger, cache CacheStatus, databases map[string]*database.DB, runner JobRunner, jobs ...scheduler.Job) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, j := range jobs {
		if j != nil {
			byName[j.Name()] = j
		}
	}
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		startupTime: time.Now(),
		cache:       cache,
		databases:   databases,
		runner:      runner,
		jobs:        byName,
	}
}

// CacheHealth is the cache section of the health and status responses
type CacheHealth struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Degraded  bool   `json:"degraded"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"` // healthy, degraded or unhealthy
	Service   string            `json:"service"`
	Cache     CacheHealth       `json:"cache"`
	Databases map[string]string `json:"databases"`
}

// DatabaseStatus describes one sqlite file
type DatabaseStatus struct {
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	UptimeHours float64           `json:"uptime_hours"`
	CPUPercent  float64           `json:"cpu_percent"`
	RAMPercent  float64           `json:"ram_percent"`
	Goroutines  int               `json:"goroutines"`
	HeapAllocMB float64           `json:"heap_alloc_mb"`
	Cache       CacheHealth       `json:"cache"`
	Databases   []DatabaseStatus  `json:"databases"`
	Jobs        map[string]string `json:"jobs"` // Job name to next run (RFC3339)
}

// HandleHealth reports liveness. An unreachable database fails the check with
// 503; an unavailable or degraded cache only downgrades the status.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Service:   "portfolio-engine",
		Cache:     h.cacheHealth(r.Context()),
		Databases: make(map[string]string, len(h.databases)),
	}

	status := http.StatusOK
	for name, db := range h.databases {
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Database health check failed")
			resp.Databases[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Databases[name] = "ok"
	}

	switch {
	case status != http.StatusOK:
		resp.Status = "unhealthy"
	case !resp.Cache.Available || resp.Cache.Degraded:
		resp.Status = "degraded"
	}

	httputil.WriteJSON(w, h.log, status, resp)
}

// HandleSystemStatus returns host and engine statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := SystemStatusResponse{
		UptimeHours: time.Since(h.startupTime).Hours(),
		CPUPercent:  cpuPercent,
		RAMPercent:  ramPercent,
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		Cache:       h.cacheHealth(r.Context()),
		Databases:   h.databaseSizes(),
		Jobs:        map[string]string{},
	}
	if h.runner != nil {
		resp.Jobs = h.runner.Jobs()
	}

	httputil.WriteData(w, h.log, http.StatusOK, resp)
}

// HandleRunJob handles POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok || h.runner == nil {
		httputil.WriteJSON(w, h.log, http.StatusNotFound, httputil.ErrorBody{
			Error: fmt.Sprintf("unknown job %q", name),
			Kind:  "not_found",
		})
		return
	}

	start := time.Now()
	if err := h.runner.RunNow(job); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *SystemHandlers) cacheHealth(ctx context.Context) CacheHealth {
	if h.cache == nil {
		return CacheHealth{Backend: "none", Available: true}
	}
	return CacheHealth{
		Backend:   h.cache.Backend(),
		Available: h.cache.Available(ctx),
		Degraded:  h.cache.Degraded(),
	}
}

func (h *SystemHandlers) databaseSizes() []DatabaseStatus {
	out := make([]DatabaseStatus, 0, len(h.databases))
	for name, db := range h.databases {
		st := DatabaseStatus{Name: name}
		if info, err := os.Stat(db.Path()); err == nil {
			st.SizeMB = float64(info.Size()) / 1024 / 1024
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}
