package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Ctl     *engine.Controller
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version   string            `json:"version"`
	Busy      bool              `json:"busy"`
	Progress  protocol.Snapshot `json:"progress"`
	ActiveRun *engine.Run       `json:"active_run"`
	Schedule  scheduleInfo      `json:"schedule"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the engine status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  h.Version,
		Busy:     h.Ctl.Busy(),
		Progress: h.Ctl.Snapshot(),
	}
	if run, ok := h.Ctl.ActiveRun(); ok {
		resp.ActiveRun = &run
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{Cron: h.Sched.CronExpr(), NextRunAt: h.Sched.NextRunAt()}
	}
	writeJSON(w, http.StatusOK, resp)
}
