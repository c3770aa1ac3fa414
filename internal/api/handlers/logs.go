package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/taxsheet/internal/engine"
)

// LogsHandler handles GET /api/logs.
type LogsHandler struct {
	Ctl *engine.Controller
}

type logLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Line      string    `json:"line"`
}

// ServeHTTP returns the buffered log lines, oldest first.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entries := h.Ctl.Logs()
	items := make([]logLine, 0, len(entries))
	for _, e := range entries {
		items = append(items, logLine{Timestamp: e.Timestamp, Message: e.Message, Line: e.String()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
