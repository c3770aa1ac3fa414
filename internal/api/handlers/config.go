package handlers

import (
	"net/http"

	"github.com/eargollo/taxsheet/internal/config"
)

// ConfigHandler handles GET /api/config.
type ConfigHandler struct {
	Cfg *config.Config
}

// Get returns the settings a client may show. Paths of the server itself
// (address, database) are excluded by the config's json tags.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cfg)
}
