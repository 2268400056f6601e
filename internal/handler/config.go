package handler

import "net/http"

// ConfigHandler exposes the public settings the widget needs at load time.
type ConfigHandler struct {
	vapidPublicKey string
}

func NewConfigHandler(vapidPublicKey string) *ConfigHandler {
	return &ConfigHandler{vapidPublicKey: vapidPublicKey}
}

// Push returns the VAPID public key, or 503 when push is disabled.
func (h *ConfigHandler) Push(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"vapid_public_key": h.vapidPublicKey})
}
