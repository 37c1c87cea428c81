package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"trustgate/internal/member"
	"trustgate/internal/observability"
)

// PurgeHandler permanently removes members that have been soft-deleted for
// longer than the retention window. It is meant to be invoked by a scheduled
// job and is disabled entirely when no cron secret is configured.
type PurgeHandler struct {
	repo       *member.Repository
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewPurgeHandler(
	repo *member.Repository,
	logger *observability.Logger,
	cronSecret string,
	retention time.Duration,
	batchSize int,
) *PurgeHandler {
	return &PurgeHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *PurgeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := time.Now().Add(-h.retention)
	purged, err := h.repo.PurgeDeleted(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("member_purge_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "purge failed"})
		return
	}

	h.logger.Info("member_purge_completed", map[string]any{
		"purged_members": purged,
		"cutoff":         cutoff.UTC().Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"purged": purged,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
