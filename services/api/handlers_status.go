package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// handleStatus evicts stale computers and returns the remaining fleet.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, evicted, err := a.registry.Status(r.Context())
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	if len(evicted) > 0 {
		a.RecordEvictions(r.Context(), evicted)
	}
	a.metrics.observeSnapshot(snap)

	respondJSON(w, http.StatusOK, snap)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		respondError(w, http.StatusNotFound, errors.New("audit trail is not configured"))
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(parsed, maxAuditLimit)
	}

	entries, err := a.audit.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
