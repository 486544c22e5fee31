package api

import (
	"errors"
	"net/http"

	"shutdownd/pkg/events"
	"shutdownd/pkg/state"
)

// handlePong records a heartbeat and answers with the computer's state as a
// JSON string. Unknown groups and computers are registered on the fly.
func (a *API) handlePong(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	groupName := query.Get("group_name")
	computerName := query.Get("computer_name")
	if groupName == "" || computerName == "" {
		respondError(w, http.StatusBadRequest, errors.New("group_name and computer_name query parameters are required"))
		return
	}

	st, err := a.registry.Heartbeat(r.Context(), groupName, computerName)
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	a.metrics.heartbeats.WithLabelValues(st.String()).Inc()

	if st == state.ShutdownRequested {
		a.logger.Info().
			Str("group", groupName).
			Str("computer", computerName).
			Msg("shutdown accepted by agent")
		a.publish(r.Context(), events.New(events.KindShutdownAccepted, groupName, computerName, state.ShutdownAccepted, "agent"))
	}

	respondJSON(w, http.StatusOK, st)
}
