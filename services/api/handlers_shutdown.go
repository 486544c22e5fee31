package api

import (
	"errors"
	"net/http"
	"strings"

	"shutdownd/pkg/events"
	"shutdownd/pkg/state"
)

type shutdownRequest struct {
	GroupName    string  `json:"group_name"`
	ComputerName *string `json:"computer_name"`
}

type shutdownResponse struct {
	GroupName string   `json:"group_name"`
	Requested []string `json:"requested"`
}

// handleShutdown requests shutdown of one computer when computer_name is
// present, or of every online computer of the group otherwise.
func (a *API) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req shutdownRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.GroupName) == "" {
		respondError(w, http.StatusBadRequest, errors.New("group_name is required"))
		return
	}

	var (
		scope     = "group"
		requested []string
		err       error
	)
	if req.ComputerName != nil {
		scope = "computer"
		if strings.TrimSpace(*req.ComputerName) == "" {
			respondError(w, http.StatusBadRequest, errors.New("computer_name must not be empty"))
			return
		}
		err = a.registry.RequestShutdownComputer(r.Context(), req.GroupName, *req.ComputerName)
		if err == nil {
			requested = []string{*req.ComputerName}
		}
	} else {
		requested, err = a.registry.RequestShutdownGroup(r.Context(), req.GroupName)
	}

	actor := userFromContext(r.Context())
	if err != nil {
		a.metrics.shutdownRequests.WithLabelValues(scope, "rejected").Inc()
		a.logger.Warn().
			Err(err).
			Str("actor", actor).
			Str("group", req.GroupName).
			Str("scope", scope).
			Msg("shutdown request rejected")
		respondRegistryError(w, err)
		return
	}
	a.metrics.shutdownRequests.WithLabelValues(scope, "accepted").Inc()

	for _, computerName := range requested {
		a.logger.Info().
			Str("actor", actor).
			Str("group", req.GroupName).
			Str("computer", computerName).
			Msg("shutdown requested")
		a.publish(r.Context(), events.New(events.KindShutdownRequested, req.GroupName, computerName, state.ShutdownRequested, actor))
	}

	respondJSON(w, http.StatusOK, shutdownResponse{GroupName: req.GroupName, Requested: requested})
}
