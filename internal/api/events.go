package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/doorgate/internal/gateway"
)

// eventQuery holds the parsed ?door=&limit= parameters.
type eventQuery struct {
	door  *int
	limit int
}

func parseEventQuery(r *http.Request) (eventQuery, string) {
	var q eventQuery
	values := r.URL.Query()

	if v := values.Get("door"); v != "" {
		door, err := strconv.Atoi(v)
		if err != nil || door < 0 {
			return q, "door must be a non-negative integer"
		}
		q.door = &door
	}

	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return q, "limit must be a positive integer"
		}
		q.limit = limit
	}

	return q, ""
}

// handleAccessEvents lists the newest access events.
func (s *Server) handleAccessEvents(w http.ResponseWriter, r *http.Request) {
	q, problem := parseEventQuery(r)
	if problem != "" {
		writeBadRequest(w, problem)
		return
	}

	events, err := s.events.RecentAccess(r.Context(), gateway.AccessFilter{DoorID: q.door, Limit: q.limit})
	if err != nil {
		s.logger.Error("listing access events failed", "error", err)
		writeInternalError(w, "failed to list access events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleSystemEvents lists the newest system events.
func (s *Server) handleSystemEvents(w http.ResponseWriter, r *http.Request) {
	q, problem := parseEventQuery(r)
	if problem != "" {
		writeBadRequest(w, problem)
		return
	}

	events, err := s.events.RecentSystem(r.Context(), gateway.SystemFilter{DoorID: q.door, Limit: q.limit})
	if err != nil {
		s.logger.Error("listing system events failed", "error", err)
		writeInternalError(w, "failed to list system events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
