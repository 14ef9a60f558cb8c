package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/doorgate/internal/audit"
)

// handlePublishes lists the publish journal, newest first.
//
// Query parameters: kind, result, limit, offset.
func (s *Server) handlePublishes(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "publish journal not enabled")
		return
	}

	values := r.URL.Query()
	filter := audit.Filter{
		Kind:   values.Get("kind"),
		Result: values.Get("result"),
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	res, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing publish journal failed", "error", err)
		writeInternalError(w, "failed to list publishes")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
