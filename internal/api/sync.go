package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salonflow/internal/models"
)

// pollQuotaPerMinute caps poll requests per client across instances. The
// token-bucket limiter in auth is per process; this quota is shared state.
const pollQuotaPerMinute = 120

// handleChanges serves incremental sync polls. A request without a cursor is
// a baseline request: the client receives a cursor and no changes, then
// polls forward from there.
func (s *HTTPServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.clientState != nil {
		client := s.auth.ClientName(r)
		allowed, err := s.clientState.CheckRateLimit(r.Context(), client, pollQuotaPerMinute, time.Minute)
		if err != nil {
			s.logger.Warn().Err(err).Str("client", client).Msg("poll quota check failed, allowing request")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "poll quota exceeded")
			return
		}
	}

	q := r.URL.Query()

	var cursor *time.Time
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since cursor, expected RFC3339")
			return
		}
		cursor = &parsed
	}

	entityTypes := splitCSV(q.Get("entity_types"))
	locationID := q.Get("location_id")

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := s.changes.PollSince(r.Context(), cursor, entityTypes, locationID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("changes poll failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Poll-state bookkeeping is best effort and never fails the poll.
	if s.clientState != nil {
		client := s.auth.ClientName(r)
		if err := s.clientState.SetLastPoll(r.Context(), client, page.NextCursor); err != nil {
			s.logger.Warn().Err(err).Str("client", client).Msg("failed to record last poll")
		}
	}

	writeJSON(w, http.StatusOK, page)
}

// handleChangesCursor returns the caller's last acknowledged cursor, for
// clients recovering state after a reinstall.
func (s *HTTPServer) handleChangesCursor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.clientState == nil {
		writeError(w, http.StatusNotFound, "poll state tracking is not configured")
		return
	}

	client := s.auth.ClientName(r)
	cursor, err := s.clientState.GetLastPoll(r.Context(), client)
	if err != nil {
		s.logger.Error().Err(err).Str("client", client).Msg("failed to load last poll")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client":    client,
		"timestamp": cursor,
	})
}

// handleCleanup prunes change-log records older than the requested horizon.
func (s *HTTPServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// An absent field or empty body falls back to the retention default.
	var req struct {
		HoursToKeep int `json:"hours_to_keep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hours := req.HoursToKeep
	if hours <= 0 {
		hours = models.DefaultRetentionHours
	}

	deleted, err := s.changes.CleanupOlderThan(r.Context(), hours)
	if err != nil {
		s.logger.Error().Err(err).Msg("changelog cleanup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":       deleted,
		"hours_to_keep": hours,
	})
}
