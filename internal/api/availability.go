package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salonflow/internal/database"
	"salonflow/internal/service"
)

type availabilityCheckResponse struct {
	StaffID   string    `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

// handleAvailabilityCheck answers conflict / no conflict for one staff
// member and one candidate interval.
func (s *HTTPServer) handleAvailabilityCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	staffID := q.Get("staff_id")
	start, err := time.Parse(time.RFC3339, q.Get("start_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time, expected RFC3339")
		return
	}
	minutes, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	exclude := q.Get("exclude_appointment_id")

	conflict, err := s.appointments.CheckStaffAvailability(r.Context(), staffID, start, minutes, exclude)
	if err != nil {
		s.writeAvailabilityError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityCheckResponse{
		StaffID:   staffID,
		StartTime: start,
		EndTime:   start.Add(time.Duration(minutes) * time.Minute),
		Available: !conflict,
	})
}

// handleAvailabilityBulk filters a staff list down to those who cannot take
// the interval, one resolver pass per staff member.
func (s *HTTPServer) handleAvailabilityBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		StaffIDs        []string  `json:"staff_ids"`
		StartTime       time.Time `json:"start_time"`
		DurationMinutes int       `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unavailable, err := s.appointments.UnavailableStaff(r.Context(), req.StaffIDs, req.StartTime, req.DurationMinutes)
	if err != nil {
		s.writeAvailabilityError(w, err)
		return
	}

	unavailableSet := make(map[string]bool, len(unavailable))
	for _, id := range unavailable {
		unavailableSet[id] = true
	}
	available := make([]string, 0, len(req.StaffIDs))
	for _, id := range req.StaffIDs {
		if !unavailableSet[id] {
			available = append(available, id)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"available_staff":   available,
		"unavailable_staff": unavailable,
	})
}

func (s *HTTPServer) handleBlockedTimes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createBlockedTime(w, r)
	case http.MethodGet:
		s.listBlockedTimes(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleBlockedTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/blocked-times/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "blocked time id is required")
		return
	}

	if err := s.blockedTimes.DeleteBlockedTime(r.Context(), id, s.auth.ClientName(r)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "blocked time not found")
			return
		}
		s.logger.Error().Err(err).Msg("blocked time delete failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *HTTPServer) createBlockedTime(w http.ResponseWriter, r *http.Request) {
	var req service.BlockedTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		req.ActorID = s.auth.ClientName(r)
	}

	entry, err := s.blockedTimes.CreateBlockedTime(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("blocked time create failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *HTTPServer) listBlockedTimes(w http.ResponseWriter, r *http.Request) {
	staffID := r.URL.Query().Get("staff_id")
	if staffID == "" {
		writeError(w, http.StatusBadRequest, "staff_id is required")
		return
	}
	from, err := parseTimeParam(r, "from", time.Now().AddDate(0, 0, -7))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	to, err := parseTimeParam(r, "to", time.Now().AddDate(0, 0, 30))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}

	entries, err := s.blockedTimes.ListBlockedTimes(r.Context(), staffID, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("blocked time list failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_times": entries})
}

func (s *HTTPServer) writeAvailabilityError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrValidation) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg("availability handler failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
