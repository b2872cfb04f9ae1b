package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"salonflow/internal/database"
	"salonflow/internal/lifecycle"
	"salonflow/internal/reconcile"
	"salonflow/internal/service"
)

// transientIDPrefix marks client-generated ids on lines that have not been
// persisted yet. Kept for wire compatibility with older clients; internally
// lines are classified by reference, not by prefix.
const transientIDPrefix = "temp_"

type apiServiceLine struct {
	ID              string  `json:"id,omitempty"`
	ServiceID       string  `json:"service_id,omitempty"`
	StaffID         string  `json:"staff_id,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Completed       bool    `json:"completed"`
}

type apiProductLine struct {
	ID        string  `json:"id,omitempty"`
	ProductID string  `json:"product_id,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type apiUpdateRequest struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	TotalPrice      *float64   `json:"total_price,omitempty"`
	DiscountAmount  *float64   `json:"discount_amount,omitempty"`
	FinalAmount     *float64   `json:"final_amount,omitempty"`
	Status          *string    `json:"status,omitempty"`

	Services []apiServiceLine `json:"services,omitempty"`
	Products []apiProductLine `json:"products,omitempty"`

	ActorID string `json:"actor_id,omitempty"`
}

func lineRef(id, catalogID string) reconcile.LineRef {
	if id == "" || strings.HasPrefix(id, transientIDPrefix) {
		return reconcile.NewLine(catalogID)
	}
	return reconcile.ExistingLine(id)
}

func (req *apiUpdateRequest) toPayload() reconcile.UpdatePayload {
	payload := reconcile.UpdatePayload{
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		TotalPrice:      req.TotalPrice,
		DiscountAmount:  req.DiscountAmount,
		FinalAmount:     req.FinalAmount,
		Status:          req.Status,
	}
	if req.Services != nil {
		payload.Services = make([]reconcile.ServiceLine, 0, len(req.Services))
		for _, line := range req.Services {
			payload.Services = append(payload.Services, reconcile.ServiceLine{
				Ref:             lineRef(line.ID, line.ServiceID),
				StaffID:         line.StaffID,
				Price:           line.Price,
				DurationMinutes: line.DurationMinutes,
				Completed:       line.Completed,
			})
		}
	}
	if req.Products != nil {
		payload.Products = make([]reconcile.ProductLine, 0, len(req.Products))
		for _, line := range req.Products {
			payload.Products = append(payload.Products, reconcile.ProductLine{
				Ref:      lineRef(line.ID, line.ProductID),
				Quantity: line.Quantity,
				Price:    line.Price,
			})
		}
	}
	return payload
}

func (s *HTTPServer) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAppointment(w, r)
	case http.MethodGet:
		s.listAppointments(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAppointment routes /api/v1/appointments/{id}[/action].
func (s *HTTPServer) handleAppointment(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/appointments/"), "/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "appointment id is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getAppointment(w, r, id)
	case action == "" && r.Method == http.MethodPatch:
		s.updateAppointment(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteAppointment(w, r, id)
	case action == "status" && r.Method == http.MethodPost:
		s.updateStatus(w, r, id)
	case action == "reassign" && r.Method == http.MethodPost:
		s.reassignStaff(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		req.ActorID = s.auth.ClientName(r)
	}

	appt, err := s.appointments.CreateAppointment(r.Context(), &req)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *HTTPServer) getAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := s.appointments.GetAppointment(r.Context(), id)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) listAppointments(w http.ResponseWriter, r *http.Request) {
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

	appts, err := s.appointments.ListAppointmentsByStaff(r.Context(), staffID, from, to)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (s *HTTPServer) updateAppointment(w http.ResponseWriter, r *http.Request, id string) {
	var req apiUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = s.auth.ClientName(r)
	}

	appt, warnings, err := s.appointments.UpdateAppointment(r.Context(), id, req.toPayload(), actor)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment": appt,
		"warnings":    warnings,
	})
}

func (s *HTTPServer) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status  string `json:"status"`
		ActorID string `json:"actor_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = s.auth.ClientName(r)
	}

	appt, err := s.appointments.UpdateAppointmentStatus(r.Context(), id, req.Status, actor)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) reassignStaff(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		StaffID string `json:"staff_id"`
		ActorID string `json:"actor_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = s.auth.ClientName(r)
	}

	appt, err := s.appointments.ReassignStaff(r.Context(), id, req.StaffID, actor)
	if err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) deleteAppointment(w http.ResponseWriter, r *http.Request, id string) {
	actor := s.auth.ClientName(r)
	if err := s.appointments.DeleteAppointment(r.Context(), id, actor); err != nil {
		s.writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *HTTPServer) writeAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, lifecycle.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, "time slot is not available")
	case errors.Is(err, database.ErrVersionConflict):
		writeError(w, http.StatusConflict, "appointment was modified concurrently, retry")
	default:
		s.logger.Error().Err(err).Msg("appointment handler failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
