// Package reconcile merges sparse appointment update payloads with persisted
// state. A field absent from the payload is never touched. Sub-collection
// items are classified new vs existing through an explicit tagged reference
// instead of sniffing transient-id prefixes: a line is new when it carries a
// catalog reference and no persisted id. Only payloads containing at least
// one new line replace the additional items of that sub-collection; the main
// service line is never removed.
package reconcile

import (
	"fmt"
	"time"

	"salonflow/internal/models"

	"github.com/google/uuid"
)

// LineRef identifies an incoming sub-collection line. Exactly one side is
// meaningful: PersistedID for lines already stored, CatalogID for lines the
// client just added from the catalog.
type LineRef struct {
	PersistedID string `json:"persisted_id,omitempty"`
	CatalogID   string `json:"catalog_id,omitempty"`
}

// NewLine tags a freshly added line by its catalog reference.
func NewLine(catalogID string) LineRef {
	return LineRef{CatalogID: catalogID}
}

// ExistingLine tags a line that is already persisted.
func ExistingLine(persistedID string) LineRef {
	return LineRef{PersistedID: persistedID}
}

// IsNew reports whether the line was just added: no persisted identity,
// paired with a real catalog reference.
func (r LineRef) IsNew() bool {
	return r.PersistedID == "" && r.CatalogID != ""
}

// ServiceLine is one incoming service item of an update payload.
type ServiceLine struct {
	Ref             LineRef `json:"ref"`
	StaffID         string  `json:"staff_id,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Completed       bool    `json:"completed"`
}

// ProductLine is one incoming product item of an update payload.
type ProductLine struct {
	Ref      LineRef `json:"ref"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// UpdatePayload is a sparse appointment patch. Nil pointers and nil slices
// mean "do not touch".
type UpdatePayload struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	TotalPrice      *float64   `json:"total_price,omitempty"`
	DiscountAmount  *float64   `json:"discount_amount,omitempty"`
	FinalAmount     *float64   `json:"final_amount,omitempty"`
	Status          *string    `json:"status,omitempty"`

	Services []ServiceLine `json:"services,omitempty"`
	Products []ProductLine `json:"products,omitempty"`
}

// FieldUpdates carries the scalar portion of the plan. Nil means unchanged.
type FieldUpdates struct {
	StartTime       *time.Time
	DurationMinutes *int
	Notes           *string
	TotalPrice      *float64
	DiscountAmount  *float64
	FinalAmount     *float64
}

// Plan is the deterministic outcome of reconciliation, safe to persist
// exactly once. Inserted rows carry their final ids, so applying the same
// plan to the already-reconciled state reproduces it unchanged.
type Plan struct {
	AppointmentID string
	Fields        FieldUpdates

	// ReplaceServices deletes every additional service line (never the
	// main line at position 0) and inserts InsertServices.
	ReplaceServices bool
	InsertServices  []models.AppointmentService

	// ReplaceProducts deletes every persisted product line and inserts
	// InsertProducts.
	ReplaceProducts bool
	InsertProducts  []models.AppointmentProduct

	// Warnings report lines that were dropped so the initiating actor
	// sees no silent data loss.
	Warnings []string
}

// IsNoop reports whether applying the plan would change nothing.
func (p *Plan) IsNoop() bool {
	f := p.Fields
	scalars := f.StartTime != nil || f.DurationMinutes != nil || f.Notes != nil ||
		f.TotalPrice != nil || f.DiscountAmount != nil || f.FinalAmount != nil
	return !scalars && !p.ReplaceServices && !p.ReplaceProducts
}

// Reconcile merges patch against the persisted appointment. It never fails:
// unrecognized or duplicate lines are dropped and reported as warnings.
// Status is deliberately not part of the plan; transitions go through the
// lifecycle state machine.
func Reconcile(persisted *models.Appointment, patch UpdatePayload) Plan {
	plan := Plan{
		AppointmentID: persisted.ID,
		Fields: FieldUpdates{
			StartTime:       patch.StartTime,
			DurationMinutes: patch.DurationMinutes,
			Notes:           patch.Notes,
			TotalPrice:      patch.TotalPrice,
			DiscountAmount:  patch.DiscountAmount,
			FinalAmount:     patch.FinalAmount,
		},
	}

	reconcileServices(persisted, patch.Services, &plan)
	reconcileProducts(persisted, patch.Products, &plan)

	return plan
}

func reconcileServices(persisted *models.Appointment, incoming []ServiceLine, plan *Plan) {
	if incoming == nil {
		return
	}

	mainServiceID := ""
	if main := persisted.MainService(); main != nil {
		mainServiceID = main.ServiceID
	}

	anyNew := false
	for _, line := range incoming {
		if line.Ref.IsNew() {
			anyNew = true
		} else if line.Ref.PersistedID == "" {
			plan.Warnings = append(plan.Warnings, "dropped service line without catalog reference")
		}
	}
	if !anyNew {
		// No-op resubmission: every line already persisted, collection
		// stays untouched.
		return
	}

	plan.ReplaceServices = true
	seen := map[string]bool{mainServiceID: true}
	position := 1
	for _, line := range incoming {
		if !line.Ref.IsNew() {
			continue
		}
		serviceID := line.Ref.CatalogID
		if serviceID == mainServiceID {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("dropped service %s: duplicates the main service", serviceID))
			continue
		}
		if seen[serviceID] {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("dropped service %s: already present in payload", serviceID))
			continue
		}
		seen[serviceID] = true

		plan.InsertServices = append(plan.InsertServices, models.AppointmentService{
			ID:              uuid.NewString(),
			AppointmentID:   persisted.ID,
			ServiceID:       serviceID,
			StaffID:         line.StaffID,
			Price:           line.Price,
			DurationMinutes: line.DurationMinutes,
			Completed:       line.Completed,
			Position:        position,
		})
		position++
	}
}

func reconcileProducts(persisted *models.Appointment, incoming []ProductLine, plan *Plan) {
	if incoming == nil {
		return
	}

	anyNew := false
	for _, line := range incoming {
		if line.Ref.IsNew() {
			anyNew = true
		} else if line.Ref.PersistedID == "" {
			plan.Warnings = append(plan.Warnings, "dropped product line without catalog reference")
		}
	}
	if !anyNew {
		return
	}

	plan.ReplaceProducts = true
	seen := map[string]bool{}
	for _, line := range incoming {
		if !line.Ref.IsNew() {
			continue
		}
		productID := line.Ref.CatalogID
		if seen[productID] {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("dropped product %s: already present in payload", productID))
			continue
		}
		seen[productID] = true

		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}

		plan.InsertProducts = append(plan.InsertProducts, models.AppointmentProduct{
			ID:            uuid.NewString(),
			AppointmentID: persisted.ID,
			ProductID:     productID,
			Quantity:      quantity,
			Price:         line.Price,
		})
	}
}
