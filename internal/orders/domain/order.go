package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState captures the processing lifecycle of a lab order.
type OrderState string

const (
	StateCreated   OrderState = "CREATED"
	StateAnalysis  OrderState = "ANALYSIS"
	StateCompleted OrderState = "COMPLETED"
)

// OrderStatus is the record-level flag reserved for soft deletion.
type OrderStatus string

const (
	StatusActive  OrderStatus = "ACTIVE"
	StatusDeleted OrderStatus = "DELETED"
)

// ServiceStatus tracks an individual service item inside an order.
type ServiceStatus string

const (
	ServicePending ServiceStatus = "PENDING"
	ServiceDone    ServiceStatus = "DONE"
)

// ServiceItem is a single billable lab service embedded in an order.
type ServiceItem struct {
	Name   string
	Value  decimal.Decimal
	Status ServiceStatus
}

// Order represents a laboratory service order managed by the system.
type Order struct {
	ID        string
	Lab       string
	Patient   string
	Customer  string
	State     OrderState
	Status    OrderStatus
	Services  []ServiceItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder builds an order in its initial state. State and status are always
// CREATED and ACTIVE; items without a status default to PENDING.
func NewOrder(lab, patient, customer string, services []ServiceItem) (Order, error) {
	items := make([]ServiceItem, len(services))
	for i, s := range services {
		if s.Status == "" {
			s.Status = ServicePending
		}
		items[i] = s
	}

	order := Order{
		Lab:      lab,
		Patient:  patient,
		Customer: customer,
		State:    StateCreated,
		Status:   StatusActive,
		Services: items,
	}
	if err := order.Validate(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Validate checks the structural constraints every stored order must satisfy.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Lab) == "" {
		return NewValidationError("lab", "lab is required")
	}
	if strings.TrimSpace(o.Patient) == "" {
		return NewValidationError("patient", "patient is required")
	}
	if strings.TrimSpace(o.Customer) == "" {
		return NewValidationError("customer", "customer is required")
	}
	if !o.State.Valid() {
		return NewValidationError("state", "state must be one of CREATED, ANALYSIS, COMPLETED")
	}
	if !o.Status.Valid() {
		return NewValidationError("status", "status must be one of ACTIVE, DELETED")
	}
	if len(o.Services) == 0 {
		return NewValidationError("services", "services array must have at least one item")
	}
	for _, s := range o.Services {
		if strings.TrimSpace(s.Name) == "" {
			return NewValidationError("services.name", "service name is required")
		}
		if s.Value.IsNegative() {
			return NewValidationError("services.value", "service value must be greater than or equal to 0")
		}
		if !s.Status.Valid() {
			return NewValidationError("services.status", "service status must be one of PENDING, DONE")
		}
	}
	return nil
}

// Total sums the value of every service item.
func (o Order) Total() decimal.Decimal {
	return SumValues(o.Services)
}

// SumValues adds up item values without any per-item checks.
func SumValues(items []ServiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, s := range items {
		total = total.Add(s.Value)
	}
	return total
}

// IsTerminal reports whether the order can no longer advance.
func (o Order) IsTerminal() bool {
	return o.State == StateCompleted
}

// Valid reports whether s is a known lifecycle state.
func (s OrderState) Valid() bool {
	switch s {
	case StateCreated, StateAnalysis, StateCompleted:
		return true
	default:
		return false
	}
}

// ParseState converts user input into an OrderState.
func ParseState(raw string) (OrderState, error) {
	state := OrderState(strings.ToUpper(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", NewValidationError("state", "state must be one of CREATED, ANALYSIS, COMPLETED")
	}
	return state, nil
}

func (s OrderStatus) Valid() bool {
	return s == StatusActive || s == StatusDeleted
}

func (s ServiceStatus) Valid() bool {
	return s == ServicePending || s == ServiceDone
}
