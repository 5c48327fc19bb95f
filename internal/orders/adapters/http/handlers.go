package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dejobratic/laborders/internal/orders/app"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxBodyBytes         = 1 << 20
)

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
	// creates collapses concurrent creates that share an Idempotency-Key.
	creates singleflight.Group
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register binds the order handlers to mux. protect wraps every order route,
// typically with the bearer token middleware.
func (h *Handler) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /orders", protect(http.HandlerFunc(h.createOrder)))
	mux.Handle("GET /orders", protect(http.HandlerFunc(h.listOrders)))
	mux.Handle("GET /orders/{id}", protect(http.HandlerFunc(h.getOrder)))
	mux.Handle("PATCH /orders/{id}/advance", protect(http.HandlerFunc(h.advanceOrder)))
}

type serviceItemRequest struct {
	Name   string           `json:"name"`
	Value  *decimal.Decimal `json:"value"`
	Status string           `json:"status"`
}

// createOrderRequest has no state or status fields. Both are forced at creation.
type createOrderRequest struct {
	Lab      string               `json:"lab"`
	Patient  string               `json:"patient"`
	Customer string               `json:"customer"`
	Services []serviceItemRequest `json:"services"`
}

func (req createOrderRequest) toInput() (app.CreateOrderInput, error) {
	input := app.CreateOrderInput{
		Lab:      req.Lab,
		Patient:  req.Patient,
		Customer: req.Customer,
		Services: make([]app.ServiceItemInput, len(req.Services)),
	}
	for i, item := range req.Services {
		if item.Value == nil {
			return app.CreateOrderInput{}, domain.NewValidationError("services.value", "service value is required")
		}
		input.Services[i] = app.ServiceItemInput{
			Name:   item.Name,
			Value:  *item.Value,
			Status: item.Status,
		}
	}
	return input, nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))

	if idemKey != "" {
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if stored != nil {
			writeReplay(w, stored)
			return
		}
	}

	var payload createOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON payload")
		return
	}

	input, err := payload.toInput()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if idemKey == "" {
		created, err := h.create(r, input)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeCreated(w, created)
		return
	}

	// Callers sharing a key wait on one create. The store is checked again
	// inside the flight so a caller arriving after a finished flight replays
	// its saved response instead of creating a second order.
	v, err, _ := h.creates.Do(idemKey, func() (any, error) {
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			return idempotentResult{response: *stored, replayed: true}, nil
		}

		created, err := h.create(r, input)
		if err != nil {
			return nil, err
		}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, created); err != nil {
			h.logger.ErrorContext(ctx, "failed to store idempotent response",
				"error", err,
				"order_id", created.OrderID,
			)
		}
		return idempotentResult{response: created}, nil
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result := v.(idempotentResult)
	if result.replayed {
		writeReplay(w, &result.response)
		return
	}
	writeCreated(w, result.response)
}

type idempotentResult struct {
	response ports.StoredResponse
	replayed bool
}

// create stores the order and renders the 201 response body.
func (h *Handler) create(r *http.Request, input app.CreateOrderInput) (ports.StoredResponse, error) {
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		return ports.StoredResponse{}, err
	}

	body, err := json.Marshal(order)
	if err != nil {
		return ports.StoredResponse{}, fmt.Errorf("encode order: %w", err)
	}

	return ports.StoredResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		OrderID:    order.ID,
	}, nil
}

func writeCreated(w http.ResponseWriter, created ports.StoredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/orders/"+created.OrderID)
	w.WriteHeader(created.StatusCode)
	_, _ = w.Write(created.Body)
}

func writeReplay(w http.ResponseWriter, stored *ports.StoredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	if stored.OrderID != "" {
		w.Header().Set("Location", "/orders/"+stored.OrderID)
	}
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	input := app.ListOrdersInput{
		Page:  intParam(query.Get("page")),
		Limit: intParam(query.Get("limit")),
	}

	if raw := query.Get("state"); raw != "" {
		state, err := domain.ParseState(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		input.State = &state
	}

	list, err := h.service.ListOrders(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.AdvanceOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// intParam returns 0 for absent or non-numeric input so the service applies its defaults.
func intParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

const (
	codeValidation = "validation_error"
	codeNotFound   = "order_not_found"
	codeConflict   = "order_conflict"
	codeInternal   = "internal_error"
)

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	var conflict *domain.ConflictError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, codeValidation, verr.Message)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, codeConflict, conflict.Message)
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
