package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"kcd-ticketing/internal/discount"
	"kcd-ticketing/internal/inventory"
	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order"
	"kcd-ticketing/internal/payment"
	"kcd-ticketing/internal/tickets/qr"
	"kcd-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.OrderService
	Reconciler   *payment.Reconciler
	QR           *qr.Generator
	Logger       *logger.Logger

	// StatusPageURL is where the redirect callback sends the browser.
	StatusPageURL string
}

func NewHandler(orderService *order.OrderService, reconciler *payment.Reconciler, qrGen *qr.Generator, statusPageURL string, log *logger.Logger) *Handler {
	return &Handler{
		OrderService:  orderService,
		Reconciler:    reconciler,
		QR:            qrGen,
		Logger:        log,
		StatusPageURL: statusPageURL,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// orderErrorStatus maps engine errors onto HTTP status codes.
func orderErrorStatus(err error) int {
	var validationErr *discount.ValidationError
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, inventory.ErrTierNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrUnknownTier),
		errors.Is(err, order.ErrNoTicketsSelected),
		errors.Is(err, order.ErrMissingAttendee):
		return http.StatusBadRequest
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrTierUnavailable):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrNotYetExpired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
		h.writeJSON(w, orderErrorStatus(err), utils.ErrorResponse("Failed to create order", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", created))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	details, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: %v", err))
		h.writeJSON(w, orderErrorStatus(err), utils.ErrorResponse("Order not found", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order", details))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if err := h.OrderService.Cancel(r.Context(), orderID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelOrder: %v", err))
		h.writeJSON(w, orderErrorStatus(err), utils.ErrorResponse("Could not cancel order", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", nil))
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.OrderService.ListTiers(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTiers: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list tiers", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Ticket tiers", tiers))
}

// GetConfirmation returns the encrypted confirmation QR for a paid order.
func (h *Handler) GetConfirmation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	details, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeJSON(w, orderErrorStatus(err), utils.ErrorResponse("Order not found", err.Error()))
		return
	}

	png, err := h.QR.GenerateConfirmationQR(details.Order, details.Attendee)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetConfirmation: %v", err))
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Confirmation unavailable", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetConfirmation: failed to write image: %v", err))
	}
}
