package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order"
	"kcd-ticketing/internal/payment"
	"kcd-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// RequestPaymentLink asks the provider for a hosted payment URL and moves
// the order to AWAITING_PAYMENT.
func (h *Handler) RequestPaymentLink(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("RequestPaymentLink: orderId=%s", orderID))

	linkURL, err := h.Reconciler.RequestPaymentLink(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RequestPaymentLink: %v", err))

		var providerErr *payment.ProviderError
		status := orderErrorStatus(err)
		switch {
		case errors.As(err, &providerErr):
			status = http.StatusBadGateway
		case errors.Is(err, payment.ErrLinkRequestInFlight):
			status = http.StatusConflict
		}
		h.writeJSON(w, status, utils.ErrorResponse("Failed to create payment link", err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment link created", map[string]string{"url": linkURL}))
}

// webhookPayload is the provider's confirmation POST body. Field shapes vary
// between provider versions; only these are contractually read.
type webhookPayload struct {
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentWebhook consumes the provider's confirmation POST. Reconciliation
// failures are reported in a 200 body rather than a non-2xx status, which
// keeps the provider from retry-storming; replays are safe because the paid
// transition is idempotent. Only missing identifiers get a 400.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentWebhook: failed to decode payload: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}
	if payload.OrderID == "" || payload.TransactionID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", payment.ErrMissingIdentifiers.Error()))
		return
	}

	conf := models.PaymentConfirmation{
		OrderID:       payload.OrderID,
		TransactionID: payload.TransactionID,
		Status:        payload.Status,
		Amount:        payload.Amount,
		Raw:           body,
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), conf)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentWebhook: reconcile order %s: %v", payload.OrderID, err))
		h.writeJSON(w, http.StatusOK, utils.ErrorResponse("Reconciliation failed", err.Error()))
		return
	}

	if outcome.Applied {
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse(outcome.Message, nil))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.ErrorResponse(outcome.Message, ""))
}

// PaymentResult handles the browser redirect back from the provider
// (TotalPagado, Estado, Oper and orderId query parameters) and forwards the
// user to the status page with a human-readable message.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	totalPaid := query.Get("TotalPagado")
	estado := query.Get("Estado")
	oper := query.Get("Oper")
	orderID := query.Get("orderId")

	success := false
	message := "We could not verify your payment."

	switch {
	case orderID == "" || oper == "":
		if estado != "" {
			message = fmt.Sprintf("Payment status: %s", estado)
		}
	default:
		amount, err := decimal.NewFromString(totalPaid)
		if err != nil {
			message = "Payment amount could not be read."
			break
		}

		conf := models.PaymentConfirmation{
			OrderID:       orderID,
			TransactionID: oper,
			Status:        estado,
			Amount:        amount,
		}
		outcome, err := h.Reconciler.Reconcile(r.Context(), conf)
		switch {
		case errors.Is(err, payment.ErrAmountMismatch):
			message = "Payment amount does not match the order total."
		case errors.Is(err, order.ErrNotFound):
			message = "Order not found."
		case err != nil:
			message = err.Error()
		default:
			success = outcome.Applied
			message = outcome.Message
		}
	}

	redirect := h.StatusPageURL
	params := url.Values{}
	params.Set("success", fmt.Sprintf("%t", success))
	params.Set("message", message)
	http.Redirect(w, r, redirect+"?"+params.Encode(), http.StatusFound)
}
