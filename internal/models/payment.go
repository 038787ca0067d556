package models

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentConfirmation is the normalized shape of an external payment
// confirmation, whether it arrived as a webhook POST or a redirect GET.
type PaymentConfirmation struct {
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Raw           json.RawMessage `json:"-"`
}

// Approved maps the provider's status vocabulary onto a single boolean.
// Webhooks use COMPLETED/SUCCESS/APPROVED; the browser redirect carries the
// Spanish "Aprobada".
func (c PaymentConfirmation) Approved() bool {
	switch strings.ToUpper(strings.TrimSpace(c.Status)) {
	case "COMPLETED", "SUCCESS", "APPROVED", "APROBADA":
		return true
	}
	return false
}

// PaymentLinkResponse is the PagueloFacil LinkDeamon envelope. Only
// headerStatus.code, data.url and data.code are contractually read; the rest
// is kept opaque on the order.
type PaymentLinkResponse struct {
	HeaderStatus struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"headerStatus"`
	ServerTime string `json:"serverTime,omitempty"`
	Message    string `json:"message,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Data       struct {
		URL  string `json:"url"`
		Code string `json:"code"`
	} `json:"data"`
	Success bool `json:"success,omitempty"`
}

// PaymentLink is the usable result of a successful link request.
type PaymentLink struct {
	URL  string          `json:"url"`
	Code string          `json:"code"`
	Raw  json.RawMessage `json:"-"`
}
