package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderPaid            OrderStatus = "PAID"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether no further transition is defined out of the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID             string          `bun:"id,pk" json:"id"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	SubtotalAmount decimal.Decimal `bun:"subtotal_amount,notnull" json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `bun:"discount_amount,notnull" json:"discount_amount"`
	TotalAmount    decimal.Decimal `bun:"total_amount,notnull" json:"total_amount"`
	Currency       string          `bun:"currency,notnull" json:"currency"`
	DiscountCodeID string          `bun:"discount_code_id,nullzero" json:"discount_code_id,omitempty"`
	PaymentID      string          `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	PaymentMethod  string          `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	PaymentResult  json.RawMessage `bun:"payment_result,nullzero" json:"payment_result,omitempty"`
	ExpiresAt      time.Time       `bun:"expires_at,notnull" json:"expires_at"`
	PaidAt         time.Time       `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// OrderItem captures the tier price at creation time; the snapshot stays
// immutable even if the tier's price later changes.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID           string          `bun:"id,pk" json:"id"`
	OrderID      string          `bun:"order_id,notnull" json:"order_id"`
	TicketTierID string          `bun:"ticket_tier_id,notnull" json:"ticket_tier_id"`
	TierSlug     string          `bun:"tier_slug,notnull" json:"tier_slug"`
	TierName     string          `bun:"tier_name,notnull" json:"tier_name"`
	Quantity     int             `bun:"quantity,notnull" json:"quantity"`
	UnitPrice    decimal.Decimal `bun:"unit_price,notnull" json:"unit_price"`
	TotalPrice   decimal.Decimal `bun:"total_price,notnull" json:"total_price"`
}

type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	ID              string    `bun:"id,pk" json:"id"`
	OrderID         string    `bun:"order_id,notnull,unique" json:"order_id"`
	Name            string    `bun:"name,notnull" json:"name"`
	Email           string    `bun:"email,notnull" json:"email"`
	Country         string    `bun:"country" json:"country"`
	JobTitle        string    `bun:"job_title" json:"job_title"`
	Company         string    `bun:"company" json:"company"`
	Industry        string    `bun:"industry" json:"industry"`
	OrgType         string    `bun:"org_type" json:"org_type"`
	CNCFConsent     bool      `bun:"cncf_consent" json:"cncf_consent"`
	WhatsappUpdates bool      `bun:"whatsapp_updates" json:"whatsapp_updates"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ---------------- API TYPES ----------------

type AttendeeInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Country         string `json:"country"`
	JobTitle        string `json:"job_title"`
	Company         string `json:"company"`
	Industry        string `json:"industry"`
	OrgType         string `json:"org_type"`
	CNCFConsent     bool   `json:"cncf_consent"`
	WhatsappUpdates bool   `json:"whatsapp_updates"`
}

// OrderRequest selects tier slugs with quantities, plus the attendee and an
// optional discount code.
type OrderRequest struct {
	Selections   map[string]int `json:"selections"`
	Attendee     AttendeeInput  `json:"attendee"`
	DiscountCode string         `json:"discount_code,omitempty"`
}

type OrderWithDetails struct {
	Order    Order       `json:"order"`
	Items    []OrderItem `json:"items"`
	Attendee *Attendee   `json:"attendee,omitempty"`
}
