package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"kcd-ticketing/internal/config"
	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"
)

// MethodPagueloFacil is the payment_method value recorded on orders paid
// through the provider.
const MethodPagueloFacil = "PagueloFacil"

// ProviderError carries the provider's own rejection message (or the network
// failure) out to the caller. The order is never mutated on a provider error.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment provider: %s: %v", e.Message, e.Err)
	}
	return "payment provider: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client talks to the PagueloFacil link daemon. The single external-network
// hop in the system; every call is bounded by the configured timeout.
type Client struct {
	cfg    config.ProviderConfig
	client *http.Client
	logger *logger.Logger
}

func NewClient(cfg config.ProviderConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

// CreatePaymentLink requests a hosted payment URL for the order. Success is
// signaled by headerStatus.code == 200 plus a data.url; anything else is a
// ProviderError carrying the provider's description.
func (c *Client) CreatePaymentLink(ctx context.Context, order models.Order, items []models.OrderItem) (*models.PaymentLink, error) {
	if c.cfg.CCLW == "" || c.cfg.ReturnURL == "" {
		return nil, &ProviderError{Message: "payment provider is not configured"}
	}

	taxAmount := order.TotalAmount.Mul(c.cfg.TaxRate)

	form := url.Values{
		"CCLW":       {c.cfg.CCLW},
		"CMTN":       {order.TotalAmount.StringFixed(2)},
		"CDSC":       {describeItems(items)},
		"RETURN_URL": {c.cfg.ReturnURL},
		"EXPIRES_IN": {strconv.Itoa(c.cfg.ExpiresIn)},
		"CTAX":       {taxAmount.StringFixed(2)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/LinkDeamon.cfm", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build payment link request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.MerchantToken != "" {
		req.Header.Set("Authorization", c.cfg.MerchantToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("PAYMENT", fmt.Sprintf("link request for order %s failed: %v", order.ID, err))
		return nil, &ProviderError{Message: "payment provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Message: "read provider response", Err: err}
	}

	var payload models.PaymentLinkResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProviderError{Message: "malformed provider response", Err: err}
	}

	if payload.HeaderStatus.Code != 200 || payload.Data.URL == "" {
		message := payload.HeaderStatus.Description
		if message == "" {
			message = payload.Message
		}
		if message == "" {
			message = "payment provider rejected the request"
		}
		c.logger.Warn("PAYMENT", fmt.Sprintf("link rejected for order %s: %s", order.ID, message))
		return nil, &ProviderError{Message: message}
	}

	c.logger.LogPayment("LINK", order.ID, fmt.Sprintf("provider code %s", payload.Data.Code))
	return &models.PaymentLink{
		URL:  payload.Data.URL,
		Code: payload.Data.Code,
		Raw:  json.RawMessage(body),
	}, nil
}

// describeItems builds the CDSC line, capped to the provider's 255-char
// field limit.
func describeItems(items []models.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%d @ %s",
			item.TierName, item.Quantity, item.UnitPrice.StringFixed(2)))
	}
	description := "Purchase of the tickets: " + strings.Join(parts, ", ")
	if len(description) > 255 {
		description = description[:255]
	}
	return description
}
