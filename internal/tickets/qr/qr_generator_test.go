package qr_test

import (
	"bytes"
	"testing"
	"time"

	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/tickets/qr"

	"github.com/stretchr/testify/assert"
)

func paidOrder() models.Order {
	return models.Order{
		ID:        "order-1",
		Status:    models.OrderPaid,
		PaymentID: "TX-1",
		PaidAt:    time.Now(),
	}
}

func TestGenerateConfirmationQR(t *testing.T) {
	gen := qr.NewGenerator("test-secret")

	attendee := &models.Attendee{Name: "Ana", Email: "ana@example.com"}
	png, err := gen.GenerateConfirmationQR(paidOrder(), attendee)
	assert.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected a PNG image")
}

func TestGenerateConfirmationQRWithoutAttendee(t *testing.T) {
	gen := qr.NewGenerator("test-secret")

	png, err := gen.GenerateConfirmationQR(paidOrder(), nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestGenerateConfirmationQRRefusesUnpaidOrders(t *testing.T) {
	gen := qr.NewGenerator("test-secret")

	for _, status := range []models.OrderStatus{
		models.OrderPending,
		models.OrderAwaitingPayment,
		models.OrderCancelled,
		models.OrderExpired,
	} {
		order := paidOrder()
		order.Status = status
		_, err := gen.GenerateConfirmationQR(order, nil)
		assert.Error(t, err, "expected status %s to be refused", status)
	}
}

func TestGeneratorNormalizesSecretLength(t *testing.T) {
	// Any secret length works; it is hashed to a valid AES key
	for _, secret := range []string{"", "x", "a-much-longer-secret-than-thirty-two-bytes-in-total"} {
		gen := qr.NewGenerator(secret)
		_, err := gen.GenerateConfirmationQR(paidOrder(), nil)
		assert.NoError(t, err)
	}
}
