package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/utils"

	"github.com/skip2/go-qrcode"
)

// ConfirmationPayload is what gets encrypted into the QR shown at check-in.
// Ref identifies this particular issuance of the QR.
type ConfirmationPayload struct {
	Ref           string    `json:"ref"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	PaidAt        time.Time `json:"paid_at"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// GenerateConfirmationQR encodes an encrypted confirmation payload for a
// paid order as a PNG QR code.
func (g *Generator) GenerateConfirmationQR(order models.Order, attendee *models.Attendee) ([]byte, error) {
	if order.Status != models.OrderPaid {
		return nil, errors.New("confirmation QR is only issued for paid orders")
	}

	payload := ConfirmationPayload{
		Ref:       utils.GenerateConfirmationRef(),
		OrderID:   order.ID,
		PaymentID: order.PaymentID,
		PaidAt:    order.PaidAt,
	}
	if attendee != nil {
		payload.AttendeeName = attendee.Name
		payload.AttendeeEmail = attendee.Email
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
