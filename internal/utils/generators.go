package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateConfirmationRef builds a short human-readable reference for a paid
// order, used in the confirmation QR payload.
func GenerateConfirmationRef() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("conf_%d_%06d", timestamp, randomNum.Int64())
}
