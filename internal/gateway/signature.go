// Package gateway verifies payment gateway callback signatures. The scheme is
// HMAC-SHA256 over "{orderNumber}|{gatewayPaymentID}", hex encoded, matching
// what the gateway is configured to send.
package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the callback signature. Exposed for tests and for simulating
// gateway callbacks in development.
func (s *Signer) Sign(orderNumber, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderNumber))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a callback signature in constant time.
func (s *Signer) Verify(orderNumber, gatewayPaymentID, signature string) bool {
	want := s.Sign(orderNumber, gatewayPaymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}
