// Package auth signs and verifies the payloads embedded in approval links,
// so that a confirmation request can only originate from an email the
// service itself sent.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var ErrBadSignature = errors.New("signature mismatch")

// SignPayload returns the URL-safe HMAC-SHA256 signature of payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks signature against payload in constant time.
func VerifyPayload(payload []byte, secret, signature string) error {
	want := SignPayload(payload, secret)
	if !hmac.Equal([]byte(signature), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}
