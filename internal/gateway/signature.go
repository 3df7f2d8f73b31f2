package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrBadSignature = errors.New("invalid ipn signature")

// VerifySignature checks an IPN body against its x-nowpayments-sig header:
// the hex HMAC-SHA512 of the body re-encoded with sorted keys. An empty
// secret disables the check.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := Sign(body, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature VerifySignature expects.
func Sign(body []byte, secret string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ipn body: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	sorted, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(sorted)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
