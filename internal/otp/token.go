package otp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// OfficeToken is the payload of a scannable office sign-in token.
type OfficeToken struct {
	Secret  string `json:"secret"`
	Session string `json:"session"`
}

// ClassToken is the payload of a scannable class attendance token.
type ClassToken struct {
	ClassID string `json:"class_id"`
	Barcode string `json:"barcode"`
	DateKey string `json:"date"`
}

// EncodeToken renders a token payload as a compact base64url string for
// embedding in a QR/barcode. The scanning client sends it back verbatim.
func EncodeToken(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("otp: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeToken parses a scanned token back into the given payload struct.
func DecodeToken(token string, payload any) error {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("otp: decode token: %w", err)
	}
	if err := json.Unmarshal(b, payload); err != nil {
		return fmt.Errorf("otp: decode token: %w", err)
	}
	return nil
}
