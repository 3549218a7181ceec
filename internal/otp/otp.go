package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Alphabet selects the character set for generated codes.
type Alphabet int

const (
	Numeric Alphabet = iota
	Alphanumeric
)

const alnumChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var errBadLength = errors.New("otp: length must be positive")

// GenerateCode produces a random code of the given length. Numeric codes
// draw each digit from a uniform secure random integer, so they carry no
// modulo bias. Alphanumeric codes map random bytes through modulo 62; the
// resulting bias is small and accepted for short-lived, human-entered
// codes rather than corrected.
func GenerateCode(length int, alphabet Alphabet) (string, error) {
	if length <= 0 {
		return "", errBadLength
	}
	if alphabet == Numeric {
		buf := make([]byte, length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(10))
			if err != nil {
				return "", fmt.Errorf("otp: read random: %w", err)
			}
			buf[i] = byte('0' + n.Int64())
		}
		return string(buf), nil
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}
	for i, b := range raw {
		raw[i] = alnumChars[int(b)%len(alnumChars)]
	}
	return string(raw), nil
}

// Bundle is the one-time output of Issue. Only Salt, Hash and ExpiresAt are
// meant to be persisted; Plaintext is delivered once and then discarded.
type Bundle struct {
	Plaintext string
	Salt      string
	Hash      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Reason classifies a verification outcome.
type Reason string

const (
	ReasonOK      Reason = "ok"
	ReasonExpired Reason = "expired"
	ReasonInvalid Reason = "invalid"
)

// Issue generates a numeric code of the given length together with a
// 16-byte random salt and an HMAC-SHA256 hash keyed by that salt. The
// caller owns persistence of the salt/hash pair.
func Issue(length int, ttl time.Duration) (Bundle, error) {
	code, err := GenerateCode(length, Numeric)
	if err != nil {
		return Bundle{}, err
	}
	saltRaw := make([]byte, 16)
	if _, err := rand.Read(saltRaw); err != nil {
		return Bundle{}, fmt.Errorf("otp: read salt: %w", err)
	}
	salt := hex.EncodeToString(saltRaw)
	now := time.Now().UTC()
	return Bundle{
		Plaintext: code,
		Salt:      salt,
		Hash:      hashCode(code, salt),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Verify checks a candidate against a stored salt/hash pair. Expiry is
// checked first so expired input is never hashed. The hash comparison is
// length-checked and constant-time; unequal lengths are invalid without
// reaching the comparator.
func Verify(candidate, storedHash, storedSalt string, expiresAt time.Time) Reason {
	if time.Now().UTC().After(expiresAt) {
		return ReasonExpired
	}
	computed := hashCode(candidate, storedSalt)
	if len(computed) != len(storedHash) {
		return ReasonInvalid
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return ReasonInvalid
	}
	return ReasonOK
}

func hashCode(code, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatCode renders a 6-digit code for display as XXX-XXX. Other lengths
// are returned unchanged.
func FormatCode(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[:3] + "-" + code[3:]
}
