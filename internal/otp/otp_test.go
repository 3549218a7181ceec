package otp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCodeNumeric(t *testing.T) {
	code, err := GenerateCode(6, Numeric)
	assert.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "digit expected, got %q", r)
	}
}

func TestGenerateCodeAlphanumeric(t *testing.T) {
	code, err := GenerateCode(20, Alphanumeric)
	assert.NoError(t, err)
	assert.Len(t, code, 20)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(alnumChars, r), "unexpected char %q", r)
	}
}

func TestGenerateCodeBadLength(t *testing.T) {
	_, err := GenerateCode(0, Numeric)
	assert.Error(t, err)
	_, err = GenerateCode(-3, Alphanumeric)
	assert.Error(t, err)
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(8, Numeric)
		assert.NoError(t, err)
		seen[code] = true
	}
	// 20 draws of an 8-digit code colliding down to one value means the
	// randomness source is broken.
	assert.Greater(t, len(seen), 1)
}

func TestIssueAndVerify(t *testing.T) {
	b, err := Issue(6, time.Minute)
	assert.NoError(t, err)
	assert.Len(t, b.Plaintext, 6)
	assert.Len(t, b.Salt, 32) // 16 bytes hex
	assert.Len(t, b.Hash, 64) // sha256 hex
	assert.True(t, b.ExpiresAt.After(b.CreatedAt))

	assert.Equal(t, ReasonOK, Verify(b.Plaintext, b.Hash, b.Salt, b.ExpiresAt))
}

func TestVerifyInvalid(t *testing.T) {
	b, err := Issue(6, time.Minute)
	assert.NoError(t, err)

	wrong := "000000"
	if wrong == b.Plaintext {
		wrong = "000001"
	}
	assert.Equal(t, ReasonInvalid, Verify(wrong, b.Hash, b.Salt, b.ExpiresAt))
	assert.Equal(t, ReasonInvalid, Verify("", b.Hash, b.Salt, b.ExpiresAt))
	assert.Equal(t, ReasonInvalid, Verify(b.Plaintext, "deadbeef", b.Salt, b.ExpiresAt))
}

func TestVerifyExpired(t *testing.T) {
	b, err := Issue(6, time.Minute)
	assert.NoError(t, err)

	past := time.Now().UTC().Add(-time.Second)
	// Expired wins even when the candidate is correct.
	assert.Equal(t, ReasonExpired, Verify(b.Plaintext, b.Hash, b.Salt, past))
	assert.Equal(t, ReasonExpired, Verify("wrong", b.Hash, b.Salt, past))
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "482-913", FormatCode("482913"))
	assert.Equal(t, "12345", FormatCode("12345"))
	assert.Equal(t, "", FormatCode(""))
}

func TestTokenRoundTrip(t *testing.T) {
	in := OfficeToken{Secret: "s3cret", Session: "tok"}
	enc, err := EncodeToken(in)
	assert.NoError(t, err)
	assert.NotContains(t, enc, "=")

	var out OfficeToken
	assert.NoError(t, DecodeToken(enc, &out))
	assert.Equal(t, in, out)

	var ct ClassToken
	assert.Error(t, DecodeToken("%%%not-base64%%%", &ct))
}
