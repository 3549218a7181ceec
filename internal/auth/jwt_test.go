package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"presence/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("stu1", model.RoleStudent, "presence", "test-key", time.Minute, time.Hour)
	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, "test-key", "presence")
	assert.NoError(t, err)
	assert.Equal(t, "stu1", claims.Subject)
	assert.Equal(t, model.RoleStudent, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("stu1", model.RoleStudent, "presence", "test-key", time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-key", "presence")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("stu1", model.RoleStaff, "someone-else", "test-key", time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "presence")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("stu1", model.RoleStudent, "presence", "test-key", -time.Minute, time.Hour)
	assert.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "presence")
	assert.Error(t, err)
}
