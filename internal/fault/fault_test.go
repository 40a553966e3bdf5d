package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, DatabaseError, CodeOf(errors.New("disk on fire")))
	assert.Equal(t, UsedSecret, CodeOf(New(UsedSecret, "secret already used")))

	wrapped := fmt.Errorf("register: %w", New(UsernameExists, "taken"))
	assert.Equal(t, UsernameExists, CodeOf(wrapped))
	assert.True(t, Is(wrapped, UsernameExists))
	assert.False(t, Is(nil, UsernameExists))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("constraint failed")
	err := Wrap(DatabaseError, "commit registration", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DATABASE_ERROR: commit registration: constraint failed", err.Error())
	assert.Equal(t, "INVALID_REQUEST: username is required", New(InvalidRequest, "username is required").Error())
	assert.Equal(t, "NOT_FOUND: entity 7", Newf(NotFound, "entity %d", 7).Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, DatabaseError.Retryable())
	assert.True(t, EntityMintFailed.Retryable())
	assert.False(t, UsedSecret.Retryable())
	assert.False(t, InvalidRequest.Retryable())
}
