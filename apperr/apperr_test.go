package apperr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := NewPrecondition("nothing to revert")
	assert.True(t, Is(err, ErrPrecondition))
	assert.False(t, Is(err, ErrInvalidInput))

	wrapped := fmt.Errorf("revert: %w", err)
	assert.True(t, Is(wrapped, ErrPrecondition))
	assert.False(t, Is(fmt.Errorf("plain"), ErrPrecondition))
}

func TestErrorMessage(t *testing.T) {
	err := NewAlreadyExists("category", "Bass")
	assert.Equal(t, `ALREADY_EXISTS: category "Bass" already exists`, err.Error())

	internal := NewInternal("write state", fmt.Errorf("disk full"))
	assert.Equal(t, "INTERNAL: write state: disk full", internal.Error())
}
