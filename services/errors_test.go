package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("redeem: %w", ErrAlreadyApplied)

	assert.ErrorIs(t, wrapped, ErrAlreadyApplied)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "AlreadyApplied", ReasonCode(wrapped))
	assert.False(t, IsRetryable(wrapped))

	infra := infraError(fmt.Errorf("connection refused"), "failed to lock reward")
	assert.Equal(t, KindInfrastructure, KindOf(infra))
	assert.True(t, IsRetryable(infra))
	assert.Contains(t, infra.Error(), "connection refused")

	assert.Equal(t, KindInfrastructure, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, "", ReasonCode(nil))
	assert.False(t, IsRetryable(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("UNIQUE constraint failed: user_profiles.ref_code")))
	assert.True(t, isUniqueViolation(fmt.Errorf(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`)))
	assert.False(t, isUniqueViolation(fmt.Errorf("deadlock detected")))
	assert.False(t, isUniqueViolation(nil))
}
