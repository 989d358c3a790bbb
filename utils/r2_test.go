package utils

import (
	"context"
	"testing"

	"referral-ledger/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewR2Client_RequiresAccountAndBucket(t *testing.T) {
	_, err := NewR2Client(context.Background(), config.R2Config{Bucket: "audit"})
	assert.Error(t, err)

	_, err = NewR2Client(context.Background(), config.R2Config{AccountID: "acc"})
	assert.Error(t, err)
}

func TestNewR2Client_DefaultPublicURL(t *testing.T) {
	c, err := NewR2Client(context.Background(), config.R2Config{
		AccountID:       "acc",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "audit",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com/audit", c.cdnBaseURL)
}
