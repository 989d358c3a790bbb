package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfile_CreatesOnceWithRefCode(t *testing.T) {
	f := newFixture(t)

	p1, err := f.profiles.EnsureProfile(f.ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, p1.RefCode, RefCodeLength)
	assert.True(t, isAlphanumeric(p1.RefCode))
	assert.Nil(t, p1.ReferredByCode)

	p2, err := f.profiles.EnsureProfile(f.ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, p1.RefCode, p2.RefCode)
}

func TestEnsureProfile_DistinctCodes(t *testing.T) {
	f := newFixture(t)

	seen := map[string]bool{}
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		p := f.profile(id)
		assert.False(t, seen[p.RefCode], "duplicate ref code %s", p.RefCode)
		seen[p.RefCode] = true
	}
}

func TestEnsureProfile_RejectsBlankUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.profiles.EnsureProfile(f.ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestGetProfile_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.profiles.GetProfile(f.ctx, "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestGetReferralSummary_CountsReferees(t *testing.T) {
	f := newFixture(t)
	referrer := f.profile("referrer")
	f.profile("friend-1")
	f.profile("friend-2")

	for _, id := range []string{"friend-1", "friend-2"} {
		_, err := f.referrals.LinkReferrer(f.ctx, id, referrer.RefCode)
		require.NoError(t, err)
	}

	summary, err := f.profiles.GetReferralSummary(f.ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, referrer.RefCode, summary.RefCode)
	assert.EqualValues(t, 2, summary.ReferralCount)
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"  abcd2345 ": "ABCD2345",
		"AbCd":        "ABCD",
		"ÉTÉ2026":     "ETE2026",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCode(in), "input %q", in)
	}
}
