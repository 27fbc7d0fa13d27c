package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenForDeterministic(t *testing.T) {
	t1 := TokenFor("fingerprint-abc")
	t2 := TokenFor("fingerprint-abc")
	assert.Equal(t, t1, t2)

	t3 := TokenFor("fingerprint-xyz")
	assert.NotEqual(t, t1, t3)
}

func TestTokenForNotReversible(t *testing.T) {
	token := TokenFor("fingerprint-abc")
	assert.NotContains(t, token, "fingerprint")
	assert.Len(t, token, 2+64) // 0X prefix + 32 bytes hex
}

func TestVoteTokenPerClaim(t *testing.T) {
	saltA, err := NewClaimSalt()
	require.NoError(t, err)
	saltB, err := NewClaimSalt()
	require.NoError(t, err)
	require.NotEqual(t, saltA, saltB)

	token := TokenFor("fingerprint-abc")

	// Same (claim, identity) pair always yields the same hash.
	assert.Equal(t, VoteTokenFor(saltA, token), VoteTokenFor(saltA, token))

	// Different claims yield unrelated hashes for the same identity.
	assert.NotEqual(t, VoteTokenFor(saltA, token), VoteTokenFor(saltB, token))

	// Different identities yield different hashes on the same claim.
	other := TokenFor("fingerprint-xyz")
	assert.NotEqual(t, VoteTokenFor(saltA, token), VoteTokenFor(saltA, other))
}
