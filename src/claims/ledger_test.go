package claims

import (
	"fmt"
	"sync"
	"testing"

	"github.com/openrumor/veracity/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T) (*Ledger, *InmemStore) {
	store := NewInmemStore()
	ledger := NewLedger(store, common.NewTestEntry(t, "ledger"))
	return ledger, store
}

func enqueueVote(t *testing.T, store Store, claimID string, token string, value int) {
	require.NoError(t, store.SetPendingUpdate(&PendingUpdate{
		ClaimID:       claimID,
		IdentityToken: token,
		Value:         value,
	}))
}

func TestFinalizeAlignment(t *testing.T) {
	ledger, store := testLedger(t)

	require.NoError(t, store.SetIdentity(NewIdentityRecord("aligned", 1000)))
	require.NoError(t, store.SetIdentity(NewIdentityRecord("misaligned", 1000)))

	enqueueVote(t, store, "c1", "aligned", 1)
	enqueueVote(t, store, "c1", "misaligned", -1)

	processed, err := ledger.Finalize("c1", Verified)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	// 0.5 + 0.05 for the vote that matched the verified outcome.
	aligned, err := store.GetIdentity("aligned")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, aligned.Credibility, 1e-9)
	assert.Equal(t, 1, aligned.TotalVotes)
	assert.Equal(t, 1, aligned.CorrectVotes)

	// 0.5 - 0.05 for the vote that did not.
	misaligned, err := store.GetIdentity("misaligned")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, misaligned.Credibility, 1e-9)
	assert.Equal(t, 1, misaligned.TotalVotes)
	assert.Equal(t, 0, misaligned.CorrectVotes)
}

func TestFinalizeDisputedOutcome(t *testing.T) {
	ledger, store := testLedger(t)

	require.NoError(t, store.SetIdentity(NewIdentityRecord("id1", 1000)))
	enqueueVote(t, store, "c1", "id1", 1)

	// A verify vote on a claim that finalizes disputed is misaligned.
	_, err := ledger.Finalize("c1", Disputed)
	require.NoError(t, err)

	ident, err := store.GetIdentity("id1")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, ident.Credibility, 1e-9)
}

func TestFinalizeIdempotent(t *testing.T) {
	ledger, store := testLedger(t)

	require.NoError(t, store.SetIdentity(NewIdentityRecord("id1", 1000)))
	enqueueVote(t, store, "c1", "id1", 1)

	processed, err := ledger.Finalize("c1", Verified)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	// Re-running finalize must not double-apply.
	processed, err = ledger.Finalize("c1", Verified)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	ident, err := store.GetIdentity("id1")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, ident.Credibility, 1e-9)
	assert.Equal(t, 1, ident.TotalVotes)
}

func TestFinalizeClipsCredibility(t *testing.T) {
	ledger, store := testLedger(t)

	high := NewIdentityRecord("high", 1000)
	high.Credibility = 0.98
	require.NoError(t, store.SetIdentity(high))

	low := NewIdentityRecord("low", 1000)
	low.Credibility = 0.02
	require.NoError(t, store.SetIdentity(low))

	enqueueVote(t, store, "c1", "high", 1)
	enqueueVote(t, store, "c1", "low", -1)

	_, err := ledger.Finalize("c1", Verified)
	require.NoError(t, err)

	ident, err := store.GetIdentity("high")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ident.Credibility, 1e-9)

	ident, err = store.GetIdentity("low")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ident.Credibility, 1e-9)
}

func TestFinalizeSkipsMissingIdentity(t *testing.T) {
	ledger, store := testLedger(t)

	require.NoError(t, store.SetIdentity(NewIdentityRecord("id1", 1000)))
	enqueueVote(t, store, "c1", "ghost", 1)
	enqueueVote(t, store, "c1", "id1", 1)

	// The missing identity is consumed without aborting the rest.
	processed, err := ledger.Finalize("c1", Verified)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	ident, err := store.GetIdentity("id1")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, ident.Credibility, 1e-9)

	updates, err := store.PendingUpdates("c1")
	require.NoError(t, err)
	for _, u := range updates {
		assert.True(t, u.Processed)
	}
}

// Concurrent finalizes of different claims sharing a voter must not lose any
// of the voter's credibility steps.
func TestConcurrentFinalizeSharedVoter(t *testing.T) {
	ledger, store := testLedger(t)

	require.NoError(t, store.SetIdentity(NewIdentityRecord("shared", 1000)))

	n := 8
	for i := 0; i < n; i++ {
		enqueueVote(t, store, fmt.Sprintf("c%d", i), "shared", 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(claimID string) {
			defer wg.Done()

			processed, err := ledger.Finalize(claimID, Verified)
			if err != nil {
				t.Error(err)
				return
			}
			if processed != 1 {
				t.Errorf("finalize of %s should process 1 update, not %d", claimID, processed)
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	ident, err := store.GetIdentity("shared")
	require.NoError(t, err)
	assert.Equal(t, n, ident.TotalVotes)
	assert.Equal(t, n, ident.CorrectVotes)
	// 0.5 + 8 aligned steps of 0.05.
	assert.InDelta(t, 0.9, ident.Credibility, 1e-9)
}

func TestFinalizeRejectsNonTerminalOutcome(t *testing.T) {
	ledger, _ := testLedger(t)

	_, err := ledger.Finalize("c1", Open)
	assert.True(t, IsValidation(err))

	_, err = ledger.Finalize("c1", Deleted)
	assert.True(t, IsValidation(err))
}
