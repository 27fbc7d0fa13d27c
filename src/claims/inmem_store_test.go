package claims

import (
	"reflect"
	"testing"

	cm "github.com/openrumor/veracity/src/common"
)

func TestInmemClaims(t *testing.T) {
	store := NewInmemStore()

	if _, err := store.GetClaim("unknown"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}

	claims := []*Claim{
		NewClaim("c1", "first claim", "salt1", 1000),
		NewClaim("c2", "second claim", "salt2", 2000),
		NewClaim("c3", "third claim", "salt3", 3000),
	}

	for _, claim := range claims {
		if err := store.SetClaim(claim); err != nil {
			t.Fatal(err)
		}
	}

	if count := store.ClaimCount(); count != 3 {
		t.Fatalf("ClaimCount should be 3, not %d", count)
	}

	for _, expected := range claims {
		stored, err := store.GetClaim(expected.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(expected, stored) {
			t.Fatalf("Claim %s should be %#v, not %#v", expected.ID, expected, stored)
		}
	}

	// Claims are listed in creation order.
	all, err := store.Claims()
	if err != nil {
		t.Fatal(err)
	}
	for i, claim := range all {
		if claim.ID != claims[i].ID {
			t.Fatalf("Claims()[%d] should be %s, not %s", i, claims[i].ID, claim.ID)
		}
	}

	// The store hands out copies; mutating one must not touch the record.
	stored, err := store.GetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	stored.TruthScore = 0.9

	again, err := store.GetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if again.TruthScore != NeutralScore {
		t.Fatalf("Stored claim score should be %f, not %f", NeutralScore, again.TruthScore)
	}
}

func TestInmemApplyVote(t *testing.T) {
	store := NewInmemStore()

	claim := NewClaim("c1", "some claim", "salt1", 1000)
	if err := store.SetClaim(claim); err != nil {
		t.Fatal(err)
	}

	updated := claim.Copy()
	updated.ApplyVote(1, 0.5)

	vote := NewVote("hash1", "c1", 1, 0.5, 1001)
	pending := &PendingUpdate{ClaimID: "c1", IdentityToken: "id1", Value: 1}

	if err := store.ApplyVote(updated, vote, pending); err != nil {
		t.Fatal(err)
	}

	storedVote, err := store.GetVote("hash1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vote, storedVote) {
		t.Fatalf("Vote should be %#v, not %#v", vote, storedVote)
	}

	storedClaim, err := store.GetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if storedClaim.VoteCount != 1 {
		t.Fatalf("Claim vote count should be 1, not %d", storedClaim.VoteCount)
	}

	updates, err := store.PendingUpdates("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 {
		t.Fatalf("Should have 1 pending update, not %d", len(updates))
	}

	// Re-applying the same vote hash is rejected and changes nothing.
	if err := store.ApplyVote(updated, vote, pending); !cm.IsStore(err, cm.KeyAlreadyExists) {
		t.Fatalf("Should return a KeyAlreadyExists error, not %v", err)
	}
}

func TestInmemIdentities(t *testing.T) {
	store := NewInmemStore()

	if _, err := store.GetIdentity("unknown"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}

	ident := NewIdentityRecord("id1", 1000)
	if err := store.SetIdentity(ident); err != nil {
		t.Fatal(err)
	}

	stored, err := store.GetIdentity("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ident, stored) {
		t.Fatalf("Identity should be %#v, not %#v", ident, stored)
	}

	// Copies, not references.
	stored.Credibility = 0.9
	again, err := store.GetIdentity("id1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Credibility != DefaultCredibility {
		t.Fatalf("Stored credibility should be %f, not %f", DefaultCredibility, again.Credibility)
	}
}

func TestInmemTouchIdentity(t *testing.T) {
	store := NewInmemStore()

	if err := store.TouchIdentity("unknown", 2000); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}

	ident := NewIdentityRecord("id1", 1000)
	ident.Credibility = 0.65
	if err := store.SetIdentity(ident); err != nil {
		t.Fatal(err)
	}

	if err := store.TouchIdentity("id1", 2000); err != nil {
		t.Fatal(err)
	}

	stored, err := store.GetIdentity("id1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastActiveAt != 2000 {
		t.Fatalf("LastActiveAt should be 2000, not %d", stored.LastActiveAt)
	}
	if stored.Credibility != 0.65 {
		t.Fatalf("Touch should not move credibility; got %f", stored.Credibility)
	}
}

func TestInmemPendingUpdates(t *testing.T) {
	store := NewInmemStore()

	updates, err := store.PendingUpdates("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 0 {
		t.Fatalf("Should have no pending updates, not %d", len(updates))
	}

	u1 := &PendingUpdate{ClaimID: "c1", IdentityToken: "id1", Value: 1}
	u2 := &PendingUpdate{ClaimID: "c1", IdentityToken: "id2", Value: -1}

	if err := store.SetPendingUpdate(u1); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPendingUpdate(u2); err != nil {
		t.Fatal(err)
	}

	// Writing an update for the same (claim, identity) replaces in place.
	u1done := u1.Copy()
	u1done.Processed = true
	if err := store.SetPendingUpdate(u1done); err != nil {
		t.Fatal(err)
	}

	updates, err = store.PendingUpdates("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("Should have 2 pending updates, not %d", len(updates))
	}
	if !updates[0].Processed {
		t.Fatal("First update should be marked processed")
	}
	if updates[1].IdentityToken != "id2" {
		t.Fatalf("Second update should belong to id2, not %s", updates[1].IdentityToken)
	}
}

func TestInmemEdges(t *testing.T) {
	store := NewInmemStore()

	edges := []*Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
		{Source: "d", Target: "b"},
	}
	for _, edge := range edges {
		if err := store.AddEdge(edge); err != nil {
			t.Fatal(err)
		}
	}

	from, err := store.EdgesFrom("a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual([]string{"b", "c"}, from) {
		t.Fatalf("EdgesFrom(a) should be [b c], not %v", from)
	}

	to, err := store.EdgesTo("b")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual([]string{"a", "d"}, to) {
		t.Fatalf("EdgesTo(b) should be [a d], not %v", to)
	}

	removed, err := store.DeleteEdgesFor("b")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("Should have removed 2 edges, not %d", removed)
	}

	remaining, err := store.Edges()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Target != "c" {
		t.Fatalf("Only the a->c edge should remain, not %v", remaining)
	}
}

func TestInmemRateRecords(t *testing.T) {
	store := NewInmemStore()

	if _, err := store.GetRateRecord("unknown"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}

	record := NewRateRecord("id1", 1000)
	record.HourlyCount = 3
	record.DailyCount = 7

	if err := store.SetRateRecord(record); err != nil {
		t.Fatal(err)
	}

	stored, err := store.GetRateRecord("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(record, stored) {
		t.Fatalf("RateRecord should be %#v, not %#v", record, stored)
	}
}
