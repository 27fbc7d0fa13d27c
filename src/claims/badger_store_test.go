package claims

import (
	"path/filepath"
	"reflect"
	"testing"

	cm "github.com/openrumor/veracity/src/common"
)

func initBadgerStore(t *testing.T) *BadgerStore {
	store, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestNewBadgerStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badger")

	store, err := NewBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if store.StorePath() != path {
		t.Fatalf("StorePath should be %s, not %s", path, store.StorePath())
	}
	if store.NeedBootstrap() {
		t.Fatal("Fresh store should not need bootstrap")
	}
}

func TestBadgerClaims(t *testing.T) {
	store := initBadgerStore(t)
	defer store.Close()

	claim := NewClaim("c1", "persisted claim", "salt1", 1000)
	if err := store.SetClaim(claim); err != nil {
		t.Fatal(err)
	}

	// The record is served from the in-memory cache.
	stored, err := store.GetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(claim, stored) {
		t.Fatalf("Claim should be %#v, not %#v", claim, stored)
	}

	// And was written through to the database.
	dbClaim, err := store.dbGetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(claim, dbClaim) {
		t.Fatalf("DB claim should be %#v, not %#v", claim, dbClaim)
	}

	if _, err := store.GetClaim("unknown"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}
}

func TestBadgerApplyVote(t *testing.T) {
	store := initBadgerStore(t)
	defer store.Close()

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

	dbVote, err := store.dbGetVote("hash1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vote, dbVote) {
		t.Fatalf("DB vote should be %#v, not %#v", vote, dbVote)
	}

	dbClaim, err := store.dbGetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if dbClaim.VoteCount != 1 {
		t.Fatalf("DB claim vote count should be 1, not %d", dbClaim.VoteCount)
	}

	if err := store.ApplyVote(updated, vote, pending); !cm.IsStore(err, cm.KeyAlreadyExists) {
		t.Fatalf("Should return a KeyAlreadyExists error, not %v", err)
	}
}

func TestBadgerIdentities(t *testing.T) {
	store := initBadgerStore(t)
	defer store.Close()

	ident := NewIdentityRecord("id1", 1000)
	ident.Credibility = 0.65
	ident.TotalVotes = 4
	ident.CorrectVotes = 3

	if err := store.SetIdentity(ident); err != nil {
		t.Fatal(err)
	}

	dbIdent, err := store.dbGetIdentity("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ident, dbIdent) {
		t.Fatalf("DB identity should be %#v, not %#v", ident, dbIdent)
	}

	if _, err := store.GetIdentity("unknown"); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Should return a KeyNotFound error, not %v", err)
	}
}

func TestBadgerRateRecords(t *testing.T) {
	store := initBadgerStore(t)
	defer store.Close()

	record := NewRateRecord("id1", 1000)
	record.HourlyCount = 2
	record.DailyCount = 9
	record.LastVote = 1500

	if err := store.SetRateRecord(record); err != nil {
		t.Fatal(err)
	}

	dbRecord, err := store.dbGetRateRecord("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(record, dbRecord) {
		t.Fatalf("DB rate record should be %#v, not %#v", record, dbRecord)
	}
}

// Records written before a restart are replayed into the in-memory store when
// the database is reopened.
func TestLoadBadgerStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badger")

	store, err := NewBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}

	claim := NewClaim("c1", "survives restarts", "salt1", 1000)
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

	ident := NewIdentityRecord("id1", 1000)
	if err := store.SetIdentity(ident); err != nil {
		t.Fatal(err)
	}

	if err := store.AddEdge(&Edge{Source: "c1", Target: "c2"}); err != nil {
		t.Fatal(err)
	}

	record := NewRateRecord("id1", 1000)
	record.HourlyCount = 1
	if err := store.SetRateRecord(record); err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if !reloaded.NeedBootstrap() {
		t.Fatal("Reloaded store should need bootstrap")
	}

	storedClaim, err := reloaded.GetClaim("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(updated, storedClaim) {
		t.Fatalf("Reloaded claim should be %#v, not %#v", updated, storedClaim)
	}

	storedVote, err := reloaded.GetVote("hash1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vote, storedVote) {
		t.Fatalf("Reloaded vote should be %#v, not %#v", vote, storedVote)
	}

	storedIdent, err := reloaded.GetIdentity("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ident, storedIdent) {
		t.Fatalf("Reloaded identity should be %#v, not %#v", ident, storedIdent)
	}

	updates, err := reloaded.PendingUpdates("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].IdentityToken != "id1" {
		t.Fatalf("Reloaded pending updates should contain id1, not %v", updates)
	}

	targets, err := reloaded.EdgesFrom("c1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual([]string{"c2"}, targets) {
		t.Fatalf("Reloaded edges from c1 should be [c2], not %v", targets)
	}

	storedRecord, err := reloaded.GetRateRecord("id1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(record, storedRecord) {
		t.Fatalf("Reloaded rate record should be %#v, not %#v", record, storedRecord)
	}
}

func TestLoadOrCreateBadgerStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badger")

	// No database yet: a new one is created.
	store, err := LoadOrCreateBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if store.NeedBootstrap() {
		t.Fatal("Fresh store should not need bootstrap")
	}

	claim := NewClaim("c1", "some claim", "salt1", 1000)
	if err := store.SetClaim(claim); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Second time around the existing database is loaded.
	store, err = LoadOrCreateBadgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if !store.NeedBootstrap() {
		t.Fatal("Reopened store should need bootstrap")
	}
	if _, err := store.GetClaim("c1"); err != nil {
		t.Fatal(err)
	}
}
