package claims

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	cm "github.com/openrumor/veracity/src/common"
)

const (
	claimPrefix    = "claim"
	votePrefix     = "vote"
	identityPrefix = "identity"
	pendingPrefix  = "pending"
	edgePrefix     = "edge"
	ratePrefix     = "rate"
)

// BadgerStore is a write-through Store: every record lives in the wrapped
// InmemStore for fast reads and is mirrored to a Badger database for
// durability. Reads fall back to the database when the in-memory copy is
// missing.
type BadgerStore struct {
	inmemStore    *InmemStore
	db            *badger.DB
	path          string
	needBootstrap bool
}

// NewBadgerStore creates a brand new Store with a new database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	return store, nil
}

// LoadBadgerStore creates a Store from an existing database, replaying every
// persisted record into the in-memory store.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:    NewInmemStore(),
		db:            handle,
		path:          path,
		needBootstrap: true,
	}

	if err := store.dbBootstrap(); err != nil {
		store.db.Close()
		return nil, err
	}

	return store, nil
}

// LoadOrCreateBadgerStore tries to load an existing database and falls back
// to creating a new one.
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path)

	if err != nil {
		store, err = NewBadgerStore(path)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

//==============================================================================
//Keys

func claimKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", claimPrefix, id))
}

func voteKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", votePrefix, hash))
}

func identityKey(token string) []byte {
	return []byte(fmt.Sprintf("%s_%s", identityPrefix, token))
}

func pendingKey(update *PendingUpdate) []byte {
	return []byte(fmt.Sprintf("%s_%s", pendingPrefix, update.Key()))
}

func edgeKey(edge *Edge) []byte {
	return []byte(fmt.Sprintf("%s_%s", edgePrefix, edge.Key()))
}

func rateKey(token string) []byte {
	return []byte(fmt.Sprintf("%s_%s", ratePrefix, token))
}

//==============================================================================
//Implement the Store interface

// NeedBootstrap returns true if the store was loaded from an existing
// database.
func (s *BadgerStore) NeedBootstrap() bool {
	return s.needBootstrap
}

// GetClaim implements the Store interface.
func (s *BadgerStore) GetClaim(id string) (*Claim, error) {
	claim, err := s.inmemStore.GetClaim(id)
	if err != nil {
		claim, err = s.dbGetClaim(id)
	}
	return claim, mapError(err, "Claim", string(claimKey(id)))
}

// SetClaim implements the Store interface.
func (s *BadgerStore) SetClaim(claim *Claim) error {
	if err := s.inmemStore.SetClaim(claim); err != nil {
		return err
	}
	return s.dbSetClaim(claim)
}

// Claims implements the Store interface.
func (s *BadgerStore) Claims() ([]*Claim, error) {
	return s.inmemStore.Claims()
}

// ClaimCount implements the Store interface.
func (s *BadgerStore) ClaimCount() int {
	return s.inmemStore.ClaimCount()
}

// GetVote implements the Store interface.
func (s *BadgerStore) GetVote(hash string) (*Vote, error) {
	vote, err := s.inmemStore.GetVote(hash)
	if err != nil {
		vote, err = s.dbGetVote(hash)
	}
	return vote, mapError(err, "Vote", string(voteKey(hash)))
}

// ApplyVote implements the Store interface. The in-memory store enforces the
// vote-hash unique constraint first; the database writes then happen in one
// Badger transaction so a crash cannot leave a partial vote behind.
func (s *BadgerStore) ApplyVote(claim *Claim, vote *Vote, pending *PendingUpdate) error {
	if err := s.inmemStore.ApplyVote(claim, vote, pending); err != nil {
		return err
	}
	return s.dbApplyVote(claim, vote, pending)
}

// GetIdentity implements the Store interface.
func (s *BadgerStore) GetIdentity(token string) (*IdentityRecord, error) {
	identity, err := s.inmemStore.GetIdentity(token)
	if err != nil {
		identity, err = s.dbGetIdentity(token)
	}
	return identity, mapError(err, "Identity", string(identityKey(token)))
}

// SetIdentity implements the Store interface.
func (s *BadgerStore) SetIdentity(identity *IdentityRecord) error {
	if err := s.inmemStore.SetIdentity(identity); err != nil {
		return err
	}
	return s.dbSetIdentity(identity)
}

// TouchIdentity implements the Store interface.
func (s *BadgerStore) TouchIdentity(token string, at int64) error {
	if err := s.inmemStore.TouchIdentity(token, at); err != nil {
		return err
	}

	identity, err := s.inmemStore.GetIdentity(token)
	if err != nil {
		return err
	}
	return s.dbSetIdentity(identity)
}

// PendingUpdates implements the Store interface.
func (s *BadgerStore) PendingUpdates(claimID string) ([]*PendingUpdate, error) {
	return s.inmemStore.PendingUpdates(claimID)
}

// SetPendingUpdate implements the Store interface.
func (s *BadgerStore) SetPendingUpdate(update *PendingUpdate) error {
	if err := s.inmemStore.SetPendingUpdate(update); err != nil {
		return err
	}
	return s.dbSetPendingUpdate(update)
}

// AddEdge implements the Store interface.
func (s *BadgerStore) AddEdge(edge *Edge) error {
	if err := s.inmemStore.AddEdge(edge); err != nil {
		return err
	}
	return s.dbSetEdge(edge)
}

// DeleteEdgesFor implements the Store interface.
func (s *BadgerStore) DeleteEdgesFor(claimID string) (int, error) {
	edges, err := s.inmemStore.Edges()
	if err != nil {
		return 0, err
	}

	touching := []*Edge{}
	for _, e := range edges {
		if e.Source == claimID || e.Target == claimID {
			touching = append(touching, e)
		}
	}

	removed, err := s.inmemStore.DeleteEdgesFor(claimID)
	if err != nil {
		return 0, err
	}

	return removed, s.dbDeleteEdges(touching)
}

// Edges implements the Store interface.
func (s *BadgerStore) Edges() ([]*Edge, error) {
	return s.inmemStore.Edges()
}

// EdgesFrom implements the Store interface.
func (s *BadgerStore) EdgesFrom(source string) ([]string, error) {
	return s.inmemStore.EdgesFrom(source)
}

// EdgesTo implements the Store interface.
func (s *BadgerStore) EdgesTo(target string) ([]string, error) {
	return s.inmemStore.EdgesTo(target)
}

// GetRateRecord implements the Store interface.
func (s *BadgerStore) GetRateRecord(token string) (*RateRecord, error) {
	record, err := s.inmemStore.GetRateRecord(token)
	if err != nil {
		record, err = s.dbGetRateRecord(token)
	}
	return record, mapError(err, "RateRecord", string(rateKey(token)))
}

// SetRateRecord implements the Store interface.
func (s *BadgerStore) SetRateRecord(record *RateRecord) error {
	if err := s.inmemStore.SetRateRecord(record); err != nil {
		return err
	}
	return s.dbSetRateRecord(record)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGet(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (s *BadgerStore) dbSet(key []byte, val []byte) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(key, val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetClaim(id string) (*Claim, error) {
	claimBytes, err := s.dbGet(claimKey(id))
	if err != nil {
		return nil, err
	}

	claim := new(Claim)
	if err := claim.Unmarshal(claimBytes); err != nil {
		return nil, err
	}

	return claim, nil
}

func (s *BadgerStore) dbSetClaim(claim *Claim) error {
	val, err := claim.Marshal()
	if err != nil {
		return err
	}
	//insert [claim_id] => [claim bytes]
	return s.dbSet(claimKey(claim.ID), val)
}

func (s *BadgerStore) dbGetVote(hash string) (*Vote, error) {
	voteBytes, err := s.dbGet(voteKey(hash))
	if err != nil {
		return nil, err
	}

	vote := new(Vote)
	if err := vote.Unmarshal(voteBytes); err != nil {
		return nil, err
	}

	return vote, nil
}

func (s *BadgerStore) dbApplyVote(claim *Claim, vote *Vote, pending *PendingUpdate) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//check the vote-hash unique constraint inside the transaction
	vk := voteKey(vote.Hash)
	_, err := tx.Get(vk)
	if err == nil {
		return cm.NewStoreErr("Vote", cm.KeyAlreadyExists, vote.Hash)
	}
	if !isDBKeyNotFound(err) {
		return err
	}

	voteBytes, err := vote.Marshal()
	if err != nil {
		return err
	}
	if err := tx.Set(vk, voteBytes); err != nil {
		return err
	}

	claimBytes, err := claim.Marshal()
	if err != nil {
		return err
	}
	if err := tx.Set(claimKey(claim.ID), claimBytes); err != nil {
		return err
	}

	pendingBytes, err := pending.Marshal()
	if err != nil {
		return err
	}
	if err := tx.Set(pendingKey(pending), pendingBytes); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetIdentity(token string) (*IdentityRecord, error) {
	identityBytes, err := s.dbGet(identityKey(token))
	if err != nil {
		return nil, err
	}

	identity := new(IdentityRecord)
	if err := identity.Unmarshal(identityBytes); err != nil {
		return nil, err
	}

	return identity, nil
}

func (s *BadgerStore) dbSetIdentity(identity *IdentityRecord) error {
	val, err := identity.Marshal()
	if err != nil {
		return err
	}
	return s.dbSet(identityKey(identity.Token), val)
}

func (s *BadgerStore) dbSetPendingUpdate(update *PendingUpdate) error {
	val, err := update.Marshal()
	if err != nil {
		return err
	}
	return s.dbSet(pendingKey(update), val)
}

func (s *BadgerStore) dbSetEdge(edge *Edge) error {
	//insert [edge_source|target] => [1]; the key carries the whole record
	return s.dbSet(edgeKey(edge), []byte{1})
}

func (s *BadgerStore) dbDeleteEdges(edges []*Edge) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for _, e := range edges {
		if err := tx.Delete(edgeKey(e)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetRateRecord(token string) (*RateRecord, error) {
	recordBytes, err := s.dbGet(rateKey(token))
	if err != nil {
		return nil, err
	}

	record := new(RateRecord)
	if err := record.Unmarshal(recordBytes); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *BadgerStore) dbSetRateRecord(record *RateRecord) error {
	val, err := record.Marshal()
	if err != nil {
		return err
	}
	return s.dbSet(rateKey(record.Token), val)
}

// dbBootstrap replays every persisted record into the in-memory store.
func (s *BadgerStore) dbBootstrap() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			switch {
			case hasPrefix(key, claimPrefix):
				claim := new(Claim)
				if err := claim.Unmarshal(val); err != nil {
					return err
				}
				if err := s.inmemStore.SetClaim(claim); err != nil {
					return err
				}
			case hasPrefix(key, votePrefix):
				vote := new(Vote)
				if err := vote.Unmarshal(val); err != nil {
					return err
				}
				s.inmemStore.Lock()
				s.inmemStore.votes[vote.Hash] = vote
				s.inmemStore.Unlock()
			case hasPrefix(key, identityPrefix):
				identity := new(IdentityRecord)
				if err := identity.Unmarshal(val); err != nil {
					return err
				}
				if err := s.inmemStore.SetIdentity(identity); err != nil {
					return err
				}
			case hasPrefix(key, pendingPrefix):
				update := new(PendingUpdate)
				if err := update.Unmarshal(val); err != nil {
					return err
				}
				if err := s.inmemStore.SetPendingUpdate(update); err != nil {
					return err
				}
			case hasPrefix(key, edgePrefix):
				source, target, ok := splitEdgeKey(key)
				if !ok {
					continue
				}
				if err := s.inmemStore.AddEdge(&Edge{Source: source, Target: target}); err != nil {
					return err
				}
			case hasPrefix(key, ratePrefix):
				record := new(RateRecord)
				if err := record.Unmarshal(val); err != nil {
					return err
				}
				if err := s.inmemStore.SetRateRecord(record); err != nil {
					return err
				}
			}
		}

		return nil
	})
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func hasPrefix(key string, prefix string) bool {
	return len(key) > len(prefix)+1 && key[:len(prefix)+1] == prefix+"_"
}

func splitEdgeKey(key string) (source string, target string, ok bool) {
	body := key[len(edgePrefix)+1:]
	for i := 0; i < len(body); i++ {
		if body[i] == '|' {
			return body[:i], body[i+1:], true
		}
	}
	return "", "", false
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name string, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
