package claims

import (
	"sort"
	"sync"
	"time"

	cm "github.com/openrumor/veracity/src/common"
	gocache "github.com/patrickmn/go-cache"
)

// rateRecordTTL is how long an idle rate-limit record is kept around. It
// comfortably exceeds the daily window, after which the record carries no
// information that a fresh one wouldn't.
const rateRecordTTL = 48 * time.Hour

// InmemStore implements the Store interface with in-memory maps. Claims,
// votes, identities, pending updates and edges are authoritative records and
// are never evicted; rate-limit records are transient and live in an
// expiring cache.
type InmemStore struct {
	sync.RWMutex

	claims     map[string]*Claim
	votes      map[string]*Vote
	identities map[string]*IdentityRecord
	pending    map[string][]*PendingUpdate //claim ID => updates in insertion order
	edges      map[string]*Edge            //source|target => edge

	rateRecords *gocache.Cache
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		claims:      make(map[string]*Claim),
		votes:       make(map[string]*Vote),
		identities:  make(map[string]*IdentityRecord),
		pending:     make(map[string][]*PendingUpdate),
		edges:       make(map[string]*Edge),
		rateRecords: gocache.New(rateRecordTTL, time.Hour),
	}
}

// GetClaim implements the Store interface.
func (s *InmemStore) GetClaim(id string) (*Claim, error) {
	s.RLock()
	defer s.RUnlock()

	res, ok := s.claims[id]
	if !ok {
		return nil, cm.NewStoreErr("Claim", cm.KeyNotFound, id)
	}
	return res.Copy(), nil
}

// SetClaim implements the Store interface.
func (s *InmemStore) SetClaim(claim *Claim) error {
	s.Lock()
	defer s.Unlock()

	s.claims[claim.ID] = claim.Copy()
	return nil
}

// Claims implements the Store interface.
func (s *InmemStore) Claims() ([]*Claim, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Claim, 0, len(s.claims))
	for _, c := range s.claims {
		res = append(res, c.Copy())
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt < res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})

	return res, nil
}

// ClaimCount implements the Store interface.
func (s *InmemStore) ClaimCount() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.claims)
}

// GetVote implements the Store interface.
func (s *InmemStore) GetVote(hash string) (*Vote, error) {
	s.RLock()
	defer s.RUnlock()

	res, ok := s.votes[hash]
	if !ok {
		return nil, cm.NewStoreErr("Vote", cm.KeyNotFound, hash)
	}
	return res, nil
}

// ApplyVote implements the Store interface. The uniqueness check and the
// three writes happen under one lock acquisition, so a concurrent duplicate
// vote cannot slip between check and insert.
func (s *InmemStore) ApplyVote(claim *Claim, vote *Vote, pending *PendingUpdate) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.votes[vote.Hash]; ok {
		return cm.NewStoreErr("Vote", cm.KeyAlreadyExists, vote.Hash)
	}

	s.votes[vote.Hash] = vote
	s.claims[claim.ID] = claim.Copy()
	s.setPendingUpdateLocked(pending)

	return nil
}

// GetIdentity implements the Store interface.
func (s *InmemStore) GetIdentity(token string) (*IdentityRecord, error) {
	s.RLock()
	defer s.RUnlock()

	res, ok := s.identities[token]
	if !ok {
		return nil, cm.NewStoreErr("Identity", cm.KeyNotFound, token)
	}
	return res.Copy(), nil
}

// SetIdentity implements the Store interface.
func (s *InmemStore) SetIdentity(identity *IdentityRecord) error {
	s.Lock()
	defer s.Unlock()

	s.identities[identity.Token] = identity.Copy()
	return nil
}

// TouchIdentity implements the Store interface. It mutates LastActiveAt in
// place under the store lock, so it cannot clobber a concurrent credibility
// write the way a full record write-back would.
func (s *InmemStore) TouchIdentity(token string, at int64) error {
	s.Lock()
	defer s.Unlock()

	res, ok := s.identities[token]
	if !ok {
		return cm.NewStoreErr("Identity", cm.KeyNotFound, token)
	}
	res.LastActiveAt = at
	return nil
}

// PendingUpdates implements the Store interface.
func (s *InmemStore) PendingUpdates(claimID string) ([]*PendingUpdate, error) {
	s.RLock()
	defer s.RUnlock()

	updates := s.pending[claimID]
	res := make([]*PendingUpdate, len(updates))
	for i, u := range updates {
		res[i] = u.Copy()
	}
	return res, nil
}

// SetPendingUpdate implements the Store interface.
func (s *InmemStore) SetPendingUpdate(update *PendingUpdate) error {
	s.Lock()
	defer s.Unlock()

	s.setPendingUpdateLocked(update)
	return nil
}

func (s *InmemStore) setPendingUpdateLocked(update *PendingUpdate) {
	updates := s.pending[update.ClaimID]
	for i, u := range updates {
		if u.IdentityToken == update.IdentityToken {
			updates[i] = update.Copy()
			return
		}
	}
	s.pending[update.ClaimID] = append(updates, update.Copy())
}

// AddEdge implements the Store interface.
func (s *InmemStore) AddEdge(edge *Edge) error {
	s.Lock()
	defer s.Unlock()

	s.edges[edge.Key()] = edge
	return nil
}

// DeleteEdgesFor implements the Store interface.
func (s *InmemStore) DeleteEdgesFor(claimID string) (int, error) {
	s.Lock()
	defer s.Unlock()

	removed := 0
	for key, edge := range s.edges {
		if edge.Source == claimID || edge.Target == claimID {
			delete(s.edges, key)
			removed++
		}
	}
	return removed, nil
}

// Edges implements the Store interface.
func (s *InmemStore) Edges() ([]*Edge, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		res = append(res, e)
	}
	return res, nil
}

// EdgesFrom implements the Store interface.
func (s *InmemStore) EdgesFrom(source string) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	res := []string{}
	for _, e := range s.edges {
		if e.Source == source {
			res = append(res, e.Target)
		}
	}
	sort.Strings(res)
	return res, nil
}

// EdgesTo implements the Store interface.
func (s *InmemStore) EdgesTo(target string) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	res := []string{}
	for _, e := range s.edges {
		if e.Target == target {
			res = append(res, e.Source)
		}
	}
	sort.Strings(res)
	return res, nil
}

// GetRateRecord implements the Store interface.
func (s *InmemStore) GetRateRecord(token string) (*RateRecord, error) {
	res, ok := s.rateRecords.Get(token)
	if !ok {
		return nil, cm.NewStoreErr("RateRecord", cm.KeyNotFound, token)
	}
	return res.(*RateRecord).Copy(), nil
}

// SetRateRecord implements the Store interface.
func (s *InmemStore) SetRateRecord(record *RateRecord) error {
	s.rateRecords.Set(record.Token, record.Copy(), gocache.DefaultExpiration)
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
