package claims

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cm "github.com/openrumor/veracity/src/common"
	"github.com/openrumor/veracity/src/identity"
	"github.com/sirupsen/logrus"
)

// Engine defaults. A claim locks when its score crosses a threshold with at
// least MinVotes votes and MinWeight accumulated credibility weight behind
// it.
const (
	DefaultVerifyThreshold  = 0.75
	DefaultDisputeThreshold = 0.25
	DefaultMinVotes         = 5
	DefaultMinWeight        = 2.0
)

// EngineConfig groups the tunable thresholds of the engine and its guard.
type EngineConfig struct {
	VerifyThreshold  float64
	DisputeThreshold float64
	MinVotes         int
	MinWeight        float64

	MinVoteInterval time.Duration
	HourlyVoteLimit int
	DailyVoteLimit  int
}

// NewDefaultEngineConfig ...
func NewDefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		VerifyThreshold:  DefaultVerifyThreshold,
		DisputeThreshold: DefaultDisputeThreshold,
		MinVotes:         DefaultMinVotes,
		MinWeight:        DefaultMinWeight,
		MinVoteInterval:  DefaultMinVoteInterval,
		HourlyVoteLimit:  DefaultHourlyVoteLimit,
		DailyVoteLimit:   DefaultDailyVoteLimit,
	}
}

// VoteResult is returned to the caller of CastVote.
type VoteResult struct {
	TruthScore float64
	VoteCount  int
	Status     Status
	Locked     bool
}

// ReferenceSet lists a claim's incoming and outgoing references.
type ReferenceSet struct {
	Incoming []string
	Outgoing []string
}

// IdentityStats is the public view of an identity's credibility state.
type IdentityStats struct {
	Credibility  float64
	TotalVotes   int
	CorrectVotes int
	Accuracy     float64
}

// DeleteResult reports the effect of a claim deletion.
type DeleteResult struct {
	EdgesRemoved int
}

// Engine is the truth-score aggregator and claim lifecycle orchestrator. It
// records votes, maintains each claim's running weighted sum, and drives the
// open => verified/disputed/deleted state machine, handing finalized claims
// to the Ledger.
//
// A keyed mutex per claim serializes the read-modify-write of the claim's
// sums and status, so concurrent votes on one claim cannot lose updates, and
// exactly one voter observes the open => locked transition.
type Engine struct {
	store  Store
	guard  *Guard
	ledger *Ledger
	graph  *Graph
	filter ContentFilter
	logger *logrus.Entry

	verifyThreshold  float64
	disputeThreshold float64
	minVotes         int
	minWeight        float64

	claimLocksMtx sync.Mutex
	claimLocks    map[string]*sync.Mutex

	now func() time.Time
}

// NewEngine ...
func NewEngine(store Store, filter ContentFilter, config *EngineConfig, logger *logrus.Entry) *Engine {
	if config == nil {
		config = NewDefaultEngineConfig()
	}
	if filter == nil {
		filter = &NoopFilter{}
	}

	return &Engine{
		store:            store,
		guard:            NewGuard(store, config.MinVoteInterval, config.HourlyVoteLimit, config.DailyVoteLimit, logger),
		ledger:           NewLedger(store, logger),
		graph:            NewGraph(store, logger),
		filter:           filter,
		logger:           logger,
		verifyThreshold:  config.VerifyThreshold,
		disputeThreshold: config.DisputeThreshold,
		minVotes:         config.MinVotes,
		minWeight:        config.MinWeight,
		claimLocks:       make(map[string]*sync.Mutex),
		now:              time.Now,
	}
}

// Guard exposes the engine's abuse guard for advisory checks.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// CreateClaim gates the content through the admissibility filter, then
// creates an Open claim with a neutral score and wires up any references the
// content makes to existing claims.
func (e *Engine) CreateClaim(content string) (*Claim, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("claim content is empty")
	}

	verdict, err := e.filter.Evaluate(content)
	if err != nil {
		return nil, err
	}
	if !verdict.Approved {
		return nil, NewValidationError("claim content rejected: %s", strings.Join(verdict.Reasons, ", "))
	}

	salt, err := identity.NewClaimSalt()
	if err != nil {
		return nil, err
	}

	claim := NewClaim(uuid.New().String(), content, salt, e.now().Unix())

	if err := e.store.SetClaim(claim); err != nil {
		return nil, err
	}

	refs := ParseReferences(content)
	if len(refs) > 0 {
		if _, err := e.graph.AddReferences(claim.ID, refs); err != nil {
			return nil, err
		}
	}

	e.logger.WithFields(logrus.Fields{
		"claim":      claim.ID,
		"references": len(refs),
	}).Debug("Created claim")

	return claim, nil
}

// CastVote records one vote by one identity on one claim. The vote's weight
// is the identity's current credibility passed through the guard's
// dampening, frozen on the vote record; the same value is added to the
// claim's running sum, so the two can never drift apart. If the vote pushes
// the claim past a lock threshold, the claim transitions exactly once and
// its deferred credibility updates are applied.
func (e *Engine) CastVote(claimID string, identityToken string, value int) (*VoteResult, error) {
	if value != 1 && value != -1 {
		return nil, NewValidationError("vote value must be +1 or -1, not %d", value)
	}
	if identityToken == "" {
		return nil, NewValidationError("missing identity token")
	}

	lock := e.claimLock(claimID)
	lock.Lock()
	defer lock.Unlock()

	claim, err := e.store.GetClaim(claimID)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return nil, NewNotFoundError("Claim", claimID)
		}
		return nil, err
	}

	if claim.Status != Open {
		return nil, NewConflictError(ClaimLocked, claimID)
	}

	voteHash := identity.VoteTokenFor(claim.Salt, identityToken)

	// Reject a repeat vote before any rate-limit allowance is consumed; the
	// store's unique-hash constraint remains the backstop.
	if _, err := e.store.GetVote(voteHash); err == nil {
		return nil, NewConflictError(DuplicateVote, claimID)
	} else if !cm.IsStore(err, cm.KeyNotFound) {
		return nil, err
	}

	now := e.now().Unix()

	ident, err := e.store.GetIdentity(identityToken)
	if err != nil {
		if !cm.IsStore(err, cm.KeyNotFound) {
			return nil, err
		}
		ident = NewIdentityRecord(identityToken, now)
		if err := e.store.SetIdentity(ident); err != nil {
			return nil, err
		}
	}

	limit, err := e.guard.CheckRateLimit(identityToken)
	if err != nil {
		return nil, err
	}
	if !limit.Allowed {
		return nil, RateLimitError{
			Reason:          limit.Reason,
			Wait:            limit.Wait,
			RemainingHourly: limit.RemainingHourly,
			RemainingDaily:  limit.RemainingDaily,
		}
	}

	effective := e.guard.EffectiveWeight(ident.Credibility)

	updated := claim.Copy()
	updated.ApplyVote(value, effective)

	locked := false
	outcome := Open
	if updated.VoteCount >= e.minVotes && updated.TotalCredibilityWeight >= e.minWeight {
		if updated.TruthScore >= e.verifyThreshold {
			outcome = Verified
		} else if updated.TruthScore <= e.disputeThreshold {
			outcome = Disputed
		}
	}
	if outcome != Open {
		if err := updated.Transition(outcome, now); err != nil {
			return nil, err
		}
		locked = true
	}

	vote := NewVote(
		voteHash,
		claimID,
		value,
		effective,
		now,
	)

	pending := &PendingUpdate{
		ClaimID:       claimID,
		IdentityToken: identityToken,
		Value:         value,
	}

	if err := e.store.ApplyVote(updated, vote, pending); err != nil {
		if cm.IsStore(err, cm.KeyAlreadyExists) {
			return nil, NewConflictError(DuplicateVote, claimID)
		}
		return nil, err
	}

	// Only LastActiveAt moves here. Writing the whole record back would
	// clobber a credibility update applied by a concurrent finalize of
	// another claim.
	if err := e.store.TouchIdentity(identityToken, now); err != nil {
		return nil, err
	}

	if locked {
		// The lock transition happened under this claim's mutex, so only
		// this voter triggers finalize; the processed flags make a re-run
		// harmless anyway.
		if _, err := e.ledger.Finalize(claimID, outcome); err != nil {
			e.logger.WithError(err).WithField("claim", claimID).Error("Finalize failed")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"claim":  claimID,
		"value":  value,
		"weight": effective,
		"score":  updated.TruthScore,
		"locked": locked,
	}).Debug("Recorded vote")

	return &VoteResult{
		TruthScore: updated.TruthScore,
		VoteCount:  updated.VoteCount,
		Status:     updated.Status,
		Locked:     locked,
	}, nil
}

// GetClaim returns a claim by ID.
func (e *Engine) GetClaim(claimID string) (*Claim, error) {
	claim, err := e.store.GetClaim(claimID)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return nil, NewNotFoundError("Claim", claimID)
		}
		return nil, err
	}
	return claim, nil
}

// DeleteClaim moves a claim to the Deleted state from any prior state,
// bypassing the score thresholds, and prunes every reference edge touching
// it. Neighbouring claims keep their scores; a deleted claim stops
// influencing the graph but does not rewrite history.
func (e *Engine) DeleteClaim(claimID string) (*DeleteResult, error) {
	lock := e.claimLock(claimID)
	lock.Lock()
	defer lock.Unlock()

	claim, err := e.store.GetClaim(claimID)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return nil, NewNotFoundError("Claim", claimID)
		}
		return nil, err
	}

	if err := claim.Transition(Deleted, e.now().Unix()); err != nil {
		return nil, NewConflictError(ClaimLocked, claimID)
	}

	if err := e.store.SetClaim(claim); err != nil {
		return nil, err
	}

	removed, err := e.graph.RemoveAllEdgesFor(claimID)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"claim": claimID,
		"edges": removed,
	}).Debug("Deleted claim")

	return &DeleteResult{EdgesRemoved: removed}, nil
}

// GetReferences returns the claims referencing and referenced by a claim.
func (e *Engine) GetReferences(claimID string) (*ReferenceSet, error) {
	if _, err := e.GetClaim(claimID); err != nil {
		return nil, err
	}

	incoming, outgoing, err := e.graph.References(claimID)
	if err != nil {
		return nil, err
	}

	return &ReferenceSet{
		Incoming: incoming,
		Outgoing: outgoing,
	}, nil
}

// GetIdentityStats returns the credibility state of an identity.
func (e *Engine) GetIdentityStats(identityToken string) (*IdentityStats, error) {
	ident, err := e.store.GetIdentity(identityToken)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return nil, NewNotFoundError("Identity", identityToken)
		}
		return nil, err
	}

	return &IdentityStats{
		Credibility:  ident.Credibility,
		TotalVotes:   ident.TotalVotes,
		CorrectVotes: ident.CorrectVotes,
		Accuracy:     ident.Accuracy(),
	}, nil
}

// Stats returns a map of engine statistics.
func (e *Engine) Stats() map[string]string {
	claims, _ := e.store.Claims()

	open, verified, disputed, deleted := 0, 0, 0, 0
	for _, c := range claims {
		switch c.Status {
		case Open:
			open++
		case Verified:
			verified++
		case Disputed:
			disputed++
		case Deleted:
			deleted++
		}
	}

	edges, _ := e.store.Edges()

	return map[string]string{
		"claims":   strconv.Itoa(len(claims)),
		"open":     strconv.Itoa(open),
		"verified": strconv.Itoa(verified),
		"disputed": strconv.Itoa(disputed),
		"deleted":  strconv.Itoa(deleted),
		"edges":    strconv.Itoa(len(edges)),
	}
}

func (e *Engine) claimLock(claimID string) *sync.Mutex {
	e.claimLocksMtx.Lock()
	defer e.claimLocksMtx.Unlock()

	lock, ok := e.claimLocks[claimID]
	if !ok {
		lock = &sync.Mutex{}
		e.claimLocks[claimID] = lock
	}
	return lock
}
