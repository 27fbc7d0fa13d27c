package claims

import (
	"sync"

	cm "github.com/openrumor/veracity/src/common"
	"github.com/sirupsen/logrus"
)

// CredibilityStep is the amount by which one aligned or misaligned vote
// moves an identity's credibility.
const CredibilityStep = 0.05

// Ledger owns identity credibility. Credibility moves only here, and only
// when a claim finalizes: each pending update left by a vote is compared
// against the claim's terminal outcome and applied exactly once.
//
// A keyed mutex per identity serializes the read-modify-write of the
// identity record, so two finalizes sharing a voter cannot lose an update.
type Ledger struct {
	store  Store
	logger *logrus.Entry

	identityLocksMtx sync.Mutex
	identityLocks    map[string]*sync.Mutex
}

// NewLedger ...
func NewLedger(store Store, logger *logrus.Entry) *Ledger {
	return &Ledger{
		store:         store,
		logger:        logger,
		identityLocks: make(map[string]*sync.Mutex),
	}
}

// Finalize applies the deferred credibility updates for a claim that reached
// the given terminal outcome. It is idempotent: every update carries its own
// Processed flag, so re-invoking Finalize, including after a partial
// failure, never double-applies. A failure on one update is logged and does
// not abort the remaining updates.
func (l *Ledger) Finalize(claimID string, outcome Status) (int, error) {
	if outcome != Verified && outcome != Disputed {
		return 0, NewValidationError("cannot finalize claim %s with outcome %s", claimID, outcome)
	}

	expected := 1
	if outcome == Disputed {
		expected = -1
	}

	updates, err := l.store.PendingUpdates(claimID)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, update := range updates {
		if update.Processed {
			continue
		}

		applied, err := l.applyUpdate(update, expected)
		if err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"claim":    claimID,
				"identity": update.IdentityToken,
			}).Error("Skipping credibility update")
			continue
		}

		if applied {
			processed++
		}
	}

	l.logger.WithFields(logrus.Fields{
		"claim":     claimID,
		"outcome":   outcome.String(),
		"processed": processed,
	}).Debug("Finalized claim")

	return processed, nil
}

func (l *Ledger) applyUpdate(update *PendingUpdate, expected int) (bool, error) {
	lock := l.identityLock(update.IdentityToken)
	lock.Lock()
	defer lock.Unlock()

	identity, err := l.store.GetIdentity(update.IdentityToken)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			//the vote outlived its identity record; consume the update so a
			//re-run does not retry it forever
			update.Processed = true
			return false, l.store.SetPendingUpdate(update)
		}
		return false, err
	}

	alignment := -1
	if update.Value == expected {
		alignment = 1
	}

	identity.Credibility = clip(identity.Credibility+CredibilityStep*float64(alignment), 0, 1)
	identity.TotalVotes++
	if alignment == 1 {
		identity.CorrectVotes++
	}

	if err := l.store.SetIdentity(identity); err != nil {
		return false, err
	}

	update.Processed = true
	return true, l.store.SetPendingUpdate(update)
}

func (l *Ledger) identityLock(token string) *sync.Mutex {
	l.identityLocksMtx.Lock()
	defer l.identityLocksMtx.Unlock()

	lock, ok := l.identityLocks[token]
	if !ok {
		lock = &sync.Mutex{}
		l.identityLocks[token] = lock
	}
	return lock
}
