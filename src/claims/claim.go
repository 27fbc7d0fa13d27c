package claims

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Status is the lifecycle state of a Claim. A Claim starts Open and moves
// exactly once to a terminal state. Verified and Disputed are reached through
// the score thresholds; Deleted is reached through an explicit delete and
// bypasses the thresholds.
type Status uint32

const (
	// Open ...
	Open Status = iota
	// Verified ...
	Verified
	// Disputed ...
	Disputed
	// Deleted ...
	Deleted
)

// String ...
func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Verified:
		return "verified"
	case Disputed:
		return "disputed"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("Status(%d)", s)
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Terminal states accept no transition other than a delete of a
// verified or disputed claim.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case Open:
		return next == Verified || next == Disputed || next == Deleted
	case Verified, Disputed:
		return next == Deleted
	}
	return false
}

// NeutralScore is the truth score of a claim with no recorded weight.
const NeutralScore = 0.5

// Claim is a submitted statement with an evolving truth score. The running
// sums are updated on every vote while the claim is Open, and frozen the
// moment the claim reaches a terminal state.
type Claim struct {
	ID      string
	Content string
	Salt    string

	Status     Status
	TruthScore float64

	VoteCount              int
	TotalCredibilityWeight float64
	WeightedVoteSum        float64

	CreatedAt int64
	LockedAt  int64 //unix seconds, 0 while the claim is Open
}

// NewClaim instantiates an Open Claim with a neutral truth score.
func NewClaim(id string, content string, salt string, createdAt int64) *Claim {
	return &Claim{
		ID:         id,
		Content:    content,
		Salt:       salt,
		Status:     Open,
		TruthScore: NeutralScore,
		CreatedAt:  createdAt,
	}
}

// ApplyVote folds a vote with the given effective weight into the running
// sums and recomputes the truth score. The caller is responsible for checking
// that the claim is still Open.
func (c *Claim) ApplyVote(value int, weight float64) {
	c.WeightedVoteSum += float64(value) * weight
	c.TotalCredibilityWeight += weight
	c.VoteCount++
	c.TruthScore = c.computeScore()
}

// computeScore maps the weighted sum onto [0,1]. With no weight the score is
// neutral.
func (c *Claim) computeScore() float64 {
	if c.TotalCredibilityWeight <= 0 {
		return NeutralScore
	}
	return (c.WeightedVoteSum/c.TotalCredibilityWeight + 1) / 2
}

// Transition moves the claim to the next status, recording LockedAt on the
// first transition out of Open. Illegal transitions return an error and leave
// the claim untouched.
func (c *Claim) Transition(next Status, at int64) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("illegal claim transition %s => %s", c.Status, next)
	}
	if c.LockedAt == 0 {
		c.LockedAt = at
	}
	c.Status = next
	return nil
}

// Copy returns a shallow copy of the claim. Votes are applied to a copy so
// that a failed store write does not leave a mutated claim behind.
func (c *Claim) Copy() *Claim {
	cp := *c
	return &cp
}

// Marshal returns the canonical JSON encoding of the Claim.
func (c *Claim) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(c); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (c *Claim) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(c)
}
