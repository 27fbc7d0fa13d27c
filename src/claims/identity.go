package claims

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// DefaultCredibility is the credibility assigned to an identity on first
// observation.
const DefaultCredibility = 0.5

// IdentityRecord holds the credibility state of one opaque identity token.
// It is created lazily on first contact and mutated only by the Ledger when
// a claim finalizes.
type IdentityRecord struct {
	Token string

	Credibility  float64
	TotalVotes   int
	CorrectVotes int

	CreatedAt    int64
	LastActiveAt int64
}

// NewIdentityRecord ...
func NewIdentityRecord(token string, now int64) *IdentityRecord {
	return &IdentityRecord{
		Token:        token,
		Credibility:  DefaultCredibility,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Accuracy returns the fraction of finalized votes that matched the claim's
// outcome. Identities with no finalized votes report 0.
func (r *IdentityRecord) Accuracy() float64 {
	if r.TotalVotes == 0 {
		return 0
	}
	return float64(r.CorrectVotes) / float64(r.TotalVotes)
}

// Copy ...
func (r *IdentityRecord) Copy() *IdentityRecord {
	cp := *r
	return &cp
}

// Marshal returns the canonical JSON encoding of the IdentityRecord.
func (r *IdentityRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (r *IdentityRecord) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// PendingUpdate is one entry of the deferred credibility ledger. It is
// written when a vote is cast and consumed exactly once when the claim
// finalizes; the Processed flag, not deletion, marks consumption so that
// re-running a finalize is always safe.
type PendingUpdate struct {
	ClaimID       string
	IdentityToken string
	Value         int //the vote value as cast

	Processed bool
}

// Key returns the store key of the update, unique per (claim, identity).
func (u *PendingUpdate) Key() string {
	return fmt.Sprintf("%s|%s", u.ClaimID, u.IdentityToken)
}

// Copy ...
func (u *PendingUpdate) Copy() *PendingUpdate {
	cp := *u
	return &cp
}

// Marshal returns the canonical JSON encoding of the PendingUpdate.
func (u *PendingUpdate) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(u); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (u *PendingUpdate) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(u)
}

// RateRecord tracks an identity's rolling vote counters. Windows are not
// reset by a scheduler; they are reset lazily when a counter is read after
// the window has elapsed.
type RateRecord struct {
	Token string

	HourlyCount int
	DailyCount  int

	HourlyReset int64 //unix seconds of the start of the current hourly window
	DailyReset  int64
	LastVote    int64
}

// NewRateRecord ...
func NewRateRecord(token string, now int64) *RateRecord {
	return &RateRecord{
		Token:       token,
		HourlyReset: now,
		DailyReset:  now,
	}
}

// Copy ...
func (r *RateRecord) Copy() *RateRecord {
	cp := *r
	return &cp
}

// Marshal returns the canonical JSON encoding of the RateRecord.
func (r *RateRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (r *RateRecord) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}
