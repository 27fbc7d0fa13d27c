package claims

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Vote is an immutable record of a single vote on a claim. The Hash is
// derived from the claim's salt and the voter's identity token, so it is the
// single-vote-per-identity-per-claim enforcement point, and it cannot be
// linked to the same identity's votes on other claims.
//
// EffectiveCredibility is the dampened weight that was actually added to the
// claim's running sum at cast time. It is frozen here rather than re-derived
// later, because the voter's credibility may have changed since.
type Vote struct {
	Hash    string
	ClaimID string
	Value   int //+1 or -1

	EffectiveCredibility float64

	CreatedAt int64
}

// NewVote ...
func NewVote(hash string, claimID string, value int, effectiveCredibility float64, createdAt int64) *Vote {
	return &Vote{
		Hash:                 hash,
		ClaimID:              claimID,
		Value:                value,
		EffectiveCredibility: effectiveCredibility,
		CreatedAt:            createdAt,
	}
}

// Marshal returns the canonical JSON encoding of the Vote.
func (v *Vote) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (v *Vote) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(v)
}
