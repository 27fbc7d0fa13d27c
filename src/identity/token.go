package identity

import (
	"crypto/rand"

	"github.com/openrumor/veracity/src/common"
	"github.com/openrumor/veracity/src/crypto"
)

// tokenDomain is mixed into every identity token so that tokens cannot
// collide with other SHA256 uses of the same raw material.
const tokenDomain = "veracity/identity"

// saltLength is the number of random bytes in a claim salt.
const saltLength = 32

// TokenFor derives a stable opaque identity token from a raw identity
// signal, typically a browser fingerprint or an externally authenticated
// identifier. The derivation is deterministic and one-way; the raw signal
// cannot be recovered from the token.
func TokenFor(rawSignal string) string {
	return common.EncodeToString(crypto.SHA256([]byte(tokenDomain + "|" + rawSignal)))
}

// VoteTokenFor derives the unique hash that binds an identity to a claim.
// The claim salt is generated independently per claim, so two vote tokens
// from the same identity on different claims cannot be correlated without
// already possessing the identity token.
func VoteTokenFor(claimSalt string, identityToken string) string {
	return common.EncodeToString(
		crypto.SimpleHashFromTwoHashes([]byte(claimSalt), []byte(identityToken)))
}

// NewClaimSalt returns a fresh random salt for a new claim.
func NewClaimSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return common.EncodeToString(salt), nil
}
