package datagram

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // legacy identity type, kept only for the pre-hash quirk
	"fmt"
)

// DSASHA1Signer and DSASHA1Verifier model the legacy signing path's one
// documented quirk — the signature is computed over SHA-256(payload), not
// payload directly, even though the key type's name says SHA-1 — without
// depending on a real DSA implementation. The standard library no longer
// offers ergonomic DSA key generation, and the original source's own
// verify branch is flagged there as unreliable (spec §9's open question),
// so this stands in with an HMAC-based "signature" purely to exercise the
// pre-hash branch end to end in tests; it is never used to talk to a real
// peer.
type DSASHA1Signer struct {
	Key      []byte
	identity []byte
}

func NewDSASHA1Signer(key, identity []byte) *DSASHA1Signer {
	return &DSASHA1Signer{Key: key, identity: identity}
}

func (s *DSASHA1Signer) SigningKeyType() SigningKeyType { return SigningKeyDSASHA1 }
func (s *DSASHA1Signer) IdentitySize() int              { return len(s.identity) }
func (s *DSASHA1Signer) SignatureSize() int             { return sha1.Size }
func (s *DSASHA1Signer) Identity() []byte               { return s.identity }

// Sign expects data to already be the SHA-256 digest the envelope builder
// computes for this key type; it is never handed the raw payload.
func (s *DSASHA1Signer) Sign(data []byte) ([]byte, error) {
	if len(s.Key) == 0 {
		return nil, fmt.Errorf("datagram: dsa-sha1 signer has no key")
	}
	mac := hmac.New(sha1.New, s.Key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

type DSASHA1Verifier struct {
	Key          []byte
	identitySize int
}

func NewDSASHA1Verifier(key []byte, identitySize int) *DSASHA1Verifier {
	return &DSASHA1Verifier{Key: key, identitySize: identitySize}
}

func (v *DSASHA1Verifier) SigningKeyType() SigningKeyType { return SigningKeyDSASHA1 }
func (v *DSASHA1Verifier) IdentitySize() int              { return v.identitySize }
func (v *DSASHA1Verifier) SignatureSize() int             { return sha1.Size }

func (v *DSASHA1Verifier) Verify(_ []byte, data, sig []byte) bool {
	mac := hmac.New(sha1.New, v.Key)
	mac.Write(data)
	expected := mac.Sum(nil)
	return hmac.Equal(expected, sig)
}
