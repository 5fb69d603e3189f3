package datagram

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// Ed25519Signer is the default, production signing implementation: the
// network's modern EdDSA identity type needs no pre-hash quirk, unlike the
// legacy DSA-SHA1 path.
type Ed25519Signer struct {
	Private ed25519.PrivateKey
}

// NewEd25519Signer generates a fresh Ed25519 keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("datagram: generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{Private: priv}, nil
}

func (s *Ed25519Signer) SigningKeyType() SigningKeyType { return SigningKeyEd25519 }
func (s *Ed25519Signer) IdentitySize() int              { return ed25519.PublicKeySize }
func (s *Ed25519Signer) SignatureSize() int             { return ed25519.SignatureSize }

func (s *Ed25519Signer) Identity() []byte {
	pub, ok := s.Private.Public().(ed25519.PublicKey)
	if !ok {
		return nil
	}
	return pub
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	if len(s.Private) != ed25519.PrivateKeySize {
		return nil, errors.New("datagram: ed25519 private key not initialized")
	}
	return ed25519.Sign(s.Private, data), nil
}

// Ed25519Verifier verifies signatures produced by Ed25519Signer.
type Ed25519Verifier struct{}

func (Ed25519Verifier) SigningKeyType() SigningKeyType { return SigningKeyEd25519 }
func (Ed25519Verifier) IdentitySize() int              { return ed25519.PublicKeySize }
func (Ed25519Verifier) SignatureSize() int             { return ed25519.SignatureSize }

func (Ed25519Verifier) Verify(identity, data, sig []byte) bool {
	if len(identity) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(identity), data, sig)
}
