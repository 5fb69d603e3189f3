// Package tunnelcrypto implements the per-hop double-IV AES construction
// that a tunnel record passes through at every hop. It is the sole
// consumer of internal/aescrypto above the block-and-CBC level.
package tunnelcrypto

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/go-i2p/tunneld/internal/aescrypto"
)

// RegionSize is the size in bytes of the (IV ∥ payload) region a Layer
// transforms in one call.
const RegionSize = aescrypto.BlockSize + PayloadSize

// PayloadSize is the size of the CBC-encrypted payload portion of the
// region, excluding the 16-byte IV.
const PayloadSize = 1008

// ErrInvalidRegionSize is returned when Encrypt/Decrypt is called with a
// buffer that isn't exactly RegionSize bytes.
var ErrInvalidRegionSize = errors.New("tunnelcrypto: region must be 1024 bytes")

// Layer holds the two expanded AES-256 key schedules a tunnel hop uses:
// one for the IV double-encryption, one for the CBC payload layer. A Layer
// is immutable after construction and safe for concurrent use by multiple
// goroutines, since cipher.Block round keys are read-only after expansion.
type Layer struct {
	ivCipher    cipher.Block
	layerCipher cipher.Block
}

// NewLayer expands both 32-byte keys into a Layer. layerKey encrypts the
// payload under CBC; ivKey double-encrypts the IV under ECB.
func NewLayer(layerKey, ivKey []byte) (*Layer, error) {
	layerCipher, err := aescrypto.NewBlock(layerKey)
	if err != nil {
		return nil, fmt.Errorf("tunnelcrypto: layer key: %w", err)
	}
	ivCipher, err := aescrypto.NewBlock(ivKey)
	if err != nil {
		return nil, fmt.Errorf("tunnelcrypto: iv key: %w", err)
	}
	return &Layer{ivCipher: ivCipher, layerCipher: layerCipher}, nil
}

// Encrypt transforms region in place: region[:16] is the IV, region[16:] is
// the 1008-byte payload. On return region[:16] holds the doubly-encrypted
// outgoing IV and region[16:] holds the CBC-encrypted payload.
//
// The chaining IV used for the payload's CBC pass is the IV after its FIRST
// ECB encryption, not the doubly-encrypted IV that ends up on the wire —
// getting this ordering backwards silently produces a tunnel that looks
// fine locally and is undecodable by the next hop.
func (l *Layer) Encrypt(region []byte) error {
	if len(region) != RegionSize {
		return ErrInvalidRegionSize
	}
	iv := region[:aescrypto.BlockSize]
	payload := region[aescrypto.BlockSize:]

	onceEncrypted := make([]byte, aescrypto.BlockSize)
	if err := aescrypto.ECBEncryptBlock(l.ivCipher, onceEncrypted, iv); err != nil {
		return err
	}

	chainIV := append([]byte{}, onceEncrypted...)
	if err := aescrypto.CBCEncrypt(l.layerCipher, chainIV, payload, payload); err != nil {
		return err
	}

	return aescrypto.ECBEncryptBlock(l.ivCipher, iv, onceEncrypted)
}

// Decrypt is the mirror of Encrypt: the first ECB decrypt of the wire IV
// yields the chaining IV for the payload's CBC decrypt, and the second
// recovers the original IV, which is written back to region[:16] so that
// Decrypt exactly undoes Encrypt.
func (l *Layer) Decrypt(region []byte) error {
	if len(region) != RegionSize {
		return ErrInvalidRegionSize
	}
	iv := region[:aescrypto.BlockSize]
	payload := region[aescrypto.BlockSize:]

	onceDecrypted := make([]byte, aescrypto.BlockSize)
	if err := aescrypto.ECBDecryptBlock(l.ivCipher, onceDecrypted, iv); err != nil {
		return err
	}

	chainIV := append([]byte{}, onceDecrypted...)
	if err := aescrypto.CBCDecrypt(l.layerCipher, chainIV, payload, payload); err != nil {
		return err
	}

	return aescrypto.ECBDecryptBlock(l.ivCipher, iv, onceDecrypted)
}
