// Package aescrypto provides the AES-256 block and CBC primitives the
// tunnel crypto layer is built from. It is a thin, explicit wrapper around
// crypto/aes and crypto/cipher: there is no hand-rolled round function and
// no AES-NI assembly path here, because the standard library's cipher.Block
// already operates at the single-block granularity the double-IV
// construction needs, and the network does not care which code path
// produced a ciphertext as long as it is byte-exact.
package aescrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// KeySize is the length in bytes of a layer or IV key (AES-256).
const KeySize = 32

// BlockSize is the AES block size in bytes.
const BlockSize = aes.BlockSize

// ErrInvalidLength is returned by CBC operations when the supplied byte
// range is not a multiple of BlockSize.
var ErrInvalidLength = errors.New("aescrypto: length not a multiple of block size")

// NewBlock builds a cipher.Block for a 32-byte AES-256 key. The key schedule
// (encrypt and, lazily via cipher.Block, decrypt) is expanded once here;
// expanding it is the only failure mode, and it only fails on a malformed
// key length, which callers should treat as a programming error.
func NewBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aescrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aescrypto: new cipher: %w", err)
	}
	return block, nil
}

// ECBEncryptBlock encrypts exactly one 16-byte block. dst and src may
// overlap completely (dst == src) but must not otherwise partially overlap.
func ECBEncryptBlock(block cipher.Block, dst, src []byte) error {
	if len(src) != BlockSize || len(dst) != BlockSize {
		return fmt.Errorf("aescrypto: ECB block must be %d bytes", BlockSize)
	}
	block.Encrypt(dst, src)
	return nil
}

// ECBDecryptBlock decrypts exactly one 16-byte block.
func ECBDecryptBlock(block cipher.Block, dst, src []byte) error {
	if len(src) != BlockSize || len(dst) != BlockSize {
		return fmt.Errorf("aescrypto: ECB block must be %d bytes", BlockSize)
	}
	block.Decrypt(dst, src)
	return nil
}

// CBCEncrypt encrypts src into dst using CBC chaining seeded with iv. len(src)
// must be a multiple of BlockSize. iv is consumed by value; the caller's
// buffer is not mutated.
func CBCEncrypt(block cipher.Block, iv, dst, src []byte) error {
	if len(src)%BlockSize != 0 {
		return ErrInvalidLength
	}
	if len(dst) != len(src) {
		return fmt.Errorf("aescrypto: dst/src length mismatch")
	}
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(dst, src)
	return nil
}

// CBCDecrypt decrypts src into dst using CBC chaining seeded with iv. len(src)
// must be a multiple of BlockSize.
func CBCDecrypt(block cipher.Block, iv, dst, src []byte) error {
	if len(src)%BlockSize != 0 {
		return ErrInvalidLength
	}
	if len(dst) != len(src) {
		return fmt.Errorf("aescrypto: dst/src length mismatch")
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(dst, src)
	return nil
}
