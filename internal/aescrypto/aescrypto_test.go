package aescrypto_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/go-i2p/tunneld/internal/aescrypto"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestECBRoundTrip(t *testing.T) {
	t.Parallel()

	key := randBytes(t, aescrypto.KeySize)
	block, err := aescrypto.NewBlock(key)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	plain := randBytes(t, aescrypto.BlockSize)
	cipherText := make([]byte, aescrypto.BlockSize)
	if err := aescrypto.ECBEncryptBlock(block, cipherText, plain); err != nil {
		t.Fatalf("ECBEncryptBlock: %v", err)
	}

	recovered := make([]byte, aescrypto.BlockSize)
	if err := aescrypto.ECBDecryptBlock(block, recovered, cipherText); err != nil {
		t.Fatalf("ECBDecryptBlock: %v", err)
	}

	if !bytes.Equal(plain, recovered) {
		t.Fatalf("round trip mismatch: got %x want %x", recovered, plain)
	}
}

func TestCBCRoundTrip(t *testing.T) {
	t.Parallel()

	key := randBytes(t, aescrypto.KeySize)
	block, err := aescrypto.NewBlock(key)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	iv := randBytes(t, aescrypto.BlockSize)
	plain := randBytes(t, aescrypto.BlockSize*63)

	ct := make([]byte, len(plain))
	if err := aescrypto.CBCEncrypt(block, append([]byte{}, iv...), ct, plain); err != nil {
		t.Fatalf("CBCEncrypt: %v", err)
	}

	pt := make([]byte, len(plain))
	if err := aescrypto.CBCDecrypt(block, append([]byte{}, iv...), pt, ct); err != nil {
		t.Fatalf("CBCDecrypt: %v", err)
	}

	if !bytes.Equal(plain, pt) {
		t.Fatalf("CBC round trip mismatch")
	}
}

func TestCBCInvalidLength(t *testing.T) {
	t.Parallel()

	key := randBytes(t, aescrypto.KeySize)
	block, err := aescrypto.NewBlock(key)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	iv := randBytes(t, aescrypto.BlockSize)
	plain := randBytes(t, 17)
	dst := make([]byte, len(plain))

	if err := aescrypto.CBCEncrypt(block, iv, dst, plain); err != aescrypto.ErrInvalidLength {
		t.Fatalf("CBCEncrypt error = %v, want %v", err, aescrypto.ErrInvalidLength)
	}
}

func TestNewBlockInvalidKeySize(t *testing.T) {
	t.Parallel()

	if _, err := aescrypto.NewBlock(make([]byte, 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}
