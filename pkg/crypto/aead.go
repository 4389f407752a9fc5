package crypto

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD sizes.
const (
	// NonceSize is the ChaCha20-Poly1305 nonce length.
	NonceSize = chacha20poly1305.NonceSize

	// TagSize is the Poly1305 authentication tag length, carried on the
	// wire after the ciphertext.
	TagSize = chacha20poly1305.Overhead

	// LabelSize is the length of the ASCII nonce labels used during
	// pairing ("PS-Msg05", "PV-Msg02", ...).
	LabelSize = 8
)

// Errors for AEAD operations.
var (
	ErrInvalidKeySize   = errors.New("crypto: invalid key size, must be 32 bytes")
	ErrInvalidLabelSize = errors.New("crypto: invalid nonce label, must be 8 bytes")
	ErrAuthentication   = errors.New("crypto: message authentication failed")
)

// LabelNonce builds a 12-byte nonce from an 8-byte ASCII label by
// left-padding with four zero bytes. Pairing messages use labels such as
// "PS-Msg05" and "PV-Msg03".
func LabelNonce(label string) ([]byte, error) {
	if len(label) != LabelSize {
		return nil, ErrInvalidLabelSize
	}
	nonce := make([]byte, NonceSize)
	copy(nonce[NonceSize-LabelSize:], label)
	return nonce, nil
}

// CounterNonce builds a 12-byte nonce from a frame counter: the counter is
// written as a 96-bit little-endian value, so the first 8 bytes hold the
// counter and the trailing 4 bytes stay zero.
func CounterNonce(counter uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	return nonce
}

// Seal encrypts plaintext with ChaCha20-Poly1305. The returned slice is
// ciphertext || 16-byte tag.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext || tag produced by Seal. Returns
// ErrAuthentication if the tag does not verify.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// SealLabel seals with a LabelNonce.
func SealLabel(key []byte, label string, plaintext []byte) ([]byte, error) {
	nonce, err := LabelNonce(label)
	if err != nil {
		return nil, err
	}
	return Seal(key, nonce, plaintext)
}

// OpenLabel opens with a LabelNonce.
func OpenLabel(key []byte, label string, ciphertext []byte) ([]byte, error) {
	nonce, err := LabelNonce(label)
	if err != nil {
		return nil, err
	}
	return Open(key, nonce, ciphertext)
}

// Zeroize clears key material in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
