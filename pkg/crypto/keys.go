package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// Key sizes.
const (
	// Ed25519KeySize is the raw Ed25519 public key length.
	Ed25519KeySize = ed25519.PublicKeySize

	// X25519KeySize is the Curve25519 scalar and point length.
	X25519KeySize = curve25519.ScalarSize
)

// Errors for key operations.
var (
	ErrInvalidPublicKey = errors.New("crypto: invalid public key length")
	ErrInvalidSignature = errors.New("crypto: signature verification failed")
)

// GenerateEd25519 creates a long-term identity keypair.
func GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SignEd25519 signs message with the long-term private key.
func SignEd25519(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// VerifyEd25519 verifies an Ed25519 signature over message.
func VerifyEd25519(pub []byte, message, sig []byte) error {
	if len(pub) != Ed25519KeySize {
		return ErrInvalidPublicKey
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateX25519 creates an ephemeral Curve25519 keypair from r
// (crypto/rand when nil).
func GenerateX25519(r io.Reader) (priv, pub []byte, err error) {
	if r == nil {
		r = rand.Reader
	}
	priv = make([]byte, X25519KeySize)
	if _, err = io.ReadFull(r, priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// SharedSecretX25519 computes the X25519 shared secret between a private
// scalar and a peer public point.
func SharedSecretX25519(priv, peerPub []byte) ([]byte, error) {
	if len(peerPub) != X25519KeySize {
		return nil, ErrInvalidPublicKey
	}
	return curve25519.X25519(priv, peerPub)
}
