// Package srp implements the client side of SRP-6a (RFC 5054) over the
// 3072-bit group with SHA-512, as used by HAP pair-setup.
//
// Protocol flow:
//
//	Client (controller)                 Server (accessory)
//	-------------------                 ------------------
//	NewClient(username, pin)
//	A = PublicKey()        ----A---->
//	                       <-(s, B)--   salt and server public value
//	SetServerPublic(s, B)
//	M1 = Proof()           ---M1---->   verifies M1
//	                       <---M2----
//	VerifyServerProof(M2)
//	K = SessionKey()                    K matches on both sides
package srp

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
)

// PrivateKeySize is the number of random bytes sampled for the client's
// ephemeral private scalar.
const PrivateKeySize = 32

// SessionKeySize is the length of the derived session key K (SHA-512).
const SessionKeySize = sha512.Size

// Errors.
var (
	ErrInvalidServerKey = errors.New("srp: server public key is zero mod N")
	ErrProofMismatch    = errors.New("srp: server proof mismatch")
	ErrNotReady         = errors.New("srp: server challenge not yet processed")
)

// Client holds the client side of one SRP exchange. A Client is single-use:
// it binds one ephemeral scalar to one server challenge.
type Client struct {
	username string
	pin      string

	a    *big.Int // ephemeral private scalar
	bigA *big.Int

	salt       []byte
	sessionKey []byte // K
	proof      []byte // M1

	rand io.Reader
}

// NewClient creates an SRP client for the given identity. HAP pair-setup
// uses username "Pair-Setup" and the user-supplied PIN as password.
func NewClient(username, pin string) *Client {
	return &Client{
		username: username,
		pin:      pin,
		rand:     rand.Reader,
	}
}

// SetRandom sets the random source used to sample the private scalar.
// Must be called before PublicKey. Used for fixed-vector tests.
func (c *Client) SetRandom(r io.Reader) {
	c.rand = r
}

// PublicKey returns A = g^a mod N serialised as a 384-byte padded
// big-endian integer. The private scalar is sampled on first call.
func (c *Client) PublicKey() ([]byte, error) {
	if c.bigA == nil {
		var buf [PrivateKeySize]byte
		if _, err := io.ReadFull(c.rand, buf[:]); err != nil {
			return nil, err
		}
		c.a = new(big.Int).SetBytes(buf[:])
		c.bigA = new(big.Int).Exp(groupG, c.a, groupN)
	}
	return pad(c.bigA), nil
}

// SetServerPublic processes the server's salt and public value B, deriving
// the session key K and the client proof M1.
func (c *Client) SetServerPublic(salt, serverPublic []byte) error {
	if _, err := c.PublicKey(); err != nil {
		return err
	}

	bigB := new(big.Int).SetBytes(serverPublic)
	if new(big.Int).Mod(bigB, groupN).Sign() == 0 {
		return ErrInvalidServerKey
	}

	padA := pad(c.bigA)
	padB := pad(bigB)

	// u = H(PAD(A) || PAD(B))
	u := hashInt(padA, padB)

	// x = H(salt || H(username ":" pin))
	inner := sha512.Sum512([]byte(c.username + ":" + c.pin))
	x := hashInt(salt, inner[:])

	// k = H(N || PAD(g))
	k := hashInt(pad(groupN), pad(groupG))

	// S = ((B - k*g^x) mod N) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(groupG, x, groupN)
	kgx := new(big.Int).Mul(k, gx)
	kgx.Mod(kgx, groupN)

	base := new(big.Int).Sub(bigB, kgx)
	base.Mod(base, groupN)
	if base.Sign() < 0 {
		base.Add(base, groupN)
	}

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)

	s := new(big.Int).Exp(base, exp, groupN)

	// K = H(PAD(S))
	sessionKey := sha512.Sum512(pad(s))
	c.sessionKey = sessionKey[:]

	// M1 = H((H(N) xor H(g)) || H(username) || salt || PAD(A) || PAD(B) || K)
	hn := sha512.Sum512(pad(groupN))
	hg := sha512.Sum512(groupGBytes)
	for i := range hn {
		hn[i] ^= hg[i]
	}
	hu := sha512.Sum512([]byte(c.username))

	h := sha512.New()
	h.Write(hn[:])
	h.Write(hu[:])
	h.Write(salt)
	h.Write(padA)
	h.Write(padB)
	h.Write(c.sessionKey)
	c.proof = h.Sum(nil)

	c.salt = append([]byte(nil), salt...)
	return nil
}

// Proof returns the client proof M1. SetServerPublic must have succeeded.
func (c *Client) Proof() ([]byte, error) {
	if c.proof == nil {
		return nil, ErrNotReady
	}
	return c.proof, nil
}

// SessionKey returns the 64-byte session key K.
func (c *Client) SessionKey() ([]byte, error) {
	if c.sessionKey == nil {
		return nil, ErrNotReady
	}
	return c.sessionKey, nil
}

// VerifyServerProof checks the server proof M2 = H(PAD(A) || M1 || K) in
// constant time.
func (c *Client) VerifyServerProof(m2 []byte) error {
	if c.proof == nil {
		return ErrNotReady
	}

	h := sha512.New()
	h.Write(pad(c.bigA))
	h.Write(c.proof)
	h.Write(c.sessionKey)
	expected := h.Sum(nil)

	if subtle.ConstantTimeCompare(expected, m2) != 1 {
		return ErrProofMismatch
	}
	return nil
}

// hashInt hashes the concatenation of the given byte slices with SHA-512
// and interprets the digest as a big-endian integer.
func hashInt(parts ...[]byte) *big.Int {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}
