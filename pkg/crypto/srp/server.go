package srp

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
)

// ErrInvalidClientKey is returned when the client public value is zero
// mod N.
var ErrInvalidClientKey = errors.New("srp: client public key is zero mod N")

// ErrClientProofMismatch is returned when the client proof M1 does not
// verify, i.e. the client used a different PIN.
var ErrClientProofMismatch = errors.New("srp: client proof mismatch")

// Server holds the accessory side of one SRP exchange. The production
// protocol only ever runs the client; the server role exists for loopback
// accessories in tests and simulators.
type Server struct {
	username string
	salt     []byte

	v    *big.Int // verifier g^x mod N
	b    *big.Int // ephemeral private scalar
	bigB *big.Int

	sessionKey []byte
	clientM1   []byte
	bigA       *big.Int

	rand io.Reader
}

// NewServer creates an SRP server that authenticates the given identity.
func NewServer(username, pin string, salt []byte) *Server {
	inner := sha512.Sum512([]byte(username + ":" + pin))
	x := hashInt(salt, inner[:])

	return &Server{
		username: username,
		salt:     append([]byte(nil), salt...),
		v:        new(big.Int).Exp(groupG, x, groupN),
		rand:     rand.Reader,
	}
}

// SetRandom sets the random source used to sample the private scalar.
// Must be called before PublicKey.
func (s *Server) SetRandom(r io.Reader) {
	s.rand = r
}

// Salt returns the salt sent alongside the public value.
func (s *Server) Salt() []byte {
	return s.salt
}

// PublicKey returns B = (k*v + g^b) mod N as a 384-byte padded integer.
func (s *Server) PublicKey() ([]byte, error) {
	if s.bigB == nil {
		var buf [PrivateKeySize]byte
		if _, err := io.ReadFull(s.rand, buf[:]); err != nil {
			return nil, err
		}
		s.b = new(big.Int).SetBytes(buf[:])

		k := hashInt(pad(groupN), pad(groupG))
		gb := new(big.Int).Exp(groupG, s.b, groupN)
		kv := new(big.Int).Mul(k, s.v)
		s.bigB = kv.Add(kv, gb).Mod(kv, groupN)
	}
	return pad(s.bigB), nil
}

// SetClientPublic derives the server-side session key from the client
// public value A.
func (s *Server) SetClientPublic(clientPublic []byte) error {
	if _, err := s.PublicKey(); err != nil {
		return err
	}

	bigA := new(big.Int).SetBytes(clientPublic)
	if new(big.Int).Mod(bigA, groupN).Sign() == 0 {
		return ErrInvalidClientKey
	}
	s.bigA = bigA

	u := hashInt(pad(bigA), pad(s.bigB))

	// S = (A * v^u)^b mod N
	vu := new(big.Int).Exp(s.v, u, groupN)
	base := new(big.Int).Mul(bigA, vu)
	base.Mod(base, groupN)
	secret := new(big.Int).Exp(base, s.b, groupN)

	key := sha512.Sum512(pad(secret))
	s.sessionKey = key[:]
	return nil
}

// VerifyClientProof checks M1 in constant time. SetClientPublic must have
// succeeded.
func (s *Server) VerifyClientProof(m1 []byte) error {
	if s.sessionKey == nil {
		return ErrNotReady
	}

	hn := sha512.Sum512(pad(groupN))
	hg := sha512.Sum512(groupGBytes)
	for i := range hn {
		hn[i] ^= hg[i]
	}
	hu := sha512.Sum512([]byte(s.username))

	h := sha512.New()
	h.Write(hn[:])
	h.Write(hu[:])
	h.Write(s.salt)
	h.Write(pad(s.bigA))
	h.Write(pad(s.bigB))
	h.Write(s.sessionKey)
	expected := h.Sum(nil)

	if subtle.ConstantTimeCompare(expected, m1) != 1 {
		return ErrClientProofMismatch
	}
	s.clientM1 = append([]byte(nil), m1...)
	return nil
}

// Proof returns M2 = H(PAD(A) || M1 || K). VerifyClientProof must have
// succeeded.
func (s *Server) Proof() ([]byte, error) {
	if s.clientM1 == nil {
		return nil, ErrNotReady
	}

	h := sha512.New()
	h.Write(pad(s.bigA))
	h.Write(s.clientM1)
	h.Write(s.sessionKey)
	return h.Sum(nil), nil
}

// SessionKey returns the 64-byte session key K.
func (s *Server) SessionKey() ([]byte, error) {
	if s.sessionKey == nil {
		return nil, ErrNotReady
	}
	return s.sessionKey, nil
}
