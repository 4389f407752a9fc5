package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reekystive/cuepad/pkg/credentials"
	"github.com/reekystive/cuepad/pkg/crypto"
	"github.com/reekystive/cuepad/pkg/crypto/srp"
	"github.com/reekystive/cuepad/pkg/frame"
	"github.com/reekystive/cuepad/pkg/tlv8"
)

// SetupState is the pair-setup state machine position.
type SetupState int

const (
	SetupStateIdle SetupState = iota
	SetupStateM1Sent
	SetupStateM3Sent
	SetupStateM5Sent
	SetupStateDone
	SetupStateFailed
)

// String returns the state name.
func (s SetupState) String() string {
	switch s {
	case SetupStateIdle:
		return "Idle"
	case SetupStateM1Sent:
		return "M1Sent"
	case SetupStateM3Sent:
		return "M3Sent"
	case SetupStateM5Sent:
		return "M5Sent"
	case SetupStateDone:
		return "Done"
	case SetupStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Setup drives the controller side of pair-setup.
//
// Usage:
//
//	setup, _ := pairing.NewSetup(pin)
//	msg, _ := setup.Start()                  // send as PS_Start
//	// for each TLV8 reply body:
//	msg, creds, err := setup.Handle(body)    // send msg while creds == nil
//	// creds != nil: exchange complete
//
// A Setup is single-use. Any failure poisons the machine; restart the
// exchange with a fresh Setup.
type Setup struct {
	mu    sync.Mutex
	state SetupState

	pin      string
	clientID string

	srp        *srp.Client
	sessionKey []byte // SRP K
	encryptKey []byte // HKDF(Pair-Setup-Encrypt)

	ltpk ed25519.PublicKey
	ltsk ed25519.PrivateKey

	rand io.Reader
}

// NewSetup creates a pair-setup driver for the given 4-digit PIN. A fresh
// pairing identifier is generated for the controller.
func NewSetup(pin string) (*Setup, error) {
	return NewSetupWithIdentity(pin, uuid.NewString())
}

// NewSetupWithIdentity creates a pair-setup driver with a caller-chosen
// controller pairing identifier.
func NewSetupWithIdentity(pin, clientID string) (*Setup, error) {
	if len(pin) != 4 {
		return nil, ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return nil, ErrInvalidPIN
		}
	}

	return &Setup{
		state:    SetupStateIdle,
		pin:      pin,
		clientID: clientID,
		srp:      srp.NewClient(SRPUsername, pin),
		rand:     rand.Reader,
	}, nil
}

// SetRandom sets the random source used for the SRP private scalar and the
// generated Ed25519 identity. Must be called before Start.
func (s *Setup) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
	s.srp.SetRandom(r)
}

// State returns the current machine state.
func (s *Setup) State() SetupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientID returns the controller pairing identifier used in M5.
func (s *Setup) ClientID() string {
	return s.clientID
}

// Start produces M1.
func (s *Setup) Start() (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupStateIdle {
		return nil, ErrInvalidState
	}

	body := tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagMethod, MethodPairSetup).
		AppendByte(tlv8.TagState, seqM1))

	s.state = SetupStateM1Sent
	return &Message{FrameType: frame.TypePSStart, Body: body}, nil
}

// Handle processes a TLV8 reply body and returns either the next outbound
// message or, on M6, the completed credentials. The record's Identifier is
// left empty for the caller to bind to the device.
func (s *Setup) Handle(body []byte) (*Message, *credentials.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SetupStateM1Sent, SetupStateM3Sent, SetupStateM5Sent:
	default:
		return nil, nil, ErrInvalidState
	}

	dict := tlv8.Decode(body)

	if err := rejectionError(dict); err != nil {
		s.state = SetupStateFailed
		return nil, nil, err
	}

	seq, ok := dict.Byte(tlv8.TagState)
	if !ok {
		s.state = SetupStateFailed
		return nil, nil, ErrMissingTag
	}

	switch s.state {
	case SetupStateM1Sent:
		if seq != seqM2 {
			s.state = SetupStateFailed
			return nil, nil, ErrUnexpectedSeqNo
		}
		msg, err := s.handleM2(dict)
		if err != nil {
			s.state = SetupStateFailed
			return nil, nil, err
		}
		s.state = SetupStateM3Sent
		return msg, nil, nil

	case SetupStateM3Sent:
		if seq != seqM4 {
			s.state = SetupStateFailed
			return nil, nil, ErrUnexpectedSeqNo
		}
		msg, err := s.handleM4(dict)
		if err != nil {
			s.state = SetupStateFailed
			return nil, nil, err
		}
		s.state = SetupStateM5Sent
		return msg, nil, nil

	case SetupStateM5Sent:
		if seq != seqM6 {
			s.state = SetupStateFailed
			return nil, nil, ErrUnexpectedSeqNo
		}
		creds, err := s.handleM6(dict)
		if err != nil {
			s.state = SetupStateFailed
			return nil, nil, err
		}
		s.state = SetupStateDone
		return nil, creds, nil

	default:
		return nil, nil, ErrInvalidState
	}
}

// handleM2 consumes the salt and server public key, producing M3.
func (s *Setup) handleM2(dict tlv8.Dict) (*Message, error) {
	salt, ok := dict.Get(tlv8.TagSalt)
	if !ok {
		return nil, ErrMissingTag
	}
	serverPublic, ok := dict.Get(tlv8.TagPublicKey)
	if !ok {
		return nil, ErrMissingTag
	}

	if err := s.srp.SetServerPublic(salt, serverPublic); err != nil {
		return nil, err
	}

	clientPublic, err := s.srp.PublicKey()
	if err != nil {
		return nil, err
	}
	proof, err := s.srp.Proof()
	if err != nil {
		return nil, err
	}

	body := tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqM3).
		Append(tlv8.TagPublicKey, clientPublic).
		Append(tlv8.TagProof, proof))

	return &Message{FrameType: frame.TypePSNext, Body: body}, nil
}

// handleM4 verifies the server proof and builds the encrypted M5 payload
// carrying the controller's long-term identity.
func (s *Setup) handleM4(dict tlv8.Dict) (*Message, error) {
	serverProof, ok := dict.Get(tlv8.TagProof)
	if !ok {
		return nil, ErrMissingTag
	}
	if err := s.srp.VerifyServerProof(serverProof); err != nil {
		return nil, err
	}

	sessionKey, err := s.srp.SessionKey()
	if err != nil {
		return nil, err
	}
	s.sessionKey = sessionKey

	signKey, err := crypto.HKDFSHA512(crypto.SaltPairSetupControllerSign, crypto.InfoPairSetupControllerSign, sessionKey)
	if err != nil {
		return nil, err
	}

	ltpk, ltsk, err := ed25519.GenerateKey(s.rand)
	if err != nil {
		return nil, err
	}
	s.ltpk, s.ltsk = ltpk, ltsk

	// device_info = sign_key || pairing_id || client_ltpk
	deviceInfo := make([]byte, 0, len(signKey)+len(s.clientID)+len(ltpk))
	deviceInfo = append(deviceInfo, signKey...)
	deviceInfo = append(deviceInfo, s.clientID...)
	deviceInfo = append(deviceInfo, ltpk...)
	signature := ed25519.Sign(ltsk, deviceInfo)

	inner := tlv8.Encode(tlv8.Dict{}.
		Append(tlv8.TagIdentifier, []byte(s.clientID)).
		Append(tlv8.TagPublicKey, ltpk).
		Append(tlv8.TagSignature, signature))

	encryptKey, err := crypto.HKDFSHA512(crypto.SaltPairSetupEncrypt, crypto.InfoPairSetupEncrypt, sessionKey)
	if err != nil {
		return nil, err
	}
	s.encryptKey = encryptKey

	sealed, err := crypto.SealLabel(encryptKey, "PS-Msg05", inner)
	if err != nil {
		return nil, err
	}

	body := tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqM5).
		Append(tlv8.TagEncryptedData, sealed))

	return &Message{FrameType: frame.TypePSNext, Body: body}, nil
}

// handleM6 opens the accessory's encrypted identity, verifies its
// signature and assembles the credentials record.
func (s *Setup) handleM6(dict tlv8.Dict) (*credentials.Credentials, error) {
	sealed, ok := dict.Get(tlv8.TagEncryptedData)
	if !ok {
		return nil, ErrMissingTag
	}

	inner, err := crypto.OpenLabel(s.encryptKey, "PS-Msg06", sealed)
	if err != nil {
		return nil, err
	}

	innerDict := tlv8.Decode(inner)
	serverID, ok := innerDict.Get(tlv8.TagIdentifier)
	if !ok {
		return nil, ErrMissingTag
	}
	serverLTPK, ok := innerDict.Get(tlv8.TagPublicKey)
	if !ok {
		return nil, ErrMissingTag
	}
	signature, ok := innerDict.Get(tlv8.TagSignature)
	if !ok {
		return nil, ErrMissingTag
	}
	if len(serverLTPK) != credentials.LTPKSize {
		return nil, ErrInvalidKeyLength
	}

	accessorySignKey, err := crypto.HKDFSHA512(crypto.SaltPairSetupAccessorySign, crypto.InfoPairSetupAccessorySign, s.sessionKey)
	if err != nil {
		return nil, err
	}

	// accessory_info = accessory_sign_key || server_identifier || server_ltpk
	accessoryInfo := make([]byte, 0, len(accessorySignKey)+len(serverID)+len(serverLTPK))
	accessoryInfo = append(accessoryInfo, accessorySignKey...)
	accessoryInfo = append(accessoryInfo, serverID...)
	accessoryInfo = append(accessoryInfo, serverLTPK...)

	if err := crypto.VerifyEd25519(serverLTPK, accessoryInfo, signature); err != nil {
		return nil, ErrSignatureVerification
	}

	return &credentials.Credentials{
		ClientID:   s.clientID,
		ClientLTSK: s.ltsk,
		ClientLTPK: s.ltpk,
		ServerID:   string(serverID),
		ServerLTPK: append([]byte(nil), serverLTPK...),
	}, nil
}

// rejectionError maps the error tag, if present, to a *PairingError.
func rejectionError(dict tlv8.Dict) error {
	code, ok := dict.Byte(tlv8.TagError)
	if !ok {
		return nil
	}

	perr := &PairingError{Code: ErrorCode(code)}
	if perr.Code == ErrorBackOff {
		if delay, ok := dict.Get(tlv8.TagRetryDelay); ok {
			perr.RetryDelay = time.Duration(beUint(delay)) * time.Second
		}
	}
	return perr
}

// beUint interprets up to 8 bytes as a big-endian unsigned integer.
func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
