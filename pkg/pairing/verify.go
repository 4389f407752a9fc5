package pairing

import (
	"crypto/ed25519"
	"io"
	"sync"

	"github.com/reekystive/cuepad/pkg/credentials"
	"github.com/reekystive/cuepad/pkg/crypto"
	"github.com/reekystive/cuepad/pkg/frame"
	"github.com/reekystive/cuepad/pkg/tlv8"
)

// VerifyState is the pair-verify state machine position.
type VerifyState int

const (
	VerifyStateIdle VerifyState = iota
	VerifyStatePV1Sent
	VerifyStatePV3Sent
	VerifyStateDone
	VerifyStateFailed
)

// String returns the state name.
func (s VerifyState) String() string {
	switch s {
	case VerifyStateIdle:
		return "Idle"
	case VerifyStatePV1Sent:
		return "PV1Sent"
	case VerifyStatePV3Sent:
		return "PV3Sent"
	case VerifyStateDone:
		return "Done"
	case VerifyStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ChannelKeys are the session encryption keys derived after PV4.
type ChannelKeys struct {
	// SendKey encrypts controller-to-accessory frames.
	SendKey []byte

	// RecvKey decrypts accessory-to-controller frames.
	RecvKey []byte
}

// Verify drives the controller side of pair-verify using previously
// provisioned credentials.
//
// Usage:
//
//	verify, _ := pairing.NewVerify(creds)
//	msg, _ := verify.Start()                // send as PV_Start
//	msg, keys, err := verify.Handle(body)   // send msg while keys == nil
//	// keys != nil: install channel keys, reset counters
//
// A Verify is single-use and holds an ephemeral X25519 keypair; its
// private scalar and the shared secret are zeroed once the channel keys
// are derived.
type Verify struct {
	mu    sync.Mutex
	state VerifyState

	creds *credentials.Credentials

	ephPriv    []byte
	ephPub     []byte
	serverEph  []byte
	shared     []byte
	encryptKey []byte

	rand io.Reader
}

// NewVerify creates a pair-verify driver from a valid credentials record.
func NewVerify(creds *credentials.Credentials) (*Verify, error) {
	if !creds.Valid() {
		return nil, credentials.ErrInvalid
	}
	return &Verify{
		state: VerifyStateIdle,
		creds: creds,
	}, nil
}

// SetRandom sets the random source for the ephemeral keypair. Must be
// called before Start.
func (v *Verify) SetRandom(r io.Reader) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rand = r
}

// State returns the current machine state.
func (v *Verify) State() VerifyState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Start generates the ephemeral keypair and produces PV1.
func (v *Verify) Start() (*Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != VerifyStateIdle {
		return nil, ErrInvalidState
	}

	priv, pub, err := crypto.GenerateX25519(v.rand)
	if err != nil {
		return nil, err
	}
	v.ephPriv, v.ephPub = priv, pub

	body := tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqPV1).
		Append(tlv8.TagPublicKey, pub))

	v.state = VerifyStatePV1Sent
	return &Message{FrameType: frame.TypePVStart, Body: body}, nil
}

// Handle processes a TLV8 reply body and returns either the next outbound
// message or, on PV4, the derived channel keys.
func (v *Verify) Handle(body []byte) (*Message, *ChannelKeys, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case VerifyStatePV1Sent, VerifyStatePV3Sent:
	default:
		return nil, nil, ErrInvalidState
	}

	dict := tlv8.Decode(body)

	if err := rejectionError(dict); err != nil {
		v.state = VerifyStateFailed
		return nil, nil, err
	}

	seq, ok := dict.Byte(tlv8.TagState)
	if !ok {
		v.state = VerifyStateFailed
		return nil, nil, ErrMissingTag
	}

	switch v.state {
	case VerifyStatePV1Sent:
		if seq != seqPV2 {
			v.state = VerifyStateFailed
			return nil, nil, ErrUnexpectedSeqNo
		}
		msg, err := v.handlePV2(dict)
		if err != nil {
			v.state = VerifyStateFailed
			return nil, nil, err
		}
		v.state = VerifyStatePV3Sent
		return msg, nil, nil

	case VerifyStatePV3Sent:
		if seq != seqPV4 {
			v.state = VerifyStateFailed
			return nil, nil, ErrUnexpectedSeqNo
		}
		keys, err := v.finish()
		if err != nil {
			v.state = VerifyStateFailed
			return nil, nil, err
		}
		v.state = VerifyStateDone
		return nil, keys, nil

	default:
		return nil, nil, ErrInvalidState
	}
}

// handlePV2 runs the key agreement, checks the accessory signature against
// the stored LTPK and produces PV3.
func (v *Verify) handlePV2(dict tlv8.Dict) (*Message, error) {
	serverEph, ok := dict.Get(tlv8.TagPublicKey)
	if !ok {
		return nil, ErrMissingTag
	}
	if len(serverEph) != crypto.X25519KeySize {
		return nil, ErrInvalidKeyLength
	}
	sealed, ok := dict.Get(tlv8.TagEncryptedData)
	if !ok {
		return nil, ErrMissingTag
	}

	shared, err := crypto.SharedSecretX25519(v.ephPriv, serverEph)
	if err != nil {
		return nil, err
	}
	v.shared = shared
	v.serverEph = append([]byte(nil), serverEph...)

	encryptKey, err := crypto.HKDFSHA512(crypto.SaltPairVerifyEncrypt, crypto.InfoPairVerifyEncrypt, shared)
	if err != nil {
		return nil, err
	}
	v.encryptKey = encryptKey

	inner, err := crypto.OpenLabel(encryptKey, "PV-Msg02", sealed)
	if err != nil {
		return nil, err
	}

	innerDict := tlv8.Decode(inner)
	serverID, ok := innerDict.Get(tlv8.TagIdentifier)
	if !ok {
		return nil, ErrMissingTag
	}
	signature, ok := innerDict.Get(tlv8.TagSignature)
	if !ok {
		return nil, ErrMissingTag
	}

	// accessory_info = server_eph_pub || server_identifier || client_eph_pub
	info := make([]byte, 0, len(serverEph)+len(serverID)+len(v.ephPub))
	info = append(info, serverEph...)
	info = append(info, serverID...)
	info = append(info, v.ephPub...)

	if err := crypto.VerifyEd25519(v.creds.ServerLTPK, info, signature); err != nil {
		return nil, ErrSignatureVerification
	}

	// device_info = client_eph_pub || pairing_id || server_eph_pub
	deviceInfo := make([]byte, 0, len(v.ephPub)+len(v.creds.ClientID)+len(serverEph))
	deviceInfo = append(deviceInfo, v.ephPub...)
	deviceInfo = append(deviceInfo, v.creds.ClientID...)
	deviceInfo = append(deviceInfo, serverEph...)
	deviceSig := ed25519.Sign(v.creds.ClientLTSK, deviceInfo)

	innerOut := tlv8.Encode(tlv8.Dict{}.
		Append(tlv8.TagIdentifier, []byte(v.creds.ClientID)).
		Append(tlv8.TagSignature, deviceSig))

	sealedOut, err := crypto.SealLabel(encryptKey, "PV-Msg03", innerOut)
	if err != nil {
		return nil, err
	}

	body := tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqPV3).
		Append(tlv8.TagEncryptedData, sealedOut))

	return &Message{FrameType: frame.TypePVNext, Body: body}, nil
}

// finish derives the channel keys and zeroes the ephemeral material.
func (v *Verify) finish() (*ChannelKeys, error) {
	recvKey, err := crypto.HKDFSHA512(crypto.SaltControl, crypto.InfoControlRead, v.shared)
	if err != nil {
		return nil, err
	}
	sendKey, err := crypto.HKDFSHA512(crypto.SaltControl, crypto.InfoControlWrite, v.shared)
	if err != nil {
		return nil, err
	}

	crypto.Zeroize(v.ephPriv)
	crypto.Zeroize(v.shared)

	return &ChannelKeys{SendKey: sendKey, RecvKey: recvKey}, nil
}
