package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/reekystive/cuepad/pkg/crypto"
	"github.com/reekystive/cuepad/pkg/crypto/srp"
	"github.com/reekystive/cuepad/pkg/tlv8"
)

// setupAccessory simulates the accessory side of pair-setup at the TLV8
// level.
type setupAccessory struct {
	t *testing.T

	identifier string
	srv        *srp.Server
	sessionKey []byte
	encryptKey []byte

	ltpk ed25519.PublicKey
	ltsk ed25519.PrivateKey

	// Captured from M5.
	controllerID   string
	controllerLTPK []byte
}

func newSetupAccessory(t *testing.T, pin string) *setupAccessory {
	t.Helper()

	ltpk, ltsk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("rand failed: %v", err)
	}

	return &setupAccessory{
		t:          t,
		identifier: "AA:BB:CC:DD:EE:FF",
		srv:        srp.NewServer(SRPUsername, pin, salt),
		ltpk:       ltpk,
		ltsk:       ltsk,
	}
}

func (a *setupAccessory) handleM1(body []byte) []byte {
	a.t.Helper()

	dict := tlv8.Decode(body)
	if seq, _ := dict.Byte(tlv8.TagState); seq != seqM1 {
		a.t.Fatalf("M1 state = %d", seq)
	}
	if method, _ := dict.Byte(tlv8.TagMethod); method != MethodPairSetup {
		a.t.Fatalf("M1 method = %d", method)
	}

	b, err := a.srv.PublicKey()
	if err != nil {
		a.t.Fatalf("server PublicKey failed: %v", err)
	}
	return tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqM2).
		Append(tlv8.TagSalt, a.srv.Salt()).
		Append(tlv8.TagPublicKey, b))
}

func (a *setupAccessory) handleM3(body []byte) []byte {
	a.t.Helper()

	dict := tlv8.Decode(body)
	if seq, _ := dict.Byte(tlv8.TagState); seq != seqM3 {
		a.t.Fatalf("M3 state = %d", seq)
	}
	clientPublic, ok := dict.Get(tlv8.TagPublicKey)
	if !ok {
		a.t.Fatal("M3 missing publicKey")
	}
	m1, ok := dict.Get(tlv8.TagProof)
	if !ok {
		a.t.Fatal("M3 missing proof")
	}

	if err := a.srv.SetClientPublic(clientPublic); err != nil {
		a.t.Fatalf("SetClientPublic failed: %v", err)
	}
	if err := a.srv.VerifyClientProof(m1); err != nil {
		// Wrong PIN: respond with the authentication error like a real
		// accessory.
		return tlv8.Encode(tlv8.Dict{}.
			AppendByte(tlv8.TagState, seqM4).
			AppendByte(tlv8.TagError, uint8(ErrorAuthentication)))
	}

	a.sessionKey, _ = a.srv.SessionKey()
	m2, err := a.srv.Proof()
	if err != nil {
		a.t.Fatalf("server Proof failed: %v", err)
	}
	return tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqM4).
		Append(tlv8.TagProof, m2))
}

func (a *setupAccessory) handleM5(body []byte) []byte {
	a.t.Helper()

	dict := tlv8.Decode(body)
	if seq, _ := dict.Byte(tlv8.TagState); seq != seqM5 {
		a.t.Fatalf("M5 state = %d", seq)
	}
	sealed, ok := dict.Get(tlv8.TagEncryptedData)
	if !ok {
		a.t.Fatal("M5 missing encryptedData")
	}

	var err error
	a.encryptKey, err = crypto.HKDFSHA512(crypto.SaltPairSetupEncrypt, crypto.InfoPairSetupEncrypt, a.sessionKey)
	if err != nil {
		a.t.Fatal(err)
	}
	inner, err := crypto.OpenLabel(a.encryptKey, "PS-Msg05", sealed)
	if err != nil {
		a.t.Fatalf("M5 open failed: %v", err)
	}

	innerDict := tlv8.Decode(inner)
	id, _ := innerDict.Get(tlv8.TagIdentifier)
	ltpk, _ := innerDict.Get(tlv8.TagPublicKey)
	sig, _ := innerDict.Get(tlv8.TagSignature)

	signKey, _ := crypto.HKDFSHA512(crypto.SaltPairSetupControllerSign, crypto.InfoPairSetupControllerSign, a.sessionKey)
	info := append(append(append([]byte(nil), signKey...), id...), ltpk...)
	if err := crypto.VerifyEd25519(ltpk, info, sig); err != nil {
		a.t.Fatalf("controller signature invalid: %v", err)
	}
	a.controllerID = string(id)
	a.controllerLTPK = append([]byte(nil), ltpk...)

	// Build M6 with the accessory identity.
	accessorySignKey, _ := crypto.HKDFSHA512(crypto.SaltPairSetupAccessorySign, crypto.InfoPairSetupAccessorySign, a.sessionKey)
	accInfo := append(append(append([]byte(nil), accessorySignKey...), a.identifier...), a.ltpk...)
	accSig := ed25519.Sign(a.ltsk, accInfo)

	innerOut := tlv8.Encode(tlv8.Dict{}.
		Append(tlv8.TagIdentifier, []byte(a.identifier)).
		Append(tlv8.TagPublicKey, a.ltpk).
		Append(tlv8.TagSignature, accSig))

	sealedOut, err := crypto.SealLabel(a.encryptKey, "PS-Msg06", innerOut)
	if err != nil {
		a.t.Fatal(err)
	}
	return tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqM6).
		Append(tlv8.TagEncryptedData, sealedOut))
}

// verifyAccessory simulates the accessory side of pair-verify.
type verifyAccessory struct {
	t *testing.T

	identifier string
	ltsk       ed25519.PrivateKey

	controllerLTPK []byte

	ephPriv []byte
	ephPub  []byte
	shared  []byte

	encryptKey []byte
	sendKey    []byte // accessory-to-controller
	recvKey    []byte // controller-to-accessory

	// corruptSignature makes PV2 carry a bad accessory signature.
	corruptSignature bool
}

func (a *verifyAccessory) handlePV1(body []byte) []byte {
	a.t.Helper()

	dict := tlv8.Decode(body)
	if seq, _ := dict.Byte(tlv8.TagState); seq != seqPV1 {
		a.t.Fatalf("PV1 state = %d", seq)
	}
	clientEph, ok := dict.Get(tlv8.TagPublicKey)
	if !ok {
		a.t.Fatal("PV1 missing publicKey")
	}

	var err error
	a.ephPriv, a.ephPub, err = crypto.GenerateX25519(nil)
	if err != nil {
		a.t.Fatal(err)
	}
	a.shared, err = crypto.SharedSecretX25519(a.ephPriv, clientEph)
	if err != nil {
		a.t.Fatal(err)
	}

	info := append(append(append([]byte(nil), a.ephPub...), a.identifier...), clientEph...)
	sig := ed25519.Sign(a.ltsk, info)
	if a.corruptSignature {
		sig[0] ^= 0xFF
	}

	inner := tlv8.Encode(tlv8.Dict{}.
		Append(tlv8.TagIdentifier, []byte(a.identifier)).
		Append(tlv8.TagSignature, sig))

	a.encryptKey, err = crypto.HKDFSHA512(crypto.SaltPairVerifyEncrypt, crypto.InfoPairVerifyEncrypt, a.shared)
	if err != nil {
		a.t.Fatal(err)
	}
	sealed, err := crypto.SealLabel(a.encryptKey, "PV-Msg02", inner)
	if err != nil {
		a.t.Fatal(err)
	}

	return tlv8.Encode(tlv8.Dict{}.
		AppendByte(tlv8.TagState, seqPV2).
		Append(tlv8.TagPublicKey, a.ephPub).
		Append(tlv8.TagEncryptedData, sealed))
}

func (a *verifyAccessory) handlePV3(body []byte, clientEph []byte) []byte {
	a.t.Helper()

	dict := tlv8.Decode(body)
	if seq, _ := dict.Byte(tlv8.TagState); seq != seqPV3 {
		a.t.Fatalf("PV3 state = %d", seq)
	}
	sealed, ok := dict.Get(tlv8.TagEncryptedData)
	if !ok {
		a.t.Fatal("PV3 missing encryptedData")
	}

	inner, err := crypto.OpenLabel(a.encryptKey, "PV-Msg03", sealed)
	if err != nil {
		a.t.Fatalf("PV3 open failed: %v", err)
	}
	innerDict := tlv8.Decode(inner)
	id, _ := innerDict.Get(tlv8.TagIdentifier)
	sig, _ := innerDict.Get(tlv8.TagSignature)

	info := append(append(append([]byte(nil), clientEph...), id...), a.ephPub...)
	if err := crypto.VerifyEd25519(a.controllerLTPK, info, sig); err != nil {
		return tlv8.Encode(tlv8.Dict{}.
			AppendByte(tlv8.TagState, seqPV4).
			AppendByte(tlv8.TagError, uint8(ErrorAuthentication)))
	}

	// Accessory view of the channel keys (directions swapped).
	a.sendKey, _ = crypto.HKDFSHA512(crypto.SaltControl, crypto.InfoControlRead, a.shared)
	a.recvKey, _ = crypto.HKDFSHA512(crypto.SaltControl, crypto.InfoControlWrite, a.shared)

	return tlv8.Encode(tlv8.Dict{}.AppendByte(tlv8.TagState, seqPV4))
}
