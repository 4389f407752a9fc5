package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ChannelKeySize is the length of every derived ChaCha20-Poly1305 key, for
// both the session channel and the pairing sub-TLV encryption.
const ChannelKeySize = 32

// HKDF labels prescribed by the pair-setup and pair-verify flows.
const (
	SaltPairSetupEncrypt = "Pair-Setup-Encrypt-Salt"
	InfoPairSetupEncrypt = "Pair-Setup-Encrypt-Info"

	SaltPairSetupControllerSign = "Pair-Setup-Controller-Sign-Salt"
	InfoPairSetupControllerSign = "Pair-Setup-Controller-Sign-Info"

	SaltPairSetupAccessorySign = "Pair-Setup-Accessory-Sign-Salt"
	InfoPairSetupAccessorySign = "Pair-Setup-Accessory-Sign-Info"

	SaltPairVerifyEncrypt = "Pair-Verify-Encrypt-Salt"
	InfoPairVerifyEncrypt = "Pair-Verify-Encrypt-Info"

	SaltControl      = "Control-Salt"
	InfoControlRead  = "Control-Read-Encryption-Key"
	InfoControlWrite = "Control-Write-Encryption-Key"
)

// HKDFSHA512 derives a 32-byte key with HKDF-SHA-512 (RFC 5869) using
// ASCII salt and info labels.
func HKDFSHA512(salt, info string, ikm []byte) ([]byte, error) {
	reader := hkdf.New(sha512.New, ikm, []byte(salt), []byte(info))
	key := make([]byte, ChannelKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
