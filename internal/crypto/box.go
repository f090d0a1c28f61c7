package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"

	"turtlcore/internal/turtlerr"
)

// KeyPair is a Curve25519 asymmetric keypair used for sharing (invites):
// sealing a space key to a specific recipient's public key.
type KeyPair struct {
	Public  [32]byte
	private [32]byte
}

// GenerateKeyPair creates a fresh Curve25519 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, turtlerr.Wrap(turtlerr.Crypto("%v", err), "crypto.GenerateKeyPair")
	}
	return &KeyPair{Public: *pub, private: *priv}, nil
}

// KeyPairFromPrivate reconstructs a KeyPair from a decrypted private key
// (e.g. read back out of a User's encrypted-private-key field) and its
// accompanying public key.
func KeyPairFromPrivate(pub, priv [32]byte) *KeyPair {
	return &KeyPair{Public: pub, private: priv}
}

// PrivateBytes returns the raw private scalar. Callers must treat this as
// private-field plaintext: never serialize it outside an encrypted envelope.
func (k *KeyPair) PrivateBytes() [32]byte { return k.private }

// SealBox encrypts plaintext for recipientPub such that only the holder of
// the matching private key can open it (used when sending an Invite's
// sealed {space_key} message). Uses an ephemeral sender keypair and a
// random nonce; the output is the ephemeral public key (32 bytes), then the
// nonce (24 bytes), then the box ciphertext, the layout OpenBox reads.
func SealBox(plaintext []byte, recipientPub [32]byte) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, turtlerr.Wrap(turtlerr.Crypto("%v", err), "crypto.SealBox")
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, turtlerr.Wrap(turtlerr.Crypto("%v", err), "crypto.SealBox")
	}
	sealed := box.Seal(nonce[:], plaintext, &nonce, &recipientPub, ephPriv)
	out := make([]byte, 0, 32+len(sealed))
	out = append(out, ephPub[:]...)
	out = append(out, sealed...)
	return out, nil
}

// OpenBox reverses SealBox using the recipient's own keypair.
func OpenBox(sealed []byte, recipient *KeyPair) ([]byte, error) {
	if len(sealed) < 32+24 {
		return nil, turtlerr.Crypto("sealed box too short")
	}
	var ephPub [32]byte
	copy(ephPub[:], sealed[:32])
	rest := sealed[32:]
	var nonce [24]byte
	copy(nonce[:], rest[:24])
	ciphertext := rest[24:]
	priv := recipient.private
	plaintext, ok := box.Open(nil, ciphertext, &nonce, &ephPub, &priv)
	if !ok {
		return nil, turtlerr.Authentication("sealed box open failed")
	}
	return plaintext, nil
}
