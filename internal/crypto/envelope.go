package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"turtlcore/internal/turtlerr"
)

// CurrentVersion is the on-disk/wire envelope version this build writes.
// Versions 0-5 used CBC+HMAC with different KDFs (see spec.md §9); this
// rewrite only implements version 6 (chacha20poly1305) for both encrypt and
// decrypt — legacy decrypt is explicitly optional per spec and out of scope
// for a client that has no pre-v6 stores to read.
const CurrentVersion uint16 = 6

// symAlgorithms is the fixed, append-only algorithm table. The payload
// description is a single byte indexing into this table.
var symAlgorithms = []string{"chacha20poly1305"}

func algorithmIndex(name string) (byte, error) {
	for i, a := range symAlgorithms {
		if a == name {
			return byte(i), nil
		}
	}
	return 0, turtlerr.Crypto("unknown algorithm: %s", name)
}

// Envelope is a deserialized view of turtlcore's versioned binary container:
//
//	ver(2B) | dlen(1B) | desc(dB) | nonce_len(1B) | nonce | ciphertext
//
// The header (everything before ciphertext) is the AEAD associated data.
type Envelope struct {
	Version    uint16
	Desc       []byte // currently always 1 byte: an index into symAlgorithms
	Nonce      []byte
	Ciphertext []byte
}

// header serializes everything but the ciphertext — this is the AEAD
// associated data and the prefix of the full wire encoding.
func (e *Envelope) header() []byte {
	out := make([]byte, 0, 2+1+len(e.Desc)+1+len(e.Nonce))
	out = append(out, byte(e.Version>>8), byte(e.Version&0xFF))
	out = append(out, byte(len(e.Desc)))
	out = append(out, e.Desc...)
	out = append(out, byte(len(e.Nonce)))
	out = append(out, e.Nonce...)
	return out
}

// Bytes serializes the full envelope: header + ciphertext.
func (e *Envelope) Bytes() []byte {
	return append(e.header(), e.Ciphertext...)
}

// ParseEnvelope deserializes a wire/on-disk envelope. It does not verify
// authentication — that only happens on Decrypt.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < 2+1 {
		return nil, turtlerr.Crypto("envelope too short")
	}
	idx := 0
	version := (uint16(data[idx]) << 8) + uint16(data[idx+1])
	idx += 2

	if idx >= len(data) {
		return nil, turtlerr.Crypto("envelope truncated at desc length")
	}
	dlen := int(data[idx])
	idx++
	if idx+dlen > len(data) {
		return nil, turtlerr.Crypto("envelope truncated at desc")
	}
	desc := append([]byte(nil), data[idx:idx+dlen]...)
	idx += dlen

	if idx >= len(data) {
		return nil, turtlerr.Crypto("envelope truncated at nonce length")
	}
	nlen := int(data[idx])
	idx++
	if idx+nlen > len(data) {
		return nil, turtlerr.Crypto("envelope truncated at nonce")
	}
	nonce := append([]byte(nil), data[idx:idx+nlen]...)
	idx += nlen

	ciphertext := append([]byte(nil), data[idx:]...)

	return &Envelope{Version: version, Desc: desc, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Encrypt seals plaintext under key using the current envelope version and
// chacha20poly1305, generating a fresh random nonce. The serialized header
// is used as AEAD associated data, binding the version/algorithm/nonce to
// the ciphertext so tampering with any of them is detected on Decrypt.
func Encrypt(key Key, plaintext []byte) ([]byte, error) {
	nonce, err := RandBytes(chacha20poly1305.NonceSize)
	if err != nil {
		return nil, err
	}
	return EncryptWithNonce(key, nonce, plaintext)
}

// EncryptWithNonce is Encrypt with an explicit nonce. Used only where the
// nonce must be deterministic, e.g. the auth token derivation in §4.1
// (nonce = SHA-512(username)[0..nonce_len]) — everywhere else callers should
// use Encrypt, which picks a fresh random nonce per call.
func EncryptWithNonce(key Key, nonce, plaintext []byte) ([]byte, error) {
	if key.Len() != chacha20poly1305.KeySize {
		return nil, turtlerr.Crypto("encrypt: key must be %d bytes, got %d", chacha20poly1305.KeySize, key.Len())
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, turtlerr.Crypto("encrypt: nonce must be %d bytes, got %d", chacha20poly1305.NonceSize, len(nonce))
	}
	algIdx, err := algorithmIndex("chacha20poly1305")
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Version: CurrentVersion,
		Desc:    []byte{algIdx},
		Nonce:   nonce,
	}
	aead, err := chacha20poly1305.New(key.Data())
	if err != nil {
		return nil, turtlerr.Wrap(turtlerr.Crypto("%v", err), "crypto.Encrypt")
	}
	aad := env.header()
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, aad)
	return env.Bytes(), nil
}

// Decrypt opens an envelope produced by Encrypt (or any version-6 envelope)
// under key. A tag mismatch or tampered header yields a distinguished
// Crypto::Authentication error, never retried by callers.
func Decrypt(key Key, envelope []byte) ([]byte, error) {
	env, err := ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	if env.Version < CurrentVersion {
		return nil, turtlerr.NotImplemented("legacy envelope version")
	}
	if env.Version != CurrentVersion || len(env.Desc) != 1 ||
		int(env.Desc[0]) >= len(symAlgorithms) || len(env.Nonce) != chacha20poly1305.NonceSize {
		return nil, turtlerr.Authentication("tampered envelope header")
	}
	algIdx := int(env.Desc[0])
	if symAlgorithms[algIdx] != "chacha20poly1305" {
		return nil, turtlerr.NotImplemented("algorithm " + symAlgorithms[algIdx])
	}
	if key.Len() != chacha20poly1305.KeySize {
		return nil, turtlerr.Crypto("decrypt: key must be %d bytes, got %d", chacha20poly1305.KeySize, key.Len())
	}
	aead, err := chacha20poly1305.New(key.Data())
	if err != nil {
		return nil, turtlerr.Wrap(turtlerr.Crypto("%v", err), "crypto.Decrypt")
	}
	aad := env.header()
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, turtlerr.Authentication("tag mismatch or tampered envelope")
	}
	return plaintext, nil
}

// RandomSymmetricKey generates a fresh 32-byte chacha20poly1305 key.
func RandomSymmetricKey() (Key, error) {
	b, err := RandBytes(chacha20poly1305.KeySize)
	if err != nil {
		return Key{}, err
	}
	return NewKey(b), nil
}
