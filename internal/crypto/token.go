package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"turtlcore/internal/turtlerr"
)

// DeriveAuthToken computes the stable wire auth value from §4.1:
//
//	key   = KDF(password, SHA-512("v{ver}/{username}")[0..16], cpu, mem)
//	nonce = SHA-512(username)[0..nonce_len]
//	auth  = hex(AEAD_encrypt(key, nonce, aad=header, plaintext=hex(SHA-512(password))))
//
// ver selects the auth-derivation generation (the client retries ver from
// CurrentVersion down to 0 on a 401, per §4.1's login fallback).
func DeriveAuthToken(username, password string, ver uint16, cpu, mem uint32) (string, error) {
	saltSrc := SHA512([]byte(fmt.Sprintf("v%d/%s", ver, username)))
	salt := saltSrc[:KeygenSaltLen]

	key, err := GenKey([]byte(password), salt, cpu, mem)
	if err != nil {
		return "", turtlerr.Wrap(err, "crypto.DeriveAuthToken")
	}

	nonceSrc := SHA512([]byte(username))
	nonce := nonceSrc[:chacha20poly1305.NonceSize]

	plaintext := []byte(ToHex(SHA512([]byte(password))))

	sealed, err := EncryptWithNonce(key, nonce, plaintext)
	if err != nil {
		return "", turtlerr.Wrap(err, "crypto.DeriveAuthToken")
	}
	return ToHex(sealed), nil
}

// BasicAuthHeader builds the "Authorization: Basic ..." header value for a
// username + derived auth token, per §4.1.
func BasicAuthHeader(username, authToken string) string {
	raw := username + ":" + authToken
	return "Basic " + ToBase64([]byte(raw))
}

// DeriveRootKey derives the user's own data-encryption key (distinct from
// the server auth token DeriveAuthToken computes): the key every top-level
// Space's keychain entry, and the user's own KeychainEntry/privkey, is
// self-encrypted under. It uses the same password KDF and version-retry
// shape as the auth token (§4.1's "Login retries version N-1 on 401 down to
// version 0"), but a distinct salt derivation string so the two keys never
// collide even though they're derived from the same (username, password,
// version) triple.
func DeriveRootKey(username, password string, ver uint16, cpu, mem uint32) (Key, error) {
	saltSrc := SHA512([]byte(fmt.Sprintf("v%d/%s/key", ver, username)))
	salt := saltSrc[:KeygenSaltLen]
	key, err := GenKey([]byte(password), salt, cpu, mem)
	if err != nil {
		return Key{}, turtlerr.Wrap(err, "crypto.DeriveRootKey")
	}
	return key, nil
}
