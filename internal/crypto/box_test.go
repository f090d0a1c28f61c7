package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenBoxRoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := []byte("space-key-material-32-bytes-long")
	sealed, err := SealBox(plaintext, recipient.Public)
	if err != nil {
		t.Fatalf("SealBox: %v", err)
	}
	opened, err := OpenBox(sealed, recipient)
	if err != nil {
		t.Fatalf("OpenBox: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestOpenBoxWrongRecipientFails(t *testing.T) {
	recipient, _ := GenerateKeyPair()
	stranger, _ := GenerateKeyPair()

	sealed, err := SealBox([]byte("for your eyes only"), recipient.Public)
	if err != nil {
		t.Fatalf("SealBox: %v", err)
	}
	if _, err := OpenBox(sealed, stranger); err == nil {
		t.Fatalf("expected OpenBox to fail for wrong recipient")
	}
}
