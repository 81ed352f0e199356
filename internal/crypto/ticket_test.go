package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // matching the production decrypt path under test.
	"crypto/x509"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestEncryptTicketSizeAndRoundTrip(t *testing.T) {
	key := testKey(t)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal SPKI: %v", err)
	}

	pub, err := ParseSubjectPublicKeyInfo(der)
	if err != nil {
		t.Fatalf("parse SPKI: %v", err)
	}

	ct, err := EncryptTicket(pub, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(ct) != pub.Size() {
		t.Fatalf("ciphertext length %d != key size %d", len(ct), pub.Size())
	}

	pt, err := rsa.DecryptOAEP(sha1.New(), nil, key, ct, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	want := "hunter2\x00"
	if string(pt) != want {
		t.Errorf("decrypted plaintext = %q, want %q", pt, want)
	}
}

func TestParseSubjectPublicKeyInfoRejectsNonRSA(t *testing.T) {
	// An empty DER blob should fail to parse outright.
	if _, err := ParseSubjectPublicKeyInfo([]byte{0x00}); err == nil {
		t.Fatal("expected error parsing malformed SPKI")
	}
}
