package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var cheapParams = HashParams{Time: 1, Memory: 64, Threads: 1}

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(cheapParams)
	digest, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=64,t=1,p=1$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}
	if strings.Contains(digest, "s3cret!") {
		t.Fatalf("digest leaks plaintext")
	}
	ok, err := h.Verify(digest, "s3cret!")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify(digest, "wrong")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHasherSaltsEachDigest(t *testing.T) {
	h := NewHasher(cheapParams)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatalf("expected distinct digests for the same secret")
	}
}

func TestHasherVerifiesWithStoredParams(t *testing.T) {
	digest, err := NewHasher(HashParams{Time: 2, Memory: 128, Threads: 1}).Hash("pw123456")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err := NewHasher(cheapParams).Verify(digest, "pw123456")
	if err != nil || !ok {
		t.Fatalf("expected verification with embedded params, ok=%v err=%v", ok, err)
	}
}

func TestHasherAcceptsLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	h := NewHasher(cheapParams)
	if ok, err := h.Verify(string(legacy), "legacy-pw"); err != nil || !ok {
		t.Fatalf("expected bcrypt match, ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify(string(legacy), "nope"); err != nil || ok {
		t.Fatalf("expected bcrypt mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHasherRejectsMalformedDigest(t *testing.T) {
	h := NewHasher(cheapParams)
	for _, digest := range []string{"", "plain", "$argon2i$v=19$m=64,t=1,p=1$AAAA$AAAA", "$argon2id$v=19$m=x$AAAA$AAAA"} {
		if _, err := h.Verify(digest, "pw"); err == nil {
			t.Fatalf("expected error for %q", digest)
		}
	}
}
