package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(MinBcryptCost)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestHashAndVerifyPassword(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("Secret123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !h.Verify("Secret123", hash) {
		t.Fatal("expected password verification success")
	}
	if h.Verify("wrong-pass", hash) {
		t.Fatal("expected password verification failure")
	}
}

func TestVerifyRejectsSecretsExtendingMaxLengthPassword(t *testing.T) {
	h := newTestHasher(t)
	full := strings.Repeat("a", MaxSecretBytes)
	hash, err := h.Hash(full)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Verify(full, hash) {
		t.Fatal("expected exact secret to verify")
	}
	if h.Verify(full+"WRONG-SUFFIX", hash) {
		t.Fatal("a longer secret sharing the first 72 bytes must not verify")
	}
}

func TestHashIsSaltedPerCall(t *testing.T) {
	h := newTestHasher(t)
	first, err := h.Hash("AdminSecret9")
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	second, err := h.Hash("AdminSecret9")
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for the same secret")
	}
	if !h.Verify("AdminSecret9", first) || !h.Verify("AdminSecret9", second) {
		t.Fatal("expected both hashes to verify")
	}
	cost, err := bcrypt.Cost([]byte(first))
	if err != nil || cost != MinBcryptCost {
		t.Fatalf("unexpected cost %d err=%v", cost, err)
	}
}

func TestHashRejectsInvalidSecret(t *testing.T) {
	h := newTestHasher(t)
	for _, secret := range []string{"", strings.Repeat("x", 73)} {
		if _, err := h.Hash(secret); err != ErrInvalidSecret {
			t.Fatalf("expected ErrInvalidSecret for len=%d, got %v", len(secret), err)
		}
	}
}

func TestVerifyNeverPanicsOnBadInput(t *testing.T) {
	h := newTestHasher(t)
	cases := []struct{ secret, hash string }{
		{"", ""},
		{"pw", ""},
		{"", "$2a$10$abcdefghijklmnopqrstuu"},
		{"pw", "not-a-hash"},
		{"pw", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"},
	}
	for _, tc := range cases {
		if h.Verify(tc.secret, tc.hash) {
			t.Fatalf("expected false for %+v", tc)
		}
	}
}

func TestNewPasswordHasherBoundsCost(t *testing.T) {
	for _, cost := range []int{4, 9, 13} {
		if _, err := NewPasswordHasher(cost); err == nil {
			t.Fatalf("expected error for cost %d", cost)
		}
	}
}

func TestEqualizeUsesHasherCost(t *testing.T) {
	h := newTestHasher(t)
	cost, err := bcrypt.Cost(h.dummyHash)
	if err != nil {
		t.Fatalf("dummy hash: %v", err)
	}
	if cost != h.Cost() {
		t.Fatalf("dummy hash cost %d, hasher cost %d", cost, h.Cost())
	}
	h.Equalize("")
	h.Equalize(strings.Repeat("x", 100))
}
