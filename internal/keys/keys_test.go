package keys

import (
	"errors"
	"strings"
	"testing"
)

const testPhone = "2348030000000"

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider("test-salt", WithScrypt(1<<4, 1))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestNewProviderRequiresSalt(t *testing.T) {
	_, err := NewProvider("")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Setting != "WALLET_GENERATION_SALT" {
		t.Fatalf("unexpected setting %q", cfgErr.Setting)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	p := newTestProvider(t)

	first, err := p.Derive(testPhone, "1234")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	again, err := p.Derive(testPhone, "1234")
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if first.Address() != again.Address() {
		t.Fatalf("addresses differ: %s vs %s", first.Address(), again.Address())
	}

	other, _ := NewProvider("test-salt")
	fresh, err := other.Derive(testPhone, "1234")
	if err != nil {
		t.Fatalf("derive with new provider: %v", err)
	}
	if fresh.Address() != first.Address() {
		t.Fatalf("derivation depends on provider instance")
	}
}

func TestDeriveSeparatesInputs(t *testing.T) {
	p := newTestProvider(t)
	base, _ := p.Derive(testPhone, "1234")

	wrongPIN, _ := p.Derive(testPhone, "9999")
	if wrongPIN.Address() == base.Address() {
		t.Fatalf("different pins produced the same address")
	}

	otherPhone, _ := p.Derive("2348030000001", "1234")
	if otherPhone.Address() == base.Address() {
		t.Fatalf("different phones produced the same address")
	}

	salted, _ := NewProvider("another-salt")
	otherSalt, _ := salted.Derive(testPhone, "1234")
	if otherSalt.Address() == base.Address() {
		t.Fatalf("different salts produced the same address")
	}
}

func TestSignAndRecover(t *testing.T) {
	p := newTestProvider(t)
	id, _ := p.Derive(testPhone, "1234")

	payload := []byte("transfer:10")
	sig, err := id.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65 byte signature, got %d", len(sig))
	}

	got, err := RecoverAddress(payload, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !SameAddress(got, id.Address()) {
		t.Fatalf("recovered %s, want %s", got, id.Address())
	}

	tampered, _ := RecoverAddress([]byte("transfer:11"), sig)
	if SameAddress(tampered, id.Address()) {
		t.Fatalf("signature verified for a different payload")
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	id, _ := p.Derive(testPhone, "1234")

	blob, err := p.Encrypt(id, "1234")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(blob, "crypto") {
		t.Fatalf("expected keystore json, got %q", blob)
	}

	opened, err := p.Decrypt(blob, "1234")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if opened.Address() != id.Address() {
		t.Fatalf("opened %s, want %s", opened.Address(), id.Address())
	}

	if _, err := p.Decrypt(blob, "0000"); err == nil {
		t.Fatalf("expected wrong pin to fail")
	}
}

func TestSignerFallsBackToDerivation(t *testing.T) {
	p := newTestProvider(t)
	want, _ := p.Derive(testPhone, "1234")

	for name, blob := range map[string]string{
		"empty":   "",
		"garbage": "{not json",
	} {
		got, err := p.Signer(testPhone, "1234", blob)
		if err != nil {
			t.Fatalf("%s: signer: %v", name, err)
		}
		if got.Address() != want.Address() {
			t.Fatalf("%s: got %s, want %s", name, got.Address(), want.Address())
		}
	}

	if _, err := p.Signer(testPhone, "12a4", ""); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
}

func TestValidPIN(t *testing.T) {
	cases := map[string]bool{
		"1234":  true,
		"0000":  true,
		"123":   false,
		"12345": false,
		"12a4":  false,
		"":      false,
		"١٢٣٤":  false,
	}
	for pin, want := range cases {
		if got := ValidPIN(pin); got != want {
			t.Fatalf("ValidPIN(%q) = %v, want %v", pin, got, want)
		}
	}
}

func TestHashPhone(t *testing.T) {
	h := HashPhone(testPhone)
	if len(h) != 64 {
		t.Fatalf("expected hex sha256, got %q", h)
	}
	if h == testPhone || h != HashPhone(testPhone) {
		t.Fatalf("hash is not stable")
	}
}

func TestParsePrivateKey(t *testing.T) {
	id, err := ParsePrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !SameAddress(id.Address(), "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23") {
		t.Fatalf("unexpected address %s", id.Address())
	}

	var cfgErr *ConfigurationError
	if _, err := ParsePrivateKey("zz"); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestSealPINIsScoped(t *testing.T) {
	p := newTestProvider(t)

	sealed, err := p.SealPIN("1234", "session-a")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	again, _ := p.SealPIN("1234", "session-a")
	if again == sealed {
		t.Fatalf("expected a fresh nonce per seal")
	}

	pin, err := p.OpenPIN(sealed, "session-a")
	if err != nil || pin != "1234" {
		t.Fatalf("open: %q %v", pin, err)
	}
	if _, err := p.OpenPIN(sealed, "session-b"); !errors.Is(err, ErrSealedPIN) {
		t.Fatalf("expected ErrSealedPIN for another session, got %v", err)
	}

	other, _ := NewProvider("other-salt")
	if _, err := other.OpenPIN(sealed, "session-a"); !errors.Is(err, ErrSealedPIN) {
		t.Fatalf("expected ErrSealedPIN under another salt, got %v", err)
	}
	for _, bad := range []string{"", "1234", "!!!"} {
		if _, err := p.OpenPIN(bad, "session-a"); !errors.Is(err, ErrSealedPIN) {
			t.Fatalf("expected ErrSealedPIN for %q, got %v", bad, err)
		}
	}
	if _, err := p.SealPIN("12a4", "session-a"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
}
