// Package keys derives the deterministic signing identity behind every wallet.
//
// Knowing the phone number and PIN is both necessary and sufficient to rebuild
// a wallet's key, given the service-wide salt. The encrypted keystore kept on
// the wallet record is a convenience copy; Signer falls back to derivation
// whenever it cannot be opened.
package keys

import (
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	pinLength      = 4
	derivationInfo = "avanomad/wallet/v1"
	sealInfo       = "avanomad/session-pin/v1"
	maxDeriveTries = 8
)

var (
	ErrInvalidPIN = errors.New("pin must be exactly 4 digits")
	// ErrSealedPIN is returned when a sealed PIN was tampered with or was
	// sealed for another session.
	ErrSealedPIN = errors.New("sealed pin cannot be opened")
)

// ConfigurationError reports a missing or malformed service secret.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s is misconfigured: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("%s is not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Identity is a secp256k1 signing key together with its EVM address.
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newIdentity(key *ecdsa.PrivateKey) *Identity {
	return &Identity{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the EIP-55 checksummed address.
func (i *Identity) Address() string { return i.address.Hex() }

// Account returns the raw address.
func (i *Identity) Account() common.Address { return i.address }

// PrivateKey exposes the key for transaction signing.
func (i *Identity) PrivateKey() *ecdsa.PrivateKey { return i.key }

// Sign returns a 65-byte recoverable signature over keccak256(payload).
func (i *Identity) Sign(payload []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(payload), i.key)
}

// RecoverAddress returns the address that produced sig over payload.
func RecoverAddress(payload, sig []byte) (string, error) {
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SameAddress compares two hex addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// ParsePrivateKey loads a hex encoded key such as the faucet key.
func ParsePrivateKey(hexKey string) (*Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, &ConfigurationError{Setting: "private key", Err: err}
	}
	return newIdentity(key), nil
}

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HashPhone returns the hex SHA-256 digest used as the lookup key for users.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}

// Provider derives identities from (phone, pin) under a service salt.
type Provider struct {
	salt    string
	scryptN int
	scryptP int
	sealer  cipher.AEAD
}

// Option tweaks a Provider.
type Option func(*Provider)

// WithScrypt overrides the keystore scrypt cost parameters.
func WithScrypt(n, p int) Option {
	return func(pr *Provider) {
		pr.scryptN = n
		pr.scryptP = p
	}
}

// NewProvider fails with a ConfigurationError when salt is empty.
func NewProvider(salt string, opts ...Option) (*Provider, error) {
	if salt == "" {
		return nil, &ConfigurationError{Setting: "WALLET_GENERATION_SALT"}
	}
	p := &Provider{salt: salt, scryptN: keystore.LightScryptN, scryptP: keystore.LightScryptP}
	for _, opt := range opts {
		opt(p)
	}

	sealKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(salt), nil, []byte(sealInfo)), sealKey); err != nil {
		return nil, fmt.Errorf("expand seal key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("seal cipher: %w", err)
	}
	p.sealer = aead
	return p, nil
}

// Derive rebuilds the identity for phone and pin. It is a pure function of
// its inputs and the salt.
func (p *Provider) Derive(phone, pin string) (*Identity, error) {
	r := hkdf.New(sha256.New, []byte(phone+"-"+pin), []byte(p.salt), []byte(derivationInfo))
	seed := make([]byte, 32)
	for i := 0; i < maxDeriveTries; i++ {
		if _, err := io.ReadFull(r, seed); err != nil {
			return nil, fmt.Errorf("expand seed: %w", err)
		}
		key, err := crypto.ToECDSA(seed)
		if err == nil {
			return newIdentity(key), nil
		}
	}
	return nil, errors.New("derive wallet: no valid scalar")
}

// Encrypt seals the identity into a scrypt JSON keystore under pin and salt.
func (p *Provider) Encrypt(id *Identity, pin string) (string, error) {
	key := &keystore.Key{Id: uuid.New(), Address: id.address, PrivateKey: id.key}
	blob, err := keystore.EncryptKey(key, p.password(pin), p.scryptN, p.scryptP)
	if err != nil {
		return "", fmt.Errorf("encrypt keystore: %w", err)
	}
	return string(blob), nil
}

// Decrypt opens a keystore produced by Encrypt.
func (p *Provider) Decrypt(encrypted, pin string) (*Identity, error) {
	key, err := keystore.DecryptKey([]byte(encrypted), p.password(pin))
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return newIdentity(key.PrivateKey), nil
}

// Signer returns the spending identity, preferring the stored keystore and
// falling back to derivation when it is absent, unreadable or belongs to a
// different address.
func (p *Provider) Signer(phone, pin, encrypted string) (*Identity, error) {
	if !ValidPIN(pin) {
		return nil, ErrInvalidPIN
	}
	derived, err := p.Derive(phone, pin)
	if err != nil {
		return nil, err
	}
	if encrypted == "" {
		return derived, nil
	}
	stored, err := p.Decrypt(encrypted, pin)
	if err != nil || stored.address != derived.address {
		return derived, nil
	}
	return stored, nil
}

// SealPIN encrypts a verified PIN for storage in dialog state. The sealed
// value only opens under the same salt and the same scope (the session id).
func (p *Provider) SealPIN(pin, scope string) (string, error) {
	if !ValidPIN(pin) {
		return "", ErrInvalidPIN
	}
	nonce := make([]byte, p.sealer.NonceSize(), p.sealer.NonceSize()+len(pin)+p.sealer.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal nonce: %w", err)
	}
	out := p.sealer.Seal(nonce, nonce, []byte(pin), []byte(scope))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// OpenPIN reverses SealPIN.
func (p *Provider) OpenPIN(sealed, scope string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < p.sealer.NonceSize() {
		return "", ErrSealedPIN
	}
	n := p.sealer.NonceSize()
	pin, err := p.sealer.Open(nil, raw[:n], raw[n:], []byte(scope))
	if err != nil || !ValidPIN(string(pin)) {
		return "", ErrSealedPIN
	}
	return string(pin), nil
}

func (p *Provider) password(pin string) string {
	return pin + "-" + p.salt
}
