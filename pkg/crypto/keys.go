package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadPrivateKey reads an Ed25519 private key from a PKCS#8 PEM file.
//
// The key is loaded fresh on every call and should be passed straight to
// SignCertificate; callers must not retain it beyond the signing scope.
// Zeroize the returned slice when done.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	defer zero(raw)

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: not a PEM file (expected PKCS#8 'PRIVATE KEY' block)", path)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("%s: unexpected PEM block %q, expected 'PRIVATE KEY'", path, block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Some generators emit a bare Ed25519 seed inside the PKCS#8
		// envelope; the seed is the trailing 32 bytes of the DER.
		if len(block.Bytes) >= ed25519.SeedSize {
			seed := block.Bytes[len(block.Bytes)-ed25519.SeedSize:]
			return ed25519.NewKeyFromSeed(seed), nil
		}
		return nil, fmt.Errorf("%s: parse PKCS#8: %w", path, err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: key is %T, not Ed25519", path, parsed)
	}
	return key, nil
}

// LoadPublicKey reads an Ed25519 public key from a PKIX PEM file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", path, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: not a PEM file (expected 'PUBLIC KEY' block)", path)
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%s: unexpected PEM block %q, expected 'PUBLIC KEY'", path, block.Type)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Tolerate a raw 32-byte key wrapped in a PEM block.
		if len(block.Bytes) == ed25519.PublicKeySize {
			return ed25519.PublicKey(block.Bytes), nil
		}
		return nil, fmt.Errorf("%s: parse PKIX: %w", path, err)
	}

	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: key is %T, not Ed25519", path, parsed)
	}
	return pub, nil
}

// GenerateKeyPair creates a fresh Ed25519 key pair and writes both halves
// as PEM files (private key mode 0600).
func GenerateKeyPair(privPath, pubPath string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}
	defer Zeroize(priv)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// Zeroize overwrites private key material in place. Best effort; the Go
// runtime may hold other copies.
func Zeroize(key ed25519.PrivateKey) {
	zero(key)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ErrNoKeyPath is returned when neither a CLI path nor the environment
// provides a key location.
var ErrNoKeyPath = errors.New("no key path provided")

// ResolveKeyPath picks the explicit path when given, otherwise the value
// of the named environment variable.
func ResolveKeyPath(explicit, envVar string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(envVar); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("%w: pass a path or set %s", ErrNoKeyPath, envVar)
}
