// Package crypto implements Ed25519 signing and verification of
// certificates over their RFC 8785 canonical form.
package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/securewipe/securewipe/pkg/canonicalize"
)

const (
	// AlgEd25519 is the only signature algorithm certificates may carry.
	AlgEd25519 = "Ed25519"

	// RootPubKeyID is the stable identifier of the issuing root key.
	RootPubKeyID = "sih_root_v1"

	// CanonicalizationScheme recorded alongside every signature.
	CanonicalizationScheme = "RFC8785_JSON"
)

// ErrAlreadySigned is returned when signing a certificate that already
// carries a non-empty signature and force was not requested.
var ErrAlreadySigned = errors.New("certificate already signed (use force to re-sign)")

// SignCertificate returns a copy of cert with a signature object attached:
//
//	signature.alg = "Ed25519"
//	signature.pubkey_id = pubKeyID
//	signature.sig = base64(Ed25519(canonical bytes without signature))
//	signature.canonicalization = "RFC8785_JSON"
//
// The input map is never mutated; certificates are values, signing yields
// a new value. Re-signing requires force.
func SignCertificate(cert map[string]interface{}, key ed25519.PrivateKey, pubKeyID string, force bool) (map[string]interface{}, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key size %d", len(key))
	}
	if hasSignature(cert) && !force {
		return nil, ErrAlreadySigned
	}

	canonical, err := canonicalize.UnsignedBytes(cert)
	if err != nil {
		return nil, fmt.Errorf("canonicalize for signing: %w", err)
	}

	sig := ed25519.Sign(key, canonical)

	signed := make(map[string]interface{}, len(cert)+1)
	for k, v := range cert {
		signed[k] = v
	}
	signed["signature"] = map[string]interface{}{
		"alg":              AlgEd25519,
		"pubkey_id":        pubKeyID,
		"sig":              base64.StdEncoding.EncodeToString(sig),
		"canonicalization": CanonicalizationScheme,
	}
	return signed, nil
}

// VerifyCertificate checks the Ed25519 signature on cert against pub.
// The canonical bytes are recomputed with the signature stripped, exactly
// as they were signed. Returns false (with no error) for a cryptographic
// mismatch; errors indicate a malformed signature block.
func VerifyCertificate(cert map[string]interface{}, pub ed25519.PublicKey) (bool, error) {
	sigObj, ok := cert["signature"].(map[string]interface{})
	if !ok {
		return false, errors.New("certificate has no signature object")
	}

	alg, _ := sigObj["alg"].(string)
	if alg != AlgEd25519 {
		return false, fmt.Errorf("unsupported signature algorithm %q", alg)
	}

	sigB64, _ := sigObj["sig"].(string)
	if sigB64 == "" {
		return false, errors.New("signature.sig missing or empty")
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("signature.sig is not valid base64: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("signature length %d, want %d", len(sig), ed25519.SignatureSize)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid Ed25519 public key size %d", len(pub))
	}

	canonical, err := canonicalize.UnsignedBytes(cert)
	if err != nil {
		return false, fmt.Errorf("canonicalize for verification: %w", err)
	}

	return ed25519.Verify(pub, canonical, sig), nil
}

// SignaturePubKeyID extracts signature.pubkey_id, or "" when absent.
func SignaturePubKeyID(cert map[string]interface{}) string {
	sigObj, ok := cert["signature"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := sigObj["pubkey_id"].(string)
	return id
}

func hasSignature(cert map[string]interface{}) bool {
	sig, ok := cert["signature"]
	if !ok || sig == nil {
		return false
	}
	if m, ok := sig.(map[string]interface{}); ok {
		return len(m) > 0
	}
	return true
}
