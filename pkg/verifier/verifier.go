// Package verifier performs offline certificate verification.
//
// It trusts only the cryptographic primitives (Ed25519, SHA-256, JCS)
// and the certificate schemas. No network access, no store write path;
// an adversarial third party can run it against exported JSON alone.
package verifier

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/securewipe/securewipe/pkg/crypto"
	"github.com/securewipe/securewipe/pkg/manifest"
	"github.com/securewipe/securewipe/pkg/schema"
)

// ChainStatus is the linkage axis outcome. Linkage differs from the
// other axes in having a genuine third state: a wipe certificate may
// reference a backup certificate the verifier was never given.
type ChainStatus string

const (
	ChainValid       ChainStatus = "valid"
	ChainInvalid     ChainStatus = "invalid"
	ChainNotVerified ChainStatus = "not_verified"
)

// Report carries the four independent verification axes plus a short
// human summary. Axes never mask each other; a bad signature does not
// hide a schema problem.
type Report struct {
	CertID         string      `json:"cert_id"`
	CertType       string      `json:"cert_type"`
	SchemaValid    bool        `json:"schema_valid"`
	SchemaErrors   []string    `json:"schema_errors,omitempty"`
	SignatureValid bool        `json:"signature_valid"`
	SignatureError string      `json:"signature_error,omitempty"`
	HashValid      bool        `json:"hash_valid"`
	HashError      string      `json:"hash_error,omitempty"`
	ChainValid     ChainStatus `json:"chain_valid"`
	ChainError     string      `json:"chain_error,omitempty"`
	Summary        string      `json:"summary"`
}

// Passed reports whether every applicable axis held. A not_verified
// chain does not fail the report; an invalid one does.
func (r *Report) Passed() bool {
	return r.SchemaValid && r.SignatureValid && r.HashValid && r.ChainValid != ChainInvalid
}

// Options feeds the optional axes. PublicKey is required; the rest
// widen coverage when supplied.
type Options struct {
	PublicKey ed25519.PublicKey
	// ExpectedPubKeyID must match the signature's pubkey_id; defaults
	// to the root key id.
	ExpectedPubKeyID string
	// Manifest, when supplied with a backup certificate, re-derives the
	// manifest digest and compares it to crypto.manifest_sha256.
	Manifest *manifest.Manifest
	// BackupCert resolves a wipe certificate's linkage reference.
	BackupCert map[string]interface{}
}

// Verifier checks certificates against the embedded schemas.
type Verifier struct {
	schemas *schema.Validator
}

// New builds a verifier; schema compilation happens once.
func New() (*Verifier, error) {
	v, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}
	return &Verifier{schemas: v}, nil
}

// Verify runs all four axes over the certificate and never short
// circuits: the report always covers everything that could be checked.
func (v *Verifier) Verify(cert map[string]interface{}, opts Options) (*Report, error) {
	if opts.PublicKey == nil {
		return nil, fmt.Errorf("public key required for verification")
	}
	if opts.ExpectedPubKeyID == "" {
		opts.ExpectedPubKeyID = crypto.RootPubKeyID
	}

	certType, _ := cert["cert_type"].(string)
	certID, _ := cert["cert_id"].(string)
	report := &Report{CertID: certID, CertType: certType}

	v.checkSchema(cert, certType, report)
	v.checkSignature(cert, opts, report)
	v.checkHash(cert, certType, opts, report)
	v.checkChain(cert, certType, opts, report)

	report.Summary = summarize(report)
	return report, nil
}

func (v *Verifier) checkSchema(cert map[string]interface{}, certType string, report *Report) {
	if certType == "" {
		report.SchemaErrors = []string{"certificate missing cert_type"}
		return
	}
	res, err := v.schemas.Validate(cert, certType)
	if err != nil {
		report.SchemaErrors = []string{err.Error()}
		return
	}
	report.SchemaValid = res.Valid
	report.SchemaErrors = res.Errors
}

func (v *Verifier) checkSignature(cert map[string]interface{}, opts Options, report *Report) {
	if id := crypto.SignaturePubKeyID(cert); id != opts.ExpectedPubKeyID {
		report.SignatureError = fmt.Sprintf("signature pubkey_id %q does not match expected %q",
			id, opts.ExpectedPubKeyID)
		return
	}
	ok, err := crypto.VerifyCertificate(cert, opts.PublicKey)
	if err != nil {
		report.SignatureError = err.Error()
		return
	}
	if !ok {
		report.SignatureError = "signature does not verify against the supplied public key"
		return
	}
	report.SignatureValid = true
}

// checkHash re-derives the manifest digest when source material was
// supplied. Without it, the recorded digest is accepted on its own:
// the signature already binds it.
func (v *Verifier) checkHash(cert map[string]interface{}, certType string, opts Options, report *Report) {
	if certType != schema.CertTypeBackup || opts.Manifest == nil {
		report.HashValid = true
		return
	}

	cryptoBlock, _ := cert["crypto"].(map[string]interface{})
	recorded, _ := cryptoBlock["manifest_sha256"].(string)
	if recorded == "" {
		report.HashError = "certificate carries no manifest_sha256 to compare"
		return
	}
	if computed := opts.Manifest.ComputeHash(); computed != recorded {
		report.HashError = fmt.Sprintf("manifest digest mismatch: recorded %s, computed %s",
			recorded, computed)
		return
	}
	report.HashValid = true
}

func (v *Verifier) checkChain(cert map[string]interface{}, certType string, opts Options, report *Report) {
	if certType != schema.CertTypeWipe {
		report.ChainValid = ChainValid
		return
	}
	linkage, ok := cert["linkage"].(map[string]interface{})
	if !ok {
		// A wipe without a backup reference is a complete chain of one.
		report.ChainValid = ChainValid
		return
	}
	wantID, _ := linkage["backup_cert_id"].(string)
	if wantID == "" {
		report.ChainValid = ChainInvalid
		report.ChainError = "linkage present but backup_cert_id is empty"
		return
	}
	if opts.BackupCert == nil {
		report.ChainValid = ChainNotVerified
		report.ChainError = fmt.Sprintf("referenced backup certificate %s not supplied", wantID)
		return
	}
	gotID, _ := opts.BackupCert["cert_id"].(string)
	if gotID != wantID {
		report.ChainValid = ChainInvalid
		report.ChainError = fmt.Sprintf("linkage names %s but supplied backup certificate is %s",
			wantID, gotID)
		return
	}
	report.ChainValid = ChainValid
}

func summarize(r *Report) string {
	if r.Passed() {
		if r.ChainValid == ChainNotVerified {
			return fmt.Sprintf("%s certificate %s: schema, signature and hash verified; linkage not verified",
				r.CertType, r.CertID)
		}
		return fmt.Sprintf("%s certificate %s: all checks passed", r.CertType, r.CertID)
	}
	return fmt.Sprintf("%s certificate %s: verification FAILED", r.CertType, r.CertID)
}

// LoadCertificate reads a certificate JSON file into the generic map
// form every component consumes.
func LoadCertificate(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate %s: %w", path, err)
	}
	var cert map[string]interface{}
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", path, err)
	}
	return cert, nil
}
