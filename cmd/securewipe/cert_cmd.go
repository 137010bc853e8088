package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/securewipe/securewipe/pkg/config"
	"github.com/securewipe/securewipe/pkg/crypto"
	"github.com/securewipe/securewipe/pkg/schema"
	"github.com/securewipe/securewipe/pkg/verifier"
)

// runCertValidateCmd checks a certificate file against its schema.
//
// Exit codes: 0 = valid, 1 = invalid, 2 = runtime error.
func runCertValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("cert validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var certPath, certType string
	cmd.StringVar(&certPath, "cert", "", "Certificate JSON file (REQUIRED)")
	cmd.StringVar(&certType, "type", "", "Certificate type (default: the file's cert_type)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if certPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --cert is required")
		return 2
	}

	certificate, err := verifier.LoadCertificate(certPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	validator, err := schema.New()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var res *schema.Result
	if certType != "" {
		res, err = validator.Validate(certificate, certType)
	} else {
		res, err = validator.ValidateAuto(certificate)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !res.Valid {
		for _, e := range res.Errors {
			_, _ = fmt.Fprintf(stdout, "INVALID %s\n", e)
		}
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "VALID")
	return 0
}

// runCertSignCmd signs a certificate file in place or to --out.
//
// Exit codes: 0 = signed, 2 = error (including already signed without
// --force).
func runCertSignCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("cert sign", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var certPath, keyPath, outPath string
	var force bool
	cmd.StringVar(&certPath, "cert", "", "Certificate JSON file (REQUIRED)")
	cmd.StringVar(&keyPath, "key", "", "Signing key path (default: "+config.EnvSignKeyPath+")")
	cmd.StringVar(&outPath, "out", "", "Output path (default: overwrite input)")
	cmd.BoolVar(&force, "force", false, "Re-sign an already signed certificate")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if certPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --cert is required")
		return 2
	}
	if outPath == "" {
		outPath = certPath
	}

	certificate, err := verifier.LoadCertificate(certPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	resolved, err := crypto.ResolveKeyPath(keyPath, config.EnvSignKeyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	key, err := crypto.LoadPrivateKey(resolved)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer crypto.Zeroize(key)

	signed, err := crypto.SignCertificate(certificate, key, crypto.RootPubKeyID, force)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	raw, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	certID, _ := signed["cert_id"].(string)
	_, _ = fmt.Fprintf(stdout, "signed %s -> %s\n", certID, outPath)
	return 0
}

// runCertVerifyCmd runs offline verification over all four axes.
//
// Exit codes: 0 = verified, 1 = verification failed, 2 = runtime error.
func runCertVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("cert verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var certPath, pubPath, backupPath string
	var jsonOut bool
	cmd.StringVar(&certPath, "cert", "", "Certificate JSON file (REQUIRED)")
	cmd.StringVar(&pubPath, "pubkey", "", "Public key PEM (default: "+config.EnvPubKeyPath+")")
	cmd.StringVar(&backupPath, "backup-cert", "", "Linked backup certificate file, for chain checks")
	cmd.BoolVar(&jsonOut, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if certPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --cert is required")
		return 2
	}

	resolved, err := crypto.ResolveKeyPath(pubPath, config.EnvPubKeyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	pub, err := crypto.LoadPublicKey(resolved)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	certificate, err := verifier.LoadCertificate(certPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	opts := verifier.Options{PublicKey: pub}
	if backupPath != "" {
		backupCert, err := verifier.LoadCertificate(backupPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		opts.BackupCert = backupCert
	}

	v, err := verifier.New()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	report, err := v.Verify(certificate, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		_, _ = fmt.Fprintf(stdout, "schema_valid:    %v\n", report.SchemaValid)
		_, _ = fmt.Fprintf(stdout, "signature_valid: %v\n", report.SignatureValid)
		_, _ = fmt.Fprintf(stdout, "hash_valid:      %v\n", report.HashValid)
		_, _ = fmt.Fprintf(stdout, "chain_valid:     %s\n", report.ChainValid)
		_, _ = fmt.Fprintln(stdout, report.Summary)
	}

	if !report.Passed() {
		return 1
	}
	return 0
}
