package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/securewipe/securewipe/pkg/crypto"
)

// runKeygenCmd creates a fresh Ed25519 signing key pair.
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var privPath, pubPath string
	cmd.StringVar(&privPath, "priv", "securewipe_signing.pem", "Private key output path")
	cmd.StringVar(&pubPath, "pub", "securewipe_signing.pub.pem", "Public key output path")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if err := crypto.GenerateKeyPair(privPath, pubPath); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "wrote %s and %s\n", privPath, pubPath)
	return 0
}
