package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/securewipe/securewipe/pkg/backup"
	"github.com/securewipe/securewipe/pkg/cert"
	"github.com/securewipe/securewipe/pkg/config"
	"github.com/securewipe/securewipe/pkg/crypto"
	"github.com/securewipe/securewipe/pkg/device"
	"github.com/securewipe/securewipe/pkg/schema"
	"github.com/securewipe/securewipe/pkg/store"
)

// stringList collects repeatable string flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// runBackupCmd encrypts personal files to a destination and issues a
// backup certificate.
//
// Exit codes: 0 = backup PASS, 1 = backup FAIL, 2 = runtime error.
func runBackupCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("backup", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		sources     stringList
		dest        string
		devicePath  string
		profileName string
		samples     int
		sign        bool
		keyPath     string
	)
	cmd.Var(&sources, "source", "Source path to back up (repeatable; defaults to profile, then home folders)")
	cmd.StringVar(&dest, "dest", "", "Destination directory (REQUIRED unless the profile names one)")
	cmd.StringVar(&devicePath, "device", "", "Block device the sources live on, for the certificate")
	cmd.StringVar(&profileName, "profile", "default", "Profile under the securewipe home supplying defaults")
	cmd.IntVar(&samples, "samples", 0, "Verification sample count (default: profile, floor of 5)")
	cmd.BoolVar(&sign, "sign", false, "Sign the certificate after issuing")
	cmd.StringVar(&keyPath, "key", "", "Signing key path (default: "+config.EnvSignKeyPath+")")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	logger := newLogger(stderr, cfg.LogLevel)
	ctx := context.Background()

	prof, err := config.LoadProfile(cfg.Home, profileName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(sources) == 0 {
		sources = prof.BackupSources
	}
	if dest == "" {
		dest = prof.BackupDest
	}
	if samples <= 0 {
		samples = prof.SampleCount
	}
	if dest == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dest is required")
		return 2
	}

	res, err := backup.New(logger).Run(ctx, backup.Options{
		Sources:     sources,
		Destination: dest,
		SampleCount: samples,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: backup failed: %v\n", err)
		return 2
	}

	dev := describeDevice(ctx, devicePath, logger)
	certificate := cert.NewBuilder().BackupCertificate(dev, res, sources)

	if code := validateAndFinish(ctx, certificate, schema.CertTypeBackup, sign, keyPath, cfg, stdout, stderr, logger); code != 0 {
		return code
	}
	if !res.Passed {
		return 1
	}
	return 0
}

// describeDevice resolves the certificate's device block. Discovery
// failures degrade to a path-only record; the backup itself already
// succeeded.
func describeDevice(ctx context.Context, path string, logger *slog.Logger) *device.Device {
	if path == "" {
		return &device.Device{}
	}
	devices, err := device.Discover(ctx, device.ExecRunner{})
	if err != nil {
		logger.Warn("device discovery failed, recording path only", "path", path, "error", err)
		return &device.Device{Path: path}
	}
	d, err := device.Find(devices, path)
	if err != nil {
		logger.Warn("device not found, recording path only", "path", path)
		return &device.Device{Path: path}
	}
	return d
}

// validateAndFinish schema-checks the certificate, optionally signs it,
// persists it and prints it. Shared by the backup and wipe commands.
func validateAndFinish(ctx context.Context, certificate map[string]interface{}, certType string,
	sign bool, keyPath string, cfg *config.Config, stdout, stderr io.Writer,
	logger *slog.Logger) int {

	validator, err := schema.New()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	res, err := validator.Validate(certificate, certType)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if !res.Valid {
		for _, e := range res.Errors {
			logger.Error("certificate schema violation", "error", e)
		}
		_, _ = fmt.Fprintln(stderr, "Error: issued certificate does not validate; refusing to continue")
		return 2
	}

	final := certificate
	if sign {
		path, err := crypto.ResolveKeyPath(keyPath, config.EnvSignKeyPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		key, err := crypto.LoadPrivateKey(path)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer crypto.Zeroize(key)

		final, err = crypto.SignCertificate(certificate, key, crypto.RootPubKeyID, false)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: signing failed: %v\n", err)
			return 2
		}
		logger.Info("certificate signed", "pubkey_id", crypto.RootPubKeyID)
	}

	s, err := store.Open(cfg.Home)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer s.Close()
	if err := s.Save(ctx, final); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	certID, _ := final["cert_id"].(string)
	logger.Info("certificate stored", "cert_id", certID, "path", s.ArtifactPath(certID))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
