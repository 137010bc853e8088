package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/securewipe/securewipe/pkg/audit"
	"github.com/securewipe/securewipe/pkg/cert"
	"github.com/securewipe/securewipe/pkg/config"
	"github.com/securewipe/securewipe/pkg/device"
	"github.com/securewipe/securewipe/pkg/schema"
	"github.com/securewipe/securewipe/pkg/wipe"
)

// runWipeCmd sanitizes a device and issues a wipe certificate.
//
// Exit codes: 0 = wipe PASS, 1 = wipe FAIL or guard violation,
// 2 = runtime error.
func runWipeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("wipe", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		devicePath       string
		policyName       string
		profileName      string
		backupCertID     string
		dangerFlag       bool
		confirmation     string
		criticalOverride bool
		sign             bool
		keyPath          string
		stepTimeout      time.Duration
	)
	cmd.StringVar(&devicePath, "device", "", "Target block device (REQUIRED)")
	cmd.StringVar(&policyName, "policy", "", "NIST level: CLEAR, PURGE or DESTROY (default: profile, then PURGE)")
	cmd.StringVar(&profileName, "profile", "default", "Profile under the securewipe home supplying defaults")
	cmd.StringVar(&backupCertID, "backup-cert", "", "Backup certificate id to link")
	cmd.BoolVar(&dangerFlag, "i-understand-data-destruction", false, "Acknowledge this destroys data")
	cmd.StringVar(&confirmation, "confirm", "", `Typed confirmation, "WIPE <serial>" (prompted if absent)`)
	cmd.BoolVar(&criticalOverride, "critical-override", false, "Override for CRITICAL devices (ISO mode only)")
	cmd.BoolVar(&sign, "sign", false, "Sign the certificate after issuing")
	cmd.StringVar(&keyPath, "key", "", "Signing key path (default: "+config.EnvSignKeyPath+")")
	cmd.DurationVar(&stepTimeout, "step-timeout", 4*time.Hour, "Per-command timeout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if devicePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --device is required")
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
	if policyName == "" {
		policyName = prof.Policy
	}
	policy, err := wipe.ParsePolicy(policyName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	operator := operatorName(prof.Operator)

	// Risk is always re-evaluated here, immediately before execution.
	devices, err := device.Discover(ctx, device.ExecRunner{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	target, err := device.Find(devices, devicePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	caps := device.Enrich(ctx, device.ExecRunner{}, target)
	plan, err := wipe.BuildPlan(target, policy, caps)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger.Info("plan built", "device", target.Path, "policy", string(policy),
		"method", plan.Method, "samples", plan.Samples)

	if confirmation == "" {
		confirmation = promptConfirmation(target.Serial, stderr)
	}

	gc := wipe.GuardContext{
		DangerEnv:        cfg.Danger,
		DangerFlag:       dangerFlag,
		DeviceAccessible: deviceAccessible(target.Path),
		Risk:             target.Risk,
		ISOMode:          cfg.ISOMode,
		CriticalOverride: criticalOverride,
		Confirmation:     confirmation,
		Serial:           target.Serial,
	}

	trail := audit.NewTrail(nil)
	auditAppend(trail, logger, operator, "wipe_requested", target.Path,
		fmt.Sprintf("policy=%s method=%s", policy, plan.Method))

	executor := wipe.NewExecutor(wipe.ExecCommandRunner{}, logger, wipe.WithStepTimeout(stepTimeout))
	outcome, err := executor.Execute(ctx, plan, gc)
	if err != nil {
		var violations wipe.GuardViolations
		var vf *wipe.VerificationFailureError
		switch {
		case errors.As(err, &violations):
			for _, v := range violations {
				auditAppend(trail, logger, operator, "guard_violation", target.Path, v.Error())
				_, _ = fmt.Fprintf(stderr, "Blocked: %v\n", v)
			}
			exportTrail(trail, cfg, logger)
			return 1
		case errors.As(err, &vf):
			// The run completed; the media just failed its sampling.
			// It still gets a FAIL certificate below.
			auditAppend(trail, logger, operator, "verification_failed", target.Path, vf.Error())
			_, _ = fmt.Fprintf(stderr, "Verification failed: %v\n", vf)
		default:
			auditAppend(trail, logger, operator, "wipe_aborted", target.Path, err.Error())
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			if outcome == nil {
				exportTrail(trail, cfg, logger)
				return 2
			}
			// A partial run still gets a FAIL certificate below.
		}
	}

	for _, entry := range outcome.Logs {
		auditAppend(trail, logger, operator, "step_executed", target.Path,
			fmt.Sprintf("%s exit=%d ms=%d", entry.Cmd, entry.Exit, entry.Ms))
	}
	auditAppend(trail, logger, operator, "wipe_finished", target.Path, outcome.Result)
	exportTrail(trail, cfg, logger)

	certificate := cert.NewBuilder().WipeCertificate(target, outcome, backupCertID)
	if code := validateAndFinish(ctx, certificate, schema.CertTypeWipe, sign, keyPath, cfg, stdout, stderr, logger); code != 0 {
		return code
	}
	if outcome.Result != wipe.ResultPass {
		return 1
	}
	return 0
}

func promptConfirmation(serial string, stderr io.Writer) string {
	_, _ = fmt.Fprintf(stderr, "Type %q to proceed: ", wipe.ConfirmationPhrase(serial))
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func deviceAccessible(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func auditAppend(trail *audit.Trail, logger *slog.Logger, operator, action, device, details string) {
	if _, err := trail.Append(operator, action, device, details); err != nil {
		logger.Warn("audit append failed", "action", action, "error", err)
	}
}

// operatorName prefers the profile's operator, then the login user.
func operatorName(profileOperator string) string {
	if profileOperator != "" {
		return profileOperator
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func exportTrail(trail *audit.Trail, cfg *config.Config, logger *slog.Logger) {
	dir := filepath.Join(cfg.Home, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("audit export failed", "error", err)
		return
	}
	name := fmt.Sprintf("trail_%s.json", time.Now().UTC().Format("20060102T150405Z"))
	if err := trail.Export(filepath.Join(dir, name)); err != nil {
		logger.Warn("audit export failed", "error", err)
	}
}
