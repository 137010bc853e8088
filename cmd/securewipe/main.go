// securewipe is the NIST SP 800-88 aligned sanitization CLI: discover
// block devices, back up personal data, wipe media and issue signed,
// verifiable certificates.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// stdin is swappable so tests can script the typed confirmation.
var stdin io.Reader = os.Stdin

// Run dispatches subcommands.
//
// Exit codes:
//
//	0 = success / PASS
//	1 = operation completed with FAIL, or verification failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "discover":
		return runDiscoverCmd(args[2:], stdout, stderr)
	case "backup":
		return runBackupCmd(args[2:], stdout, stderr)
	case "wipe":
		return runWipeCmd(args[2:], stdout, stderr)
	case "cert":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: securewipe cert <validate|sign|verify> [flags]")
			return 2
		}
		switch args[2] {
		case "validate":
			return runCertValidateCmd(args[3:], stdout, stderr)
		case "sign":
			return runCertSignCmd(args[3:], stdout, stderr)
		case "verify":
			return runCertVerifyCmd(args[3:], stdout, stderr)
		default:
			_, _ = fmt.Fprintf(stderr, "Unknown cert subcommand %q\n", args[2])
			return 2
		}
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `securewipe - storage sanitization with verifiable certificates

Usage:
  securewipe discover [--json]
  securewipe backup --dest DIR [--source DIR ...] [--device PATH]
                    [--profile NAME] [--sign]
  securewipe wipe --device PATH [--policy CLEAR|PURGE|DESTROY]
                  --i-understand-data-destruction [--confirm PHRASE]
                  [--backup-cert ID] [--critical-override] [--profile NAME]
  securewipe cert validate --cert FILE [--type backup|wipe]
  securewipe cert sign --cert FILE [--key FILE] [--out FILE] [--force]
  securewipe cert verify --cert FILE [--pubkey FILE] [--backup-cert FILE]
  securewipe keygen [--priv FILE] [--pub FILE]
  securewipe help

Destructive commands additionally require SECUREWIPE_DANGER=1 in the
environment and a typed confirmation of the form "WIPE <serial>".`)
}

// newLogger emits machine-parsable JSON log lines on stderr, keeping
// stdout clean for command output.
func newLogger(stderr io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: l}))
}
