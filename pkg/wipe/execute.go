package wipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/securewipe/securewipe/pkg/sampler"
)

// CommandResult is the observable outcome of one external command.
type CommandResult struct {
	Exit   int
	Output string
}

// CommandRunner executes sanitization commands. Execution shells out
// through this seam so plans can be tested without touching hardware.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) (CommandResult, error)
}

// ExecCommandRunner runs commands on the host, splitting the command
// string on whitespace.
type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, cmd string) (CommandResult, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return CommandResult{Exit: -1}, fmt.Errorf("empty command")
	}
	out, err := exec.CommandContext(ctx, fields[0], fields[1:]...).CombinedOutput()
	res := CommandResult{Exit: 0, Output: string(out)}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.Exit = ee.ExitCode()
			return res, nil
		}
		res.Exit = -1
		return res, err
	}
	return res, nil
}

// blockDevice is the readable handle verification samples from.
type blockDevice interface {
	io.ReaderAt
	io.Closer
}

func openBlockDevice(path string) (blockDevice, error) {
	return os.Open(path)
}

// LogEntry records one executed command for the certificate.
type LogEntry struct {
	Cmd  string `json:"cmd"`
	Exit int    `json:"exit"`
	Ms   int64  `json:"ms"`
}

// HpaDcoStatus records the hidden-area clearing attempt.
type HpaDcoStatus struct {
	Cleared  bool     `json:"cleared"`
	Commands []string `json:"commands"`
}

// Outcome is the full record of one executed plan, PASS or FAIL.
type Outcome struct {
	Plan           *Plan
	Method         string
	FallbackFrom   string
	FallbackReason string
	HpaDco         HpaDcoStatus
	Logs           []LogEntry
	Verify         sampler.Result
	Result         string
}

const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// Executor runs plans, holding at most one in-flight destructive
// operation per device path. Independent devices proceed in parallel.
type Executor struct {
	runner      CommandRunner
	open        func(path string) (blockDevice, error)
	log         *slog.Logger
	stepTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]bool
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithStepTimeout bounds each external command. Zero means no bound
// beyond the caller's context.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithDeviceOpener overrides how the verification reader is opened.
func WithDeviceOpener(open func(path string) (io.ReaderAt, io.Closer, error)) ExecutorOption {
	return func(e *Executor) {
		e.open = func(path string) (blockDevice, error) {
			r, c, err := open(path)
			if err != nil {
				return nil, err
			}
			return struct {
				io.ReaderAt
				io.Closer
			}{r, c}, nil
		}
	}
}

// NewExecutor builds an executor over the given runner.
func NewExecutor(runner CommandRunner, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		runner:   runner,
		open:     openBlockDevice,
		log:      logger,
		inflight: map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) acquire(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[path] {
		return fmt.Errorf("%w: %s", ErrOperationInProgress, path)
	}
	e.inflight[path] = true
	return nil
}

func (e *Executor) release(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, path)
}

// Execute runs the plan. The guard chain is evaluated first; any
// violation aborts before a single destructive command is issued. A
// returned Outcome always reflects what actually ran, even on failure.
// A run whose steps all completed but whose sampling breached the
// failure threshold returns the FAIL outcome alongside a
// VerificationFailureError.
func (e *Executor) Execute(ctx context.Context, plan *Plan, gc GuardContext) (*Outcome, error) {
	if err := e.acquire(plan.Device.Path); err != nil {
		return nil, err
	}
	defer e.release(plan.Device.Path)

	if violations := EvaluateGuards(gc); len(violations) > 0 {
		for _, v := range violations {
			e.log.Warn("guard violation", "guard", v.Guard, "reason", v.Reason)
		}
		return nil, violations
	}

	out := &Outcome{
		Plan:           plan,
		Method:         plan.Method,
		FallbackFrom:   plan.FallbackFrom,
		FallbackReason: plan.FallbackReason,
		Result:         ResultFail,
	}
	expect := plan.Expect

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("aborted before %s: %w", step.Kind, err)
		}

		switch step.Kind {
		case StepHpaDcoClear:
			e.runHpaDco(ctx, plan, out)

		case StepControllerSanitize:
			entry, err := e.runCommand(ctx, sanitizeCommand(step.Method, plan.Device.Path))
			out.Logs = append(out.Logs, entry)
			if err != nil {
				return out, fmt.Errorf("sanitize step: %w", err)
			}
			if entry.Exit != 0 {
				// A sanitize the controller claimed to support but
				// refused to run degrades to an overwrite, same as an
				// unsupported one, with the cause on the record.
				e.log.Warn("controller sanitize failed, falling back to overwrite",
					"cmd", entry.Cmd, "exit", entry.Exit)
				out.Method = "overwrite_random"
				out.FallbackFrom = "controller_sanitize"
				out.FallbackReason = fmt.Sprintf("sanitize command failed (exit %d)", entry.Exit)
				expect = sampler.ExpectRandom

				fb, err := e.runCommand(ctx, overwriteCommand(PatternRandom, plan.Device.Path))
				out.Logs = append(out.Logs, fb)
				if err != nil {
					return out, fmt.Errorf("fallback overwrite: %w", err)
				}
				if fb.Exit != 0 {
					return out, &ExecutionFailureError{Cmd: fb.Cmd, Exit: fb.Exit}
				}
			}

		case StepOverwrite:
			entry, err := e.runCommand(ctx, overwriteCommand(step.Pattern, plan.Device.Path))
			out.Logs = append(out.Logs, entry)
			if err != nil {
				return out, fmt.Errorf("overwrite step: %w", err)
			}
			if entry.Exit != 0 {
				return out, &ExecutionFailureError{Cmd: entry.Cmd, Exit: entry.Exit}
			}

		case StepVerifyRead:
			if err := e.verify(ctx, plan, expect, out); err != nil {
				return out, err
			}
		}
	}

	if !out.Verify.Passed() {
		return out, &VerificationFailureError{
			Samples:  out.Verify.Samples,
			Failures: out.Verify.Failures,
		}
	}
	out.Result = ResultPass
	return out, nil
}

// runHpaDco attempts to clear hidden areas. Failure is never fatal;
// the status lands on the certificate either way.
func (e *Executor) runHpaDco(ctx context.Context, plan *Plan, out *Outcome) {
	cmds := hpaDcoCommands(plan.Device.Bus, plan.Device.Path)
	if len(cmds) == 0 {
		e.log.Debug("hpa/dco clearing not applicable", "bus", plan.Device.Bus,
			"cause", ErrCapabilityUnsupported)
		return
	}

	cleared := true
	for _, cmd := range cmds {
		entry, err := e.runCommand(ctx, cmd)
		out.Logs = append(out.Logs, entry)
		out.HpaDco.Commands = append(out.HpaDco.Commands, cmd)
		if err != nil || entry.Exit != 0 {
			cleared = false
			e.log.Warn("hpa/dco command failed, continuing", "cmd", cmd, "exit", entry.Exit)
		}
	}
	out.HpaDco.Cleared = cleared
}

func (e *Executor) verify(ctx context.Context, plan *Plan, expect sampler.Expectation, out *Outcome) error {
	dev, err := e.open(plan.Device.Path)
	if err != nil {
		return fmt.Errorf("open device for verification: %w", err)
	}
	defer dev.Close()

	seed, err := sampler.NewSeed()
	if err != nil {
		return err
	}
	res, err := sampler.SampleSectors(dev, plan.Device.CapacityBytes, plan.Samples, expect, seed)
	out.Verify = res
	if err != nil {
		return fmt.Errorf("verification sampling: %w", err)
	}
	e.log.Info("verification sampled", "samples", res.Samples, "failures", res.Failures)
	return nil
}

func (e *Executor) runCommand(ctx context.Context, cmd string) (LogEntry, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	e.log.Info("running step command", "cmd", cmd)
	start := time.Now()
	res, err := e.runner.Run(ctx, cmd)
	entry := LogEntry{Cmd: cmd, Exit: res.Exit, Ms: time.Since(start).Milliseconds()}
	if err != nil {
		entry.Exit = -1
		return entry, fmt.Errorf("run %q: %w", cmd, err)
	}
	return entry, nil
}

func hpaDcoCommands(bus, path string) []string {
	if bus != "SATA" {
		return nil
	}
	return []string{
		"hdparm -N p " + path,
		"hdparm --yes-i-know-what-i-am-doing --dco-restore " + path,
	}
}

func sanitizeCommand(method, path string) string {
	switch method {
	case "ata_sanitize_crypto_erase":
		return "hdparm --yes-i-know-what-i-am-doing --sanitize-crypto-scramble " + path
	case "ata_sanitize_block_erase":
		return "hdparm --yes-i-know-what-i-am-doing --sanitize-block-erase " + path
	case "ata_secure_erase":
		return "hdparm --user-master u --security-erase p " + path
	case "nvme_sanitize_crypto_erase":
		return "nvme sanitize " + path + " --sanact=4"
	case "nvme_sanitize_block_erase":
		return "nvme sanitize " + path + " --sanact=2"
	default:
		return ""
	}
}

func overwriteCommand(pattern Pattern, path string) string {
	src := "/dev/zero"
	if pattern == PatternRandom {
		src = "/dev/urandom"
	}
	return fmt.Sprintf("dd if=%s of=%s bs=1M conv=fsync oflag=direct", src, path)
}
