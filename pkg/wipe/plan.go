// Package wipe plans and executes NIST SP 800-88 aligned sanitization.
// Planning is pure; execution shells out through a CommandRunner and is
// gated by an independent guard chain.
package wipe

import (
	"fmt"

	"github.com/securewipe/securewipe/pkg/device"
	"github.com/securewipe/securewipe/pkg/sampler"
)

// Policy is the requested NIST SP 800-88 sanitization level.
type Policy string

const (
	PolicyClear   Policy = "CLEAR"
	PolicyPurge   Policy = "PURGE"
	PolicyDestroy Policy = "DESTROY"
)

// ParsePolicy maps user input onto a policy, defaulting to PURGE.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyClear, PolicyPurge, PolicyDestroy:
		return Policy(s), nil
	case "":
		return PolicyPurge, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want CLEAR, PURGE or DESTROY)", s)
	}
}

// Pattern is the fill written by an overwrite pass.
type Pattern string

const (
	PatternZero   Pattern = "zero"
	PatternRandom Pattern = "random"
)

// StepKind is the closed set of plan step types.
type StepKind int

const (
	StepHpaDcoClear StepKind = iota
	StepControllerSanitize
	StepOverwrite
	StepVerifyRead
)

func (k StepKind) String() string {
	switch k {
	case StepHpaDcoClear:
		return "hpa_dco_clear"
	case StepControllerSanitize:
		return "controller_sanitize"
	case StepOverwrite:
		return "overwrite"
	case StepVerifyRead:
		return "verify_read"
	default:
		return "unknown"
	}
}

// Step is one planned action. Fatal steps abort or trigger fallback on
// failure; non-fatal steps log and continue.
type Step struct {
	Kind    StepKind
	Method  string
	Pattern Pattern
	Fatal   bool
}

// Plan is a deterministic, ordered sanitization program for one device.
type Plan struct {
	Device          device.Device
	Policy          Policy
	Method          string
	FallbackFrom    string
	FallbackReason  string
	Steps           []Step
	Samples         int
	Expect          sampler.Expectation
	DestroyGuidance []string
}

// Sample counts per policy; stricter policies read more sectors.
const (
	samplesClear   = 32
	samplesPurge   = 128
	samplesDestroy = 256
)

// destroyGuidance is recorded as metadata on DESTROY certificates; the
// physical step itself is out of the software's hands.
var destroyGuidance = []string{
	"Media must be physically destroyed after this logical sanitization.",
	"Acceptable methods: shred, disintegrate, pulverize, or incinerate per NIST SP 800-88 Rev.1.",
	"Record the physical destruction method and operator on the certificate exceptions field.",
}

// BuildPlan derives the step list for a policy against a device with
// the given capabilities. The same inputs always yield the same plan.
func BuildPlan(d *device.Device, policy Policy, caps device.Capabilities) (*Plan, error) {
	p := &Plan{Device: *d, Policy: policy}

	hpaDco := Step{Kind: StepHpaDcoClear, Method: "hpa_dco_clear"}

	switch policy {
	case PolicyClear:
		p.Samples = samplesClear
		p.Expect = sampler.ExpectZero
		p.Method = "overwrite_zero"
		if caps.HPAPossible || caps.DCOPossible {
			p.Steps = append(p.Steps, hpaDco)
		}
		p.Steps = append(p.Steps,
			Step{Kind: StepOverwrite, Method: "overwrite_zero", Pattern: PatternZero, Fatal: true},
			Step{Kind: StepVerifyRead},
		)

	case PolicyPurge:
		p.Samples = samplesPurge
		p.Steps = append(p.Steps, hpaDco)
		if method, ok := sanitizeMethod(d.Bus, caps); ok {
			p.Method = method
			p.Expect = expectAfterSanitize(method)
			p.Steps = append(p.Steps,
				Step{Kind: StepControllerSanitize, Method: method, Fatal: true},
			)
		} else {
			p.Method = "overwrite_random"
			p.Expect = sampler.ExpectRandom
			p.FallbackFrom = "controller_sanitize"
			p.FallbackReason = "controller sanitize unsupported by device"
			p.Steps = append(p.Steps,
				Step{Kind: StepOverwrite, Method: "overwrite_random", Pattern: PatternRandom, Fatal: true},
			)
		}
		p.Steps = append(p.Steps, Step{Kind: StepVerifyRead})

	case PolicyDestroy:
		p.Samples = samplesDestroy
		p.Expect = sampler.ExpectRandom
		p.Method = "overwrite_multipass"
		p.DestroyGuidance = destroyGuidance
		if caps.HPAPossible || caps.DCOPossible {
			p.Steps = append(p.Steps, hpaDco)
		}
		p.Steps = append(p.Steps,
			Step{Kind: StepOverwrite, Method: "overwrite_random", Pattern: PatternRandom, Fatal: true},
			Step{Kind: StepOverwrite, Method: "overwrite_zero", Pattern: PatternZero, Fatal: true},
			Step{Kind: StepOverwrite, Method: "overwrite_random", Pattern: PatternRandom, Fatal: true},
			Step{Kind: StepVerifyRead},
		)

	default:
		return nil, fmt.Errorf("unknown policy %q", policy)
	}

	return p, nil
}

// sanitizeMethod picks the strongest controller-level erase the device
// advertises. Crypto erase outranks block erase outranks legacy secure
// erase.
func sanitizeMethod(bus string, caps device.Capabilities) (string, bool) {
	prefix := "ata"
	if bus == "NVMe" {
		prefix = "nvme"
	}
	switch {
	case caps.SanitizeCryptoErase:
		return prefix + "_sanitize_crypto_erase", true
	case caps.SanitizeBlockErase:
		return prefix + "_sanitize_block_erase", true
	case caps.SecureErase && bus != "NVMe":
		return "ata_secure_erase", true
	default:
		return "", false
	}
}

// expectAfterSanitize maps a sanitize method onto the sector state the
// sampler should find. Crypto scrambles leave random-looking data;
// erases read back zero.
func expectAfterSanitize(method string) sampler.Expectation {
	switch method {
	case "ata_sanitize_crypto_erase", "nvme_sanitize_crypto_erase":
		return sampler.ExpectRandom
	default:
		return sampler.ExpectZero
	}
}
