package wipe

import (
	"fmt"

	"github.com/securewipe/securewipe/pkg/device"
)

// GuardContext carries everything the guard chain inspects. Callers
// must populate Risk from a fresh classification taken immediately
// before execution, never from a cached discovery.
type GuardContext struct {
	// DangerEnv is true when the environment-level acknowledgment
	// (SECUREWIPE_DANGER=1) is set.
	DangerEnv bool
	// DangerFlag is true when the CLI-level acknowledgment flag was
	// passed.
	DangerFlag bool
	// DeviceAccessible is true when the target node exists and is
	// openable.
	DeviceAccessible bool
	// Risk is the device's freshly re-evaluated risk level.
	Risk device.RiskLevel
	// ISOMode is true when running from a live/ISO environment where
	// the root filesystem is not on the target media.
	ISOMode bool
	// CriticalOverride is the explicit operator override for CRITICAL
	// devices; it only matters together with ISOMode.
	CriticalOverride bool
	// Confirmation is the operator's typed confirmation phrase.
	Confirmation string
	// Serial is the target device serial the confirmation must name.
	Serial string
}

// ConfirmationPhrase is the exact string an operator must type to arm
// a wipe of the device with the given serial.
func ConfirmationPhrase(serial string) string {
	return "WIPE " + serial
}

// EvaluateGuards runs the four independent safety gates in order and
// returns every violation. Execution may proceed only on an empty
// result.
func EvaluateGuards(gc GuardContext) GuardViolations {
	var violations GuardViolations

	if !gc.DangerEnv || !gc.DangerFlag {
		violations = append(violations, &GuardViolationError{
			Guard:  "danger_acknowledgment",
			Reason: "both SECUREWIPE_DANGER=1 and the destruction acknowledgment flag are required",
		})
	}

	if !gc.DeviceAccessible {
		violations = append(violations, &GuardViolationError{
			Guard:  "device_accessible",
			Reason: "target device does not exist or is not accessible",
		})
	}

	if gc.Risk == device.RiskCritical && !(gc.ISOMode && gc.CriticalOverride) {
		violations = append(violations, &GuardViolationError{
			Guard:  "risk_level",
			Reason: "device is CRITICAL (hosts the running system); requires ISO mode plus explicit override",
		})
	}

	if want := ConfirmationPhrase(gc.Serial); gc.Confirmation != want {
		violations = append(violations, &GuardViolationError{
			Guard:  "typed_confirmation",
			Reason: fmt.Sprintf("confirmation must be exactly %q", want),
		})
	}

	return violations
}
