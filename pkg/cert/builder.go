// Package cert assembles backup and wipe certificate values. Builders
// are pure: no I/O, no signing; they only shape data the rest of the
// system produced.
package cert

import (
	"time"

	"github.com/google/uuid"

	"github.com/securewipe/securewipe/pkg/backup"
	"github.com/securewipe/securewipe/pkg/device"
	"github.com/securewipe/securewipe/pkg/wipe"
)

// Version is the certificate format version stamped on every cert.
const Version = "v1.0.0"

// Issuer identifies the organization standing behind a certificate.
type Issuer struct {
	Organization string
	ToolName     string
	ToolVersion  string
	Country      string
}

// DefaultIssuer matches the values shipped with the tool.
func DefaultIssuer() Issuer {
	return Issuer{
		Organization: "SecureWipe (SIH)",
		ToolName:     "securewipe",
		ToolVersion:  Version,
		Country:      "IN",
	}
}

// Builder creates certificates with injectable identity and time
// sources, so outputs are fully reproducible under test.
type Builder struct {
	Issuer Issuer
	Now    func() time.Time
	NewID  func() string
}

// NewBuilder returns a builder with the default issuer, wall clock and
// UUID identifiers.
func NewBuilder() *Builder {
	return &Builder{
		Issuer: DefaultIssuer(),
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
	}
}

func (b *Builder) common(certType string) map[string]interface{} {
	return map[string]interface{}{
		"cert_type":           certType,
		"cert_id":             certType + "_" + b.NewID(),
		"certificate_version": Version,
		"created_at":          b.Now().UTC().Format(time.RFC3339),
		"issuer": map[string]interface{}{
			"organization": b.Issuer.Organization,
			"tool_name":    b.Issuer.ToolName,
			"tool_version": b.Issuer.ToolVersion,
			"country":      b.Issuer.Country,
		},
	}
}

func deviceBlock(d *device.Device) map[string]interface{} {
	model, serial, bus := d.Model, d.Serial, d.Bus
	if model == "" {
		model = "Unknown"
	}
	if serial == "" {
		serial = "N/A"
	}
	if bus == "" {
		bus = "UNKNOWN"
	}
	return map[string]interface{}{
		"model":          model,
		"serial":         serial,
		"bus":            bus,
		"path":           d.Path,
		"capacity_bytes": d.CapacityBytes,
	}
}

// BackupCertificate shapes one backup run into a certificate value.
func (b *Builder) BackupCertificate(d *device.Device, res *backup.Result, sources []string) map[string]interface{} {
	cert := b.common("backup")
	cert["device"] = deviceBlock(d)
	cert["files_summary"] = map[string]interface{}{
		"count":          int64(res.Manifest.Count()),
		"personal_bytes": res.Manifest.TotalBytes,
		"included_paths": sources,
	}
	cert["destination"] = map[string]interface{}{
		"type": string(res.DestinationType),
		"path": res.Destination,
	}
	cert["crypto"] = map[string]interface{}{
		"alg":             res.EncryptionAlg,
		"manifest_sha256": res.ManifestSHA256,
		"key_management":  "ephemeral_session_key",
	}
	cert["verification"] = map[string]interface{}{
		"strategy": "sampled_files",
		"samples":  int64(res.Verification.Samples),
		"failures": int64(res.Verification.Failures),
	}
	cert["result"] = resultString(res.Passed)
	cert["exceptions"] = map[string]interface{}{"text": "None"}
	return cert
}

// WipeCertificate shapes one wipe outcome into a certificate value.
// backupCertID links the wipe back to a preceding backup when set.
func (b *Builder) WipeCertificate(d *device.Device, out *wipe.Outcome, backupCertID string) map[string]interface{} {
	cert := b.common("wipe")
	cert["device"] = deviceBlock(d)

	policy := map[string]interface{}{
		"nist_level": string(out.Plan.Policy),
		"method":     out.Method,
	}
	if out.FallbackFrom != "" {
		policy["fallback_from"] = out.FallbackFrom
		policy["fallback_reason"] = out.FallbackReason
	}
	cert["policy"] = policy

	cert["hpa_dco"] = map[string]interface{}{
		"cleared":  out.HpaDco.Cleared,
		"commands": stringSlice(out.HpaDco.Commands),
	}

	commands := make([]interface{}, 0, len(out.Logs))
	for _, entry := range out.Logs {
		commands = append(commands, map[string]interface{}{
			"cmd":  entry.Cmd,
			"exit": int64(entry.Exit),
			"ms":   entry.Ms,
		})
	}
	cert["commands"] = commands

	strategy := out.Verify.Strategy
	if strategy == "" {
		// Aborted runs never sampled; the certificate still records the
		// strategy the plan would have used.
		strategy = "random_sectors"
	}
	cert["verify"] = map[string]interface{}{
		"strategy": strategy,
		"samples":  int64(out.Verify.Samples),
		"failures": int64(out.Verify.Failures),
		"result":   resultString(out.Verify.Passed()),
	}

	if backupCertID != "" {
		cert["linkage"] = map[string]interface{}{"backup_cert_id": backupCertID}
	}
	if len(out.Plan.DestroyGuidance) > 0 {
		cert["destroy_guidance"] = stringSlice(out.Plan.DestroyGuidance)
	}

	cert["result"] = out.Result
	return cert
}

func resultString(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func stringSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
