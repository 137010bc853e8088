package device

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Enrich fills in capability flags and missing identity fields by
// querying vendor tools. Tool failures are non-fatal; a device on a
// locked-down host simply reports no advertised capabilities.
func Enrich(ctx context.Context, r Runner, d *Device) Capabilities {
	var caps Capabilities
	switch d.Bus {
	case "NVMe":
		caps = enrichNVMe(ctx, r, d)
	default:
		caps = enrichATA(ctx, r, d)
	}
	if d.Model == "" || d.Serial == "" {
		fillFromSmartctl(ctx, r, d)
	}
	return caps
}

// enrichATA parses `hdparm -I` for sanitize and security-erase support.
func enrichATA(ctx context.Context, r Runner, d *Device) Capabilities {
	var caps Capabilities
	out, err := r.Run(ctx, "hdparm", "-I", d.Path)
	if err != nil {
		return caps
	}
	text := string(out)

	caps.SanitizeCryptoErase = strings.Contains(text, "CRYPTO_SCRAMBLE_EXT")
	caps.SanitizeBlockErase = strings.Contains(text, "BLOCK_ERASE_EXT")
	caps.SecureErase = strings.Contains(text, "supported: enhanced erase") ||
		strings.Contains(text, "SECURITY ERASE UNIT")
	caps.HPAPossible = strings.Contains(text, "Host Protected Area feature set")
	caps.DCOPossible = strings.Contains(text, "Device Configuration Overlay feature set")

	// "frozen" appears on its own line when set; "not frozen" when clear.
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "frozen" {
			caps.Frozen = true
		}
	}
	return caps
}

var sanicapRe = regexp.MustCompile(`sanicap\s*:\s*(0x[0-9a-fA-F]+|\d+)`)

// enrichNVMe parses `nvme id-ctrl` SANICAP bits: bit 0 crypto erase,
// bit 1 block erase, bit 2 overwrite.
func enrichNVMe(ctx context.Context, r Runner, d *Device) Capabilities {
	var caps Capabilities
	out, err := r.Run(ctx, "nvme", "id-ctrl", d.Path)
	if err != nil {
		return caps
	}

	m := sanicapRe.FindStringSubmatch(string(out))
	if m == nil {
		return caps
	}
	val, err := strconv.ParseUint(strings.TrimPrefix(m[1], "0x"), parseBase(m[1]), 64)
	if err != nil {
		return caps
	}
	caps.SanitizeCryptoErase = val&0x1 != 0
	caps.SanitizeBlockErase = val&0x2 != 0
	return caps
}

func parseBase(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

var (
	smartModelRe  = regexp.MustCompile(`(?m)^(?:Device Model|Model Number):\s*(.+)$`)
	smartSerialRe = regexp.MustCompile(`(?m)^Serial [Nn]umber:\s*(.+)$`)
)

func fillFromSmartctl(ctx context.Context, r Runner, d *Device) {
	out, err := r.Run(ctx, "smartctl", "-i", d.Path)
	if err != nil {
		return
	}
	text := string(out)
	if d.Model == "" {
		if m := smartModelRe.FindStringSubmatch(text); m != nil {
			d.Model = strings.TrimSpace(m[1])
		}
	}
	if d.Serial == "" {
		if m := smartSerialRe.FindStringSubmatch(text); m != nil {
			d.Serial = strings.TrimSpace(m[1])
		}
	}
}
