// Package device discovers block devices, normalizes their metadata and
// classifies each one by the risk of wiping it.
package device

// RiskLevel grades how dangerous it is to sanitize a device.
type RiskLevel string

const (
	// RiskCritical marks the device backing the running system root.
	RiskCritical RiskLevel = "CRITICAL"
	// RiskHigh marks devices with user-visible writable mounts.
	RiskHigh RiskLevel = "HIGH"
	// RiskSafe marks unmounted or system-plumbing-only devices.
	RiskSafe RiskLevel = "SAFE"
)

// Device is a normalized view of one whole block device. Partitions are
// folded in: Mountpoints collects every mountpoint of the device and its
// children.
type Device struct {
	Path          string    `json:"path"`
	Model         string    `json:"model"`
	Serial        string    `json:"serial"`
	CapacityBytes int64     `json:"capacity_bytes"`
	Bus           string    `json:"bus"`
	Removable     bool      `json:"removable"`
	Mountpoints   []string  `json:"mountpoints"`
	Risk          RiskLevel `json:"risk"`
}

// IsMounted reports whether any filesystem on the device is mounted.
func (d *Device) IsMounted() bool {
	return len(d.Mountpoints) > 0
}

// Capabilities describes the sanitize features a device controller
// advertises, gathered during enrichment.
type Capabilities struct {
	SanitizeCryptoErase bool `json:"sanitize_crypto_erase"`
	SanitizeBlockErase  bool `json:"sanitize_block_erase"`
	SecureErase         bool `json:"secure_erase"`
	HPAPossible         bool `json:"hpa_possible"`
	DCOPossible         bool `json:"dco_possible"`
	Frozen              bool `json:"frozen"`
}
