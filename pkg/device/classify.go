package device

import "strings"

// systemMountPrefixes are kernel plumbing trees; a mount under one of
// these never counts as user data.
var systemMountPrefixes = []string{"/sys", "/proc", "/dev", "/run"}

// Classify grades the wipe risk of a device from its mountpoints alone.
//
// A device holding the root filesystem is CRITICAL. Any other writable,
// non-system mountpoint makes it HIGH. Everything else, including fully
// unmounted devices, is SAFE.
func Classify(mountpoints []string) RiskLevel {
	risk := RiskSafe
	for _, mp := range mountpoints {
		if mp == "/" {
			return RiskCritical
		}
		if isUserMount(mp) {
			risk = RiskHigh
		}
	}
	return risk
}

func isUserMount(mp string) bool {
	if mp == "" || mp == "/boot/efi" {
		return false
	}
	for _, prefix := range systemMountPrefixes {
		if mp == prefix || strings.HasPrefix(mp, prefix+"/") {
			return false
		}
	}
	return true
}

// NormalizeBus maps raw lsblk transport names onto the labels used in
// certificates. Unknown transports are passed through uppercased.
func NormalizeBus(tran string) string {
	switch strings.ToLower(strings.TrimSpace(tran)) {
	case "sata", "ata":
		return "SATA"
	case "nvme":
		return "NVMe"
	case "usb":
		return "USB"
	case "":
		return "UNKNOWN"
	default:
		return strings.ToUpper(strings.TrimSpace(tran))
	}
}
