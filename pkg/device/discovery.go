package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// Runner executes an external command and returns its stdout. Discovery
// and enrichment shell out through this seam so tests can inject canned
// tool output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// flexInt64 tolerates lsblk versions that emit sizes as JSON strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse size %q: %w", s, err)
	}
	*f = flexInt64(n)
	return nil
}

// flexBool tolerates lsblk versions that emit booleans as "0"/"1".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(string(b), `"`) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

type lsblkNode struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Size        flexInt64   `json:"size"`
	Model       *string     `json:"model"`
	Serial      *string     `json:"serial"`
	Tran        *string     `json:"tran"`
	RM          flexBool    `json:"rm"`
	Mountpoint  *string     `json:"mountpoint"`
	Mountpoints []*string   `json:"mountpoints"`
	Children    []lsblkNode `json:"children"`
}

type lsblkReport struct {
	BlockDevices []lsblkNode `json:"blockdevices"`
}

// Discover lists whole disks via lsblk, folding partition mountpoints up
// into their parent device and classifying each device's risk.
func Discover(ctx context.Context, r Runner) ([]Device, error) {
	out, err := r.Run(ctx, "lsblk", "-J", "-b",
		"-o", "NAME,TYPE,SIZE,MODEL,SERIAL,TRAN,RM,MOUNTPOINT")
	if err != nil {
		return nil, fmt.Errorf("device discovery: %w", err)
	}
	return parseLsblk(out)
}

func parseLsblk(raw []byte) ([]Device, error) {
	var report lsblkReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("parse lsblk output: %w", err)
	}

	var devices []Device
	for _, node := range report.BlockDevices {
		if node.Type != "disk" {
			continue
		}
		mounts := collectMountpoints(node)
		d := Device{
			Path:          "/dev/" + node.Name,
			Model:         deref(node.Model),
			Serial:        deref(node.Serial),
			CapacityBytes: int64(node.Size),
			Bus:           NormalizeBus(deref(node.Tran)),
			Removable:     bool(node.RM),
			Mountpoints:   mounts,
			Risk:          Classify(mounts),
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// collectMountpoints walks the node and all descendants, deduplicating
// and sorting for stable output.
func collectMountpoints(node lsblkNode) []string {
	seen := map[string]bool{}
	var walk func(n lsblkNode)
	walk = func(n lsblkNode) {
		if mp := deref(n.Mountpoint); mp != "" {
			seen[mp] = true
		}
		for _, mp := range n.Mountpoints {
			if v := deref(mp); v != "" {
				seen[v] = true
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(node)

	out := make([]string, 0, len(seen))
	for mp := range seen {
		out = append(out, mp)
	}
	sort.Strings(out)
	return out
}

// Find returns the discovered device with the given path.
func Find(devices []Device, path string) (*Device, error) {
	for i := range devices {
		if devices[i].Path == path {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("device %s not found", path)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
