package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/securewipe/securewipe/pkg/wipe"
)

// Profile is an operator-editable wipe profile: default policy,
// backup sources and destination for unattended runs.
type Profile struct {
	Name          string   `yaml:"name"`
	Policy        string   `yaml:"policy"`
	BackupSources []string `yaml:"backup_sources,omitempty"`
	BackupDest    string   `yaml:"backup_dest,omitempty"`
	// SampleCount overrides the verification sample request for the
	// backup manifest check; the floor still applies.
	SampleCount int `yaml:"sample_count,omitempty"`
	// Operator is recorded on certificates and audit entries.
	Operator string `yaml:"operator,omitempty"`
}

// DefaultProfile is used when no profile file exists.
func DefaultProfile() *Profile {
	return &Profile{
		Name:     "default",
		Policy:   string(wipe.PolicyPurge),
		Operator: "Automated",
	}
}

// LoadProfile reads profile_<name>.yaml from dir, validating the
// policy value. A missing file for the "default" name is not an error.
func LoadProfile(dir, name string) (*Profile, error) {
	path := filepath.Join(dir, fmt.Sprintf("profile_%s.yaml", name))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && name == "default" {
			return DefaultProfile(), nil
		}
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	p := DefaultProfile()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if _, err := wipe.ParsePolicy(p.Policy); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}
