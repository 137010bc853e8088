package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, v := range []string{EnvDanger, EnvISOMode, EnvSignKeyPath, EnvPubKeyPath, EnvHome, EnvLogLevel} {
		t.Setenv(v, "")
	}
	// t.Setenv with "" still leaves the variable set; unset explicitly.
	os.Unsetenv(EnvHome)

	cfg := Load()
	assert.False(t, cfg.Danger)
	assert.False(t, cfg.ISOMode)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.Home, "SecureWipe")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv(EnvDanger, "1")
	t.Setenv(EnvISOMode, "1")
	t.Setenv(EnvSignKeyPath, "/keys/private.pem")
	t.Setenv(EnvPubKeyPath, "/keys/public.pem")
	t.Setenv(EnvHome, "/var/lib/securewipe")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg := Load()
	assert.True(t, cfg.Danger)
	assert.True(t, cfg.ISOMode)
	assert.Equal(t, "/keys/private.pem", cfg.SignKeyPath)
	assert.Equal(t, "/keys/public.pem", cfg.PubKeyPath)
	assert.Equal(t, "/var/lib/securewipe", cfg.Home)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestDangerRequiresExactValue(t *testing.T) {
	for _, v := range []string{"true", "yes", "0", "2"} {
		t.Setenv(EnvDanger, v)
		assert.False(t, Load().Danger, "value %q must not arm", v)
	}
	t.Setenv(EnvDanger, "1")
	assert.True(t, Load().Danger)
}

func TestLoadProfileFromYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
name: kiosk
policy: CLEAR
backup_sources:
  - /home/kiosk/Documents
backup_dest: /media/usb0/backup
sample_count: 10
operator: Front Desk
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_kiosk.yaml"), []byte(content), 0o644))

	p, err := LoadProfile(dir, "kiosk")
	require.NoError(t, err)
	assert.Equal(t, "kiosk", p.Name)
	assert.Equal(t, "CLEAR", p.Policy)
	assert.Equal(t, []string{"/home/kiosk/Documents"}, p.BackupSources)
	assert.Equal(t, 10, p.SampleCount)
	assert.Equal(t, "Front Desk", p.Operator)
}

func TestLoadProfileMissingDefault(t *testing.T) {
	p, err := LoadProfile(t.TempDir(), "default")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
	assert.Equal(t, "PURGE", p.Policy)
}

func TestLoadProfileMissingNamed(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "kiosk")
	assert.Error(t, err)
}

func TestLoadProfileRejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_bad.yaml"),
		[]byte("policy: SHRED\n"), 0o644))
	_, err := LoadProfile(dir, "bad")
	assert.Error(t, err)
}

func TestLoadProfileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_x.yaml"),
		[]byte("{not yaml::"), 0o644))
	_, err := LoadProfile(dir, "x")
	assert.Error(t, err)
}
