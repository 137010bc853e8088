package verifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securewipe/securewipe/pkg/backup"
	"github.com/securewipe/securewipe/pkg/cert"
	"github.com/securewipe/securewipe/pkg/crypto"
	"github.com/securewipe/securewipe/pkg/device"
	"github.com/securewipe/securewipe/pkg/manifest"
	"github.com/securewipe/securewipe/pkg/sampler"
	"github.com/securewipe/securewipe/pkg/wipe"
)

func testKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func testBuilder() *cert.Builder {
	b := cert.NewBuilder()
	b.Now = func() time.Time { return time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC) }
	return b
}

func testDevice() *device.Device {
	return &device.Device{
		Path:          "/dev/sda",
		Model:         "Samsung SSD 870",
		Serial:        "S5Y1NX0R123456",
		CapacityBytes: 500107862016,
		Bus:           "SATA",
	}
}

func signedWipeCert(t *testing.T, priv ed25519.PrivateKey, backupCertID string) map[string]interface{} {
	t.Helper()
	plan, err := wipe.BuildPlan(testDevice(), wipe.PolicyPurge,
		device.Capabilities{SanitizeCryptoErase: true})
	require.NoError(t, err)
	out := &wipe.Outcome{
		Plan:   plan,
		Method: plan.Method,
		HpaDco: wipe.HpaDcoStatus{Cleared: true, Commands: []string{"hdparm -N p /dev/sda"}},
		Logs:   []wipe.LogEntry{{Cmd: "hdparm --sanitize-crypto-scramble /dev/sda", Exit: 0, Ms: 900}},
		Verify: sampler.Result{Strategy: "random_sectors", Samples: 128, Failures: 0},
		Result: wipe.ResultPass,
	}
	unsigned := testBuilder().WipeCertificate(testDevice(), out, backupCertID)
	signed, err := crypto.SignCertificate(unsigned, priv, crypto.RootPubKeyID, false)
	require.NoError(t, err)
	return signed
}

func TestVerifySignedWipeCertAllAxes(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "")

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub})
	require.NoError(t, err)

	assert.True(t, report.SchemaValid, "schema errors: %v", report.SchemaErrors)
	assert.True(t, report.SignatureValid, report.SignatureError)
	assert.True(t, report.HashValid)
	assert.Equal(t, ChainValid, report.ChainValid)
	assert.True(t, report.Passed())
	assert.Contains(t, report.Summary, "all checks passed")
}

func TestVerifyTamperedCertFailsSignatureOnly(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "")
	signed["result"] = "FAIL" // flipped after signing

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub})
	require.NoError(t, err)

	assert.True(t, report.SchemaValid, "tampering kept the cert structurally valid")
	assert.False(t, report.SignatureValid)
	assert.False(t, report.Passed())
}

func TestVerifyWrongPubKeyID(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "")

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub, ExpectedPubKeyID: "other_key_v2"})
	require.NoError(t, err)

	assert.False(t, report.SignatureValid)
	assert.Contains(t, report.SignatureError, "pubkey_id")
}

func TestChainNotVerifiedWithoutBackupCert(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "backup_abc123")

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub})
	require.NoError(t, err)

	assert.Equal(t, ChainNotVerified, report.ChainValid)
	assert.True(t, report.Passed(), "not_verified linkage must not fail the report")
	assert.Contains(t, report.Summary, "linkage not verified")
}

func TestChainValidWithMatchingBackupCert(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "backup_abc123")

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{
		PublicKey:  pub,
		BackupCert: map[string]interface{}{"cert_id": "backup_abc123"},
	})
	require.NoError(t, err)
	assert.Equal(t, ChainValid, report.ChainValid)
}

func TestChainInvalidWithWrongBackupCert(t *testing.T) {
	pub, priv := testKeys(t)
	signed := signedWipeCert(t, priv, "backup_abc123")

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{
		PublicKey:  pub,
		BackupCert: map[string]interface{}{"cert_id": "backup_zzz999"},
	})
	require.NoError(t, err)
	assert.Equal(t, ChainInvalid, report.ChainValid)
	assert.False(t, report.Passed())
}

func TestVerifyRequiresPublicKey(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	_, err = v.Verify(map[string]interface{}{}, Options{})
	assert.Error(t, err)
}

// End to end: back up a real directory, build and sign the certificate,
// then verify every axis including the recomputed manifest digest.
func TestEndToEndBackupCertificate(t *testing.T) {
	src := t.TempDir()
	for _, f := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, f), []byte("content of "+f), 0o644))
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	res, err := backup.New(logger).Run(context.Background(), backup.Options{
		Sources:     []string{src},
		Destination: t.TempDir(),
		SampleCount: 5,
	})
	require.NoError(t, err)
	require.True(t, res.Passed)

	unsigned := testBuilder().BackupCertificate(testDevice(), res, []string{src})
	pub, priv := testKeys(t)
	signed, err := crypto.SignCertificate(unsigned, priv, crypto.RootPubKeyID, false)
	require.NoError(t, err)

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub, Manifest: res.Manifest})
	require.NoError(t, err)

	assert.True(t, report.SchemaValid, "schema errors: %v", report.SchemaErrors)
	assert.True(t, report.SignatureValid, report.SignatureError)
	assert.True(t, report.HashValid, report.HashError)
	assert.Equal(t, ChainValid, report.ChainValid)
	assert.True(t, report.Passed())
}

func TestHashMismatchDetected(t *testing.T) {
	pub, priv := testKeys(t)

	m := &manifest.Manifest{
		CreatedAt:  "2023-06-15T10:00:00Z",
		Files:      map[string]string{"a.txt": strings.Repeat("ab", 32)},
		TotalBytes: 100,
	}
	res := &backup.Result{
		Manifest:        m,
		ManifestSHA256:  m.ComputeHash(),
		Destination:     "/tmp/x",
		DestinationType: backup.DestOther,
		EncryptionAlg:   backup.EncryptionAlg,
		Verification:    manifest.SampleResult{Samples: 5},
		Passed:          true,
	}
	unsigned := testBuilder().BackupCertificate(testDevice(), res, nil)
	signed, err := crypto.SignCertificate(unsigned, priv, crypto.RootPubKeyID, false)
	require.NoError(t, err)

	// A different manifest than the one certified.
	other := &manifest.Manifest{CreatedAt: m.CreatedAt, Files: map[string]string{"b.txt": "00"}}

	v, err := New()
	require.NoError(t, err)
	report, err := v.Verify(signed, Options{PublicKey: pub, Manifest: other})
	require.NoError(t, err)

	assert.False(t, report.HashValid)
	assert.Contains(t, report.HashError, "mismatch")
	assert.True(t, report.SignatureValid, "hash axis is independent of the signature axis")
}

func TestLoadCertificateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cert.json")
	cert := map[string]interface{}{"cert_id": "x", "cert_type": "wipe"}
	raw, err := json.Marshal(cert)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	loaded, err := LoadCertificate(path)
	require.NoError(t, err)
	assert.Equal(t, "x", loaded["cert_id"])

	_, err = LoadCertificate(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadCertificate(path)
	assert.Error(t, err)
}
