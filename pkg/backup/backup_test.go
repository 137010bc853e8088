package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"letter.txt":      "dear sir or madam",
		"photos/one.raw":  "not actually a photo",
		"photos/two.raw":  "also not a photo",
		"taxes/2023.csv":  "income,0",
		"taxes/notes.txt": "ask accountant",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestRunProducesVerifiedResult(t *testing.T) {
	src := writeSources(t)
	dest := t.TempDir()

	res, err := New(discardLogger()).Run(context.Background(), Options{
		Sources:     []string{src},
		Destination: dest,
		SampleCount: 5,
	})
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.Equal(t, 5, res.Manifest.Count())
	assert.Equal(t, EncryptionAlg, res.EncryptionAlg)
	assert.Len(t, res.ManifestSHA256, 64)
	assert.Equal(t, 5, res.Verification.Samples)
	assert.Zero(t, res.Verification.Failures)
}

func TestRunEncryptsIntoDestination(t *testing.T) {
	src := writeSources(t)
	dest := t.TempDir()

	_, err := New(discardLogger()).Run(context.Background(), Options{
		Sources:     []string{src},
		Destination: dest,
		SampleCount: 5,
	})
	require.NoError(t, err)

	encPath := filepath.Join(dest, filepath.Base(src), "letter.txt.enc")
	ciphertext, err := os.ReadFile(encPath)
	require.NoError(t, err)

	plaintext := []byte("dear sir or madam")
	assert.Len(t, ciphertext, len(plaintext))
	assert.NotEqual(t, plaintext, ciphertext, "output must not be plaintext")
}

// TestRunNeverReusesKeystream guards against the classic CTR two-time
// pad: if two files were encrypted from the same stream position,
// c1 XOR c2 XOR p1 would hand an attacker p2 with no key at all.
func TestRunNeverReusesKeystream(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()

	p1 := bytes.Repeat([]byte("A"), 32)
	p2 := []byte("TOP SECRET MEDICAL RECORD AAAAAA")
	require.Len(t, p2, 32)
	require.NoError(t, os.WriteFile(filepath.Join(src, "aa.bin"), p1, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bb.bin"), p2, 0o644))

	_, err := New(discardLogger()).Run(context.Background(), Options{
		Sources:     []string{src},
		Destination: dest,
	})
	require.NoError(t, err)

	c1, err := os.ReadFile(filepath.Join(dest, filepath.Base(src), "aa.bin.enc"))
	require.NoError(t, err)
	c2, err := os.ReadFile(filepath.Join(dest, filepath.Base(src), "bb.bin.enc"))
	require.NoError(t, err)
	require.Len(t, c1, 32)
	require.Len(t, c2, 32)

	recovered := make([]byte, 32)
	for i := range recovered {
		recovered[i] = c1[i] ^ c2[i] ^ p1[i]
	}
	assert.NotEqual(t, p2, recovered,
		"XOR of two ciphertexts and one known plaintext must not reveal the other plaintext")
}

func TestRunSingleFileSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "solo.txt")
	require.NoError(t, os.WriteFile(file, []byte("solo content"), 0o644))
	dest := t.TempDir()

	res, err := New(discardLogger()).Run(context.Background(), Options{
		Sources:     []string{file},
		Destination: dest,
	})
	require.NoError(t, err)
	assert.True(t, res.Passed)

	_, err = os.Stat(filepath.Join(dest, "solo.txt.enc"))
	assert.NoError(t, err)
}

func TestRunMissingSourceFails(t *testing.T) {
	_, err := New(discardLogger()).Run(context.Background(), Options{
		Sources:     []string{"/no/such/dir"},
		Destination: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	src := writeSources(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(discardLogger()).Run(ctx, Options{
		Sources:     []string{src},
		Destination: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestClassifyDestination(t *testing.T) {
	assert.Equal(t, DestUSB, ClassifyDestination("/media/usb0/backup"))
	assert.Equal(t, DestUSB, ClassifyDestination("/mnt/stick"))
	assert.Equal(t, DestUSB, ClassifyDestination("/tmp/USB-drive"))
	assert.Equal(t, DestNAS, ClassifyDestination("smb://nas.local/share"))
	assert.Equal(t, DestNAS, ClassifyDestination("/volumes/nas-backup"))
	assert.Equal(t, DestOther, ClassifyDestination("/tmp/backups"))
}

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources()
	require.Len(t, sources, 3)
	for _, s := range sources {
		assert.True(t, filepath.IsAbs(s))
	}
}
