package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestBuildWalksTree(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.txt":          "alpha",
		"docs/b.txt":     "bravo",
		"docs/sub/c.txt": "charlie",
	})

	m, err := Build([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, int64(len("alpha")+len("bravo")+len("charlie")), m.TotalBytes)
	assert.Contains(t, m.Files, "a.txt")
	assert.Contains(t, m.Files, "docs/b.txt")
	assert.Contains(t, m.Files, "docs/sub/c.txt")
	for _, sum := range m.Files {
		assert.Len(t, sum, 64)
	}
}

func TestBuildSingleFileSource(t *testing.T) {
	dir := writeTree(t, map[string]string{"lone.txt": "data"})

	m, err := Build([]string{filepath.Join(dir, "lone.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
	assert.Contains(t, m.Files, "lone.txt")
}

func TestBuildMissingSource(t *testing.T) {
	_, err := Build([]string{"/nonexistent/path"})
	assert.Error(t, err)
}

func TestComputeHashDeterministic(t *testing.T) {
	m := &Manifest{
		CreatedAt: "2023-01-01T00:00:00Z",
		Files: map[string]string{
			"b.txt": "bbbb",
			"a.txt": "aaaa",
		},
	}
	// Insertion order must not matter; only sorted content does.
	other := &Manifest{
		CreatedAt: "2023-01-01T00:00:00Z",
		Files: map[string]string{
			"a.txt": "aaaa",
			"b.txt": "bbbb",
		},
	}
	assert.Equal(t, m.ComputeHash(), other.ComputeHash())
	assert.Len(t, m.ComputeHash(), 64)
}

func TestComputeHashSensitive(t *testing.T) {
	base := &Manifest{CreatedAt: "2023-01-01T00:00:00Z", Files: map[string]string{"a": "1"}}

	changedFile := &Manifest{CreatedAt: base.CreatedAt, Files: map[string]string{"a": "2"}}
	assert.NotEqual(t, base.ComputeHash(), changedFile.ComputeHash())

	changedTime := &Manifest{CreatedAt: "2024-01-01T00:00:00Z", Files: map[string]string{"a": "1"}}
	assert.NotEqual(t, base.ComputeHash(), changedTime.ComputeHash())
}

func TestSampleCheckIntactTree(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"1.txt": "one", "2.txt": "two", "3.txt": "three",
		"4.txt": "four", "5.txt": "five", "6.txt": "six",
	})
	m, err := Build([]string{dir})
	require.NoError(t, err)

	res, err := m.SampleCheck(dir, 3)
	require.NoError(t, err)
	// The floor lifts the requested 3 samples to 5.
	assert.Equal(t, 5, res.Samples)
	assert.Zero(t, res.Failures)
	assert.True(t, res.Passed())
}

func TestSampleCheckDetectsCorruption(t *testing.T) {
	dir := writeTree(t, map[string]string{"only.txt": "original"})
	m, err := Build([]string{dir})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.txt"), []byte("tampered"), 0o644))

	res, err := m.SampleCheck(dir, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Samples, "sample count is capped at the file count")
	assert.Equal(t, 1, res.Failures)
	assert.False(t, res.Passed())
}

func TestSampleCheckMissingFileFails(t *testing.T) {
	dir := writeTree(t, map[string]string{"gone.txt": "x"})
	m, err := Build([]string{dir})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))

	res, err := m.SampleCheck(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failures)
}

func TestSampleCheckOrigins(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	m, err := Build([]string{dir})
	require.NoError(t, err)

	res, err := m.SampleCheckOrigins(2)
	require.NoError(t, err)
	assert.True(t, res.Passed())

	// A deserialized manifest has no origins and cannot self-verify.
	bare := &Manifest{Files: map[string]string{"a.txt": "00"}}
	_, err = bare.SampleCheckOrigins(1)
	assert.Error(t, err)
}

func TestSampleCheckEmptyManifest(t *testing.T) {
	m := &Manifest{Files: map[string]string{}}
	res, err := m.SampleCheck(t.TempDir(), 5)
	require.NoError(t, err)
	assert.Zero(t, res.Samples)
	assert.True(t, res.Passed())
}

func TestHashFileMatchesKnownVector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	sum, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}
