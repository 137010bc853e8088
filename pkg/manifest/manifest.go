// Package manifest builds deterministic file manifests for backup sets
// and re-verifies them by sampling.
package manifest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/crypto/chacha20"
)

var randReader io.Reader = rand.Reader

// minSampleFloor is the smallest sample count used during verification
// when the manifest holds at least that many files.
const minSampleFloor = 5

// Manifest maps relative file paths to their SHA-256 content hashes.
type Manifest struct {
	CreatedAt  string            `json:"created_at"`
	Files      map[string]string `json:"files"`
	TotalBytes int64             `json:"total_bytes"`

	// origins remembers where each entry was hashed from, so a build
	// can be re-verified in place without knowing the source layout.
	origins map[string]string
}

// Count returns the number of files in the manifest.
func (m *Manifest) Count() int { return len(m.Files) }

// Build hashes every regular file under each source path. Directory
// sources are walked recursively; paths are recorded relative to their
// source root so the manifest is position independent.
func Build(sources []string) (*Manifest, error) {
	m := &Manifest{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Files:     map[string]string{},
		origins:   map[string]string{},
	}
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("stat source %s: %w", src, err)
		}
		if !info.IsDir() {
			if err := m.addFile(filepath.Base(src), src, info.Size()); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return m.addFile(filepath.ToSlash(rel), path, fi.Size())
		})
		if err != nil {
			return nil, fmt.Errorf("walk source %s: %w", src, err)
		}
	}
	return m, nil
}

func (m *Manifest) addFile(rel, abs string, size int64) error {
	sum, err := HashFile(abs)
	if err != nil {
		return err
	}
	m.Files[rel] = sum
	if m.origins != nil {
		m.origins[rel] = abs
	}
	m.TotalBytes += size
	return nil
}

// HashFile streams a file through SHA-256 and returns the lowercase hex
// digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeHash derives the manifest digest: entries sorted by path, each
// path and hash fed to SHA-256 in order, then the creation timestamp,
// the file count and the byte total as little-endian 64-bit values.
func (m *Manifest) ComputeHash() string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte(m.Files[p]))
	}
	h.Write([]byte(m.CreatedAt))
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(len(m.Files)))
	h.Write(le[:])
	binary.LittleEndian.PutUint64(le[:], uint64(m.TotalBytes))
	h.Write(le[:])
	return hex.EncodeToString(h.Sum(nil))
}

// SampleResult reports a sampled re-verification pass.
type SampleResult struct {
	Samples  int `json:"samples"`
	Failures int `json:"failures"`
}

// Passed reports whether every sampled file still matched its recorded
// hash.
func (r SampleResult) Passed() bool { return r.Failures == 0 }

// SampleCheck re-hashes up to n randomly chosen manifest entries under
// base and compares them against the recorded digests. At least
// minSampleFloor entries are checked when the manifest has that many.
func (m *Manifest) SampleCheck(base string, n int) (SampleResult, error) {
	return m.sample(n, func(rel string) string {
		return filepath.Join(base, rel)
	})
}

// SampleCheckOrigins re-verifies entries against the paths they were
// originally hashed from. Only valid on a manifest produced by Build in
// this process.
func (m *Manifest) SampleCheckOrigins(n int) (SampleResult, error) {
	if m.origins == nil {
		return SampleResult{}, fmt.Errorf("manifest has no recorded origins")
	}
	return m.sample(n, func(rel string) string {
		return m.origins[rel]
	})
}

func (m *Manifest) sample(n int, resolve func(rel string) string) (SampleResult, error) {
	var res SampleResult
	if len(m.Files) == 0 {
		return res, nil
	}

	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if n < minSampleFloor {
		n = minSampleFloor
	}
	if n > len(paths) {
		n = len(paths)
	}

	pick, err := newIndexPicker()
	if err != nil {
		return res, err
	}
	for i := 0; i < n; i++ {
		rel := paths[pick(len(paths))]
		res.Samples++
		sum, err := HashFile(resolve(rel))
		if err != nil || sum != m.Files[rel] {
			res.Failures++
		}
	}
	return res, nil
}

// newIndexPicker returns a uniform index source keyed from the system
// CSPRNG via a ChaCha20 keystream.
func newIndexPicker() (func(n int) int, error) {
	var key [32]byte
	if _, err := io.ReadFull(randReader, key[:]); err != nil {
		return nil, fmt.Errorf("sampling key: %w", err)
	}
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	var zero [8]byte
	return func(n int) int {
		c.XORKeyStream(buf[:], zero[:])
		return int(binary.LittleEndian.Uint64(buf[:]) % uint64(n))
	}, nil
}
