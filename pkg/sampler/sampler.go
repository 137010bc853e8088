// Package sampler verifies sanitization by reading randomly chosen
// sectors and checking they match the expected post-wipe state.
package sampler

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/chacha20"
)

// SectorSize is the unit of verification reads.
const SectorSize = 512

// entropyThreshold is the minimum Shannon entropy (bits per byte) a
// sector must show to count as cryptographically scrambled.
const entropyThreshold = 7.0

// failureRateThreshold bounds the tolerated fraction of failed samples.
const failureRateThreshold = 0.05

// Expectation is the post-wipe state a sampled sector must satisfy.
type Expectation int

const (
	// ExpectZero requires every byte of the sector to be zero.
	ExpectZero Expectation = iota
	// ExpectRandom requires the sector to look like CSPRNG output.
	ExpectRandom
)

// Result summarizes one sampling pass.
type Result struct {
	Strategy string `json:"strategy"`
	Samples  int    `json:"samples"`
	Failures int    `json:"failures"`
}

// Passed reports whether the failure rate stayed under the threshold.
// A pass with zero samples is meaningless and fails.
func (r Result) Passed() bool {
	if r.Samples == 0 {
		return false
	}
	return float64(r.Failures)/float64(r.Samples) < failureRateThreshold
}

// offsetSource yields uniformly distributed sector offsets from a
// ChaCha20 keystream, so a run can be reproduced from its seed.
type offsetSource struct {
	cipher *chacha20.Cipher
	buf    [8]byte
}

func newOffsetSource(seed [32]byte) (*offsetSource, error) {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		return nil, err
	}
	return &offsetSource{cipher: c}, nil
}

// next returns a sector-aligned offset in [0, capacity-SectorSize].
func (o *offsetSource) next(capacity int64) int64 {
	sectors := capacity / SectorSize
	if sectors <= 0 {
		return 0
	}
	var zero [8]byte
	o.cipher.XORKeyStream(o.buf[:], zero[:])
	n := binary.LittleEndian.Uint64(o.buf[:])
	return int64(n%uint64(sectors)) * SectorSize
}

// NewSeed draws a fresh sampling seed from the system CSPRNG.
func NewSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("sampling seed: %w", err)
	}
	return seed, nil
}

// SampleSectors reads count random sectors from r and checks each one
// against expect. Short reads at the device tail count as failures.
func SampleSectors(r io.ReaderAt, capacity int64, count int, expect Expectation, seed [32]byte) (Result, error) {
	res := Result{Strategy: "random_sectors"}
	if capacity < SectorSize {
		return res, fmt.Errorf("capacity %d smaller than one sector", capacity)
	}
	if count <= 0 {
		return res, fmt.Errorf("sample count must be positive, got %d", count)
	}

	src, err := newOffsetSource(seed)
	if err != nil {
		return res, fmt.Errorf("init offset source: %w", err)
	}

	buf := make([]byte, SectorSize)
	for i := 0; i < count; i++ {
		off := src.next(capacity)
		res.Samples++
		n, err := r.ReadAt(buf, off)
		if err != nil && err != io.EOF {
			return res, fmt.Errorf("read sector at %d: %w", off, err)
		}
		if n < SectorSize || !sectorOK(buf, expect) {
			res.Failures++
		}
	}
	return res, nil
}

func sectorOK(sector []byte, expect Expectation) bool {
	switch expect {
	case ExpectZero:
		for _, b := range sector {
			if b != 0 {
				return false
			}
		}
		return true
	case ExpectRandom:
		return ShannonEntropy(sector) >= entropyThreshold
	default:
		return false
	}
}

// ShannonEntropy returns the empirical entropy of data in bits per byte.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}
