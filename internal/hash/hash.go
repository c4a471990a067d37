// Package hash provides file checksums for snapshot entries.
//
// Every regular file in a snapshot carries a digest formatted as
// "<algorithm>:<lowercase hex>". Three algorithms are supported: xxh3_64 (a
// fast non-cryptographic 64-bit hash), sha256 and blake3 (both 256-bit). Files
// are streamed through the hash in fixed-size chunks so that peak memory does
// not grow with file size. A fake implementation is provided for testing.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	gohash "hash"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"lukechampine.com/blake3"
)

// Algorithm names a supported checksum algorithm.
type Algorithm string

const (
	// XXH3 is the 64-bit xxHash3 digest (16 hex characters).
	XXH3 Algorithm = "xxh3_64"

	// SHA256 is the SHA-256 digest (64 hex characters).
	SHA256 Algorithm = "sha256"

	// Blake3 is the 256-bit BLAKE3 digest (64 hex characters).
	Blake3 Algorithm = "blake3"
)

// Default is the algorithm used when none is configured.
const Default = XXH3

// chunkSize bounds how much of a file is held in memory while hashing.
const chunkSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

// Algorithms returns all supported algorithms in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{XXH3, SHA256, Blake3}
}

// ParseAlgorithm parses an algorithm name case-insensitively.
// The aliases "xxh3" and "xxhash" resolve to xxh3_64.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xxh3_64", "xxh3", "xxhash":
		return XXH3, nil
	case "sha256", "sha-256":
		return SHA256, nil
	case "blake3":
		return Blake3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// HexLen returns the number of hex characters in a digest produced by a.
func (a Algorithm) HexLen() int {
	switch a {
	case XXH3:
		return 16
	case SHA256, Blake3:
		return 64
	default:
		return 0
	}
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	return a.HexLen() > 0
}

func (a Algorithm) String() string {
	return string(a)
}

// Prefix returns the "<algorithm>:" prefix of digests produced by a.
func (a Algorithm) Prefix() string {
	return string(a) + ":"
}

// Hasher provides an abstraction for file hashing operations.
type Hasher interface {
	// HashFile computes the formatted checksum of the file at the given path.
	HashFile(path string) (string, error)

	// Algorithm returns the algorithm this hasher produces.
	Algorithm() Algorithm
}

// New returns the Hasher for the given algorithm.
func New(alg Algorithm) (Hasher, error) {
	switch alg {
	case XXH3:
		return NewXXH3Hasher(), nil
	case SHA256:
		return NewSHA256Hasher(), nil
	case Blake3:
		return NewBlake3Hasher(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(alg))
	}
}

// SHA256Hasher implements Hasher using SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// HashFile computes the SHA-256 checksum of the file at the given path.
func (h *SHA256Hasher) HashFile(path string) (string, error) {
	sum, err := digestFile(path, sha256.New())
	if err != nil {
		return "", err
	}
	return SHA256.Prefix() + hex.EncodeToString(sum), nil
}

func (h *SHA256Hasher) Algorithm() Algorithm { return SHA256 }

// Blake3Hasher implements Hasher using BLAKE3 with a 32-byte output.
type Blake3Hasher struct{}

// NewBlake3Hasher creates a new Blake3Hasher.
func NewBlake3Hasher() *Blake3Hasher {
	return &Blake3Hasher{}
}

// HashFile computes the BLAKE3 checksum of the file at the given path.
func (h *Blake3Hasher) HashFile(path string) (string, error) {
	sum, err := digestFile(path, blake3.New(32, nil))
	if err != nil {
		return "", err
	}
	return Blake3.Prefix() + hex.EncodeToString(sum), nil
}

func (h *Blake3Hasher) Algorithm() Algorithm { return Blake3 }

// XXH3Hasher implements Hasher using the 64-bit xxHash3 variant.
type XXH3Hasher struct{}

// NewXXH3Hasher creates a new XXH3Hasher.
func NewXXH3Hasher() *XXH3Hasher {
	return &XXH3Hasher{}
}

// HashFile computes the xxh3_64 checksum of the file at the given path.
func (h *XXH3Hasher) HashFile(path string) (string, error) {
	hasher := xxh3.New()
	if _, err := digestFile(path, hasher); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%016x", XXH3.Prefix(), hasher.Sum64()), nil
}

func (h *XXH3Hasher) Algorithm() Algorithm { return XXH3 }

func digestFile(path string, hasher gohash.Hash) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	buf := bufPool.Get().(*[]byte)
	defer bufPool.Put(buf)

	if _, err := io.CopyBuffer(hasher, file, *buf); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FakeHasher implements Hasher with deterministic hashes for testing.
type FakeHasher struct {
	mu     sync.Mutex
	hashes map[string]string
	errs   map[string]error
	alg    Algorithm
}

// NewFakeHasher creates a new FakeHasher reporting the given algorithm.
func NewFakeHasher(alg Algorithm) *FakeHasher {
	return &FakeHasher{
		hashes: make(map[string]string),
		errs:   make(map[string]error),
		alg:    alg,
	}
}

// SetHash sets the hash for a specific path (for testing).
func (h *FakeHasher) SetHash(path, hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes[path] = hash
}

// SetError makes HashFile fail for a specific path.
func (h *FakeHasher) SetError(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[path] = err
}

// HashFile returns the predetermined hash for the given path.
func (h *FakeHasher) HashFile(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.errs[path]; ok {
		return "", err
	}
	if hash, ok := h.hashes[path]; ok {
		return hash, nil
	}
	// Default hash if not set
	return h.alg.Prefix() + "fakehash", nil
}

func (h *FakeHasher) Algorithm() Algorithm { return h.alg }
