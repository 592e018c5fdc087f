package entropy

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// Default limits applied when Options fields are zero.
const (
	// DefaultMaxFileSize is the largest file the calculator will read (2 GiB).
	DefaultMaxFileSize int64 = 2147483648

	// DefaultChunkSize is the number of bytes scored as one independent unit.
	DefaultChunkSize = 2560000
)

// Failure kinds returned (wrapped) by Calculate.
var (
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrFileTooLarge        = errors.New("file too large")
	ErrIsADirectory        = errors.New("is a directory")
	ErrReadFailure         = errors.New("read failure")
)

// FileEntropy is the score of one file.
type FileEntropy struct {
	Path    string  `json:"path"`
	Entropy float64 `json:"entropy"`
	Size    int64   `json:"size"`

	// ContentType is the sniffed MIME type; empty unless detection is enabled.
	ContentType string `json:"content_type,omitempty"`
}

// Options configures a Calculator.
type Options struct {
	// MaxFileSize bounds memory use: the whole file is read at once.
	MaxFileSize int64

	// ChunkSize is the size of each independently scored slice.
	ChunkSize int

	// DetectContentType fills FileEntropy.ContentType from the file bytes.
	DetectContentType bool
}

// Calculator scores single files. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	maxFileSize       int64
	chunkSize         int
	detectContentType bool
}

// NewCalculator returns a Calculator, filling zero Options with the defaults.
func NewCalculator(opts Options) *Calculator {
	c := &Calculator{
		maxFileSize:       opts.MaxFileSize,
		chunkSize:         opts.ChunkSize,
		detectContentType: opts.DetectContentType,
	}
	if c.maxFileSize <= 0 {
		c.maxFileSize = DefaultMaxFileSize
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	return c
}

// MaxFileSize returns the effective size ceiling.
func (c *Calculator) MaxFileSize() int64 { return c.maxFileSize }

// ChunkSize returns the effective chunk size.
func (c *Calculator) ChunkSize() int { return c.chunkSize }

// Calculate reads path and returns its chunk-summed entropy.
func (c *Calculator) Calculate(path string) (FileEntropy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileEntropy{}, fmt.Errorf("%s: %w: %v", path, ErrMetadataUnavailable, err)
	}
	if info.Size() > c.maxFileSize {
		return FileEntropy{}, fmt.Errorf("%s: %w: %d > %d bytes",
			path, ErrFileTooLarge, info.Size(), c.maxFileSize)
	}
	if info.IsDir() {
		return FileEntropy{}, fmt.Errorf("%s: %w", path, ErrIsADirectory)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FileEntropy{}, fmt.Errorf("%s: %w: %v", path, ErrReadFailure, err)
	}

	fe := FileEntropy{
		Path:    path,
		Entropy: ChunkedEntropy(data, c.chunkSize),
		Size:    int64(len(data)),
	}
	if c.detectContentType {
		fe.ContentType = mimetype.Detect(data).String()
	}
	return fe, nil
}

// ChunkedEntropy splits data into chunkSize slices (the last may be shorter)
// and returns the sum of their Shannon entropies in bits. Empty data scores 0.
// A non-positive chunkSize scores data as a single chunk.
func ChunkedEntropy(data []byte, chunkSize int) float64 {
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	var total float64
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		total += chunkEntropy(data[off:end])
	}
	return total
}

// chunkEntropy is the Shannon entropy of one chunk. Zero counts contribute
// nothing.
func chunkEntropy(chunk []byte) float64 {
	var freq [256]uint64
	for _, b := range chunk {
		freq[b]++
	}

	n := float64(len(chunk))
	var entropy float64
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
