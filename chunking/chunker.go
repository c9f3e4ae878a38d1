// Package chunking splits long text into overlapping word windows so that
// each window fits the embedding model's input budget.
package chunking

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the number of words per chunk.
	DefaultSize = 300
	// DefaultOverlap is the number of words shared by consecutive chunks.
	DefaultOverlap = 50
)

// ErrInvalidWindow is returned when size and overlap do not leave a
// positive step between windows.
var ErrInvalidWindow = errors.New("chunk overlap must be less than chunk size")

// Chunker splits text with a fixed window size and overlap.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker with the given window. The step between windows
// (size - overlap) must be positive.
func New(size, overlap int) (*Chunker, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Default returns a Chunker using DefaultSize and DefaultOverlap.
func Default() *Chunker {
	return &Chunker{size: DefaultSize, overlap: DefaultOverlap}
}

// Size returns the window size in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap in words.
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text using the chunker's window.
func (c *Chunker) Split(text string) []string {
	return split(text, c.size, c.overlap)
}

// Split splits text into windows of size words advancing by size-overlap
// words. Text with at most size words is returned unchanged as a single
// chunk. Every word of the input appears in at least one chunk.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return split(text, size, overlap), nil
}

func split(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}
	}

	step := size - overlap
	chunks := make([]string, 0, (len(words)-overlap+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

func validateWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return nil
}
