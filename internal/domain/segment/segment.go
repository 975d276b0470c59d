package segment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agrodocs/consulta/internal/domain"
)

// BoundaryWindow is how far back (in runes) from the hard cut a chunk
// boundary may retreat to land on whitespace.
const BoundaryWindow = 300

// Piece is one chunk of a larger text. Start and End are rune offsets
// into the source text; Text is the span with surrounding whitespace
// trimmed, so len([]rune(Text)) may be smaller than End-Start.
type Piece struct {
	Text  string
	Start int
	End   int
}

// Segmenter splits text into fixed-size chunks with overlap. Boundaries
// prefer whitespace near the cut so words are not severed mid-token.
type Segmenter struct {
	chunkSize int
	overlap   int
}

// New validates the chunking parameters. chunkSize must be positive and
// overlap must satisfy 0 <= overlap < chunkSize.
func New(chunkSize, overlap int) (Segmenter, error) {
	if chunkSize <= 0 {
		return Segmenter{}, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidChunking, chunkSize)
	}
	if overlap < 0 {
		return Segmenter{}, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrInvalidChunking, overlap)
	}
	if overlap >= chunkSize {
		return Segmenter{}, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrInvalidChunking, overlap, chunkSize)
	}
	return Segmenter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the maximum chunk length in runes.
func (s Segmenter) ChunkSize() int { return s.chunkSize }

// Overlap returns the rune overlap between consecutive chunks.
func (s Segmenter) Overlap() int { return s.overlap }

// Split walks text and calls yield for every non-empty piece, in order.
// Returning false from yield stops the walk. Split holds no state between
// calls, so the same Segmenter can split any number of texts.
//
// Pieces whose span trims down to nothing are dropped, but the cursor
// still advances past them, so surrounding pieces keep their offsets.
func (s Segmenter) Split(text string, yield func(Piece) bool) {
	runes := []rune(text)
	n := len(runes)

	for i := 0; i < n; {
		end := i + s.chunkSize
		if end > n {
			end = n
		} else {
			// Retreat to the last whitespace inside the boundary window.
			// Positions at or below limit would shrink the chunk too far.
			limit := i + s.chunkSize - BoundaryWindow
			for j := end - 1; j > limit && j > i; j-- {
				if unicode.IsSpace(runes[j]) {
					end = j
					break
				}
			}
		}

		if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
			if !yield(Piece{Text: piece, Start: i, End: end}) {
				return
			}
		}

		if end == n {
			return
		}
		next := end - s.overlap
		if next <= i {
			// Large overlaps with an early whitespace cut could stall the
			// cursor; jump to the cut instead so the walk always finishes.
			next = end
		}
		i = next
	}
}

// SplitAll collects every piece of text into a slice.
func (s Segmenter) SplitAll(text string) []Piece {
	var pieces []Piece
	s.Split(text, func(p Piece) bool {
		pieces = append(pieces, p)
		return true
	})
	return pieces
}
