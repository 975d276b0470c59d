package answer

import "strings"

// PreviewLimit is the maximum citation preview length in runes.
const PreviewLimit = 300

// Citation points at one retrieved chunk that grounded an answer.
type Citation struct {
	filename   string
	page       int
	chunkIndex int
	preview    string
}

// NewCitation creates a Citation, deriving the preview from the chunk
// content: the first PreviewLimit runes with newlines collapsed to
// spaces, with a trailing ellipsis when the content was longer.
func NewCitation(filename string, page, chunkIndex int, content string) Citation {
	return Citation{
		filename:   filename,
		page:       page,
		chunkIndex: chunkIndex,
		preview:    preview(content),
	}
}

func preview(content string) string {
	runes := []rune(content)
	truncated := len(runes) > PreviewLimit
	if truncated {
		runes = runes[:PreviewLimit]
	}
	p := strings.ReplaceAll(string(runes), "\n", " ")
	if truncated {
		p += "..."
	}
	return p
}

// Filename returns the cited source file.
func (c Citation) Filename() string { return c.filename }

// Page returns the cited 1-based page.
func (c Citation) Page() int { return c.page }

// ChunkIndex returns the cited chunk position within its record.
func (c Citation) ChunkIndex() int { return c.chunkIndex }

// Preview returns the shortened chunk text.
func (c Citation) Preview() string { return c.preview }

// Answer is a synthesized response with the citations that grounded it.
// A zero Answer means nothing relevant was indexed for the question.
type Answer struct {
	text      string
	provider  string
	citations []Citation
}

// New creates an Answer.
func New(text, provider string, citations []Citation) Answer {
	return Answer{text: text, provider: provider, citations: citations}
}

// Text returns the synthesized answer text.
func (a Answer) Text() string { return a.text }

// Provider returns the name of the provider that produced the text, or
// "" when no provider was called.
func (a Answer) Provider() string { return a.provider }

// Citations returns the grounding chunks in retrieval order.
func (a Answer) Citations() []Citation { return a.citations }

// IsEmpty reports whether the answer carries no text and no citations.
func (a Answer) IsEmpty() bool {
	return a.text == "" && len(a.citations) == 0
}
