package result

// Result is a single retrieved passage with its source coordinates.
type Result struct {
	id         string
	score      float64
	content    string
	filename   string
	page       int
	chunkIndex int
}

// New creates a search result. Score is cosine similarity in [0,1],
// higher is closer.
func New(id string, score float64, content, filename string, page, chunkIndex int) Result {
	return Result{
		id: id, score: score, content: content,
		filename: filename, page: page, chunkIndex: chunkIndex,
	}
}

// ID returns the chunk identity.
func (r *Result) ID() string { return r.id }

// Score returns the similarity score.
func (r *Result) Score() float64 { return r.score }

// Content returns the chunk text.
func (r *Result) Content() string { return r.content }

// Filename returns the source file the chunk came from.
func (r *Result) Filename() string { return r.filename }

// Page returns the 1-based source page.
func (r *Result) Page() int { return r.page }

// ChunkIndex returns the chunk position within its record.
func (r *Result) ChunkIndex() int { return r.chunkIndex }
