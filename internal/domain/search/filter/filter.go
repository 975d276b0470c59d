package filter

// Filter narrows a vector search. Filename restricts hits to chunks
// extracted from that exact source file; Contains restricts hits to
// chunks whose text mentions the term. Either clause may be empty.
type Filter struct {
	filename string
	contains string
}

// New creates a Filter. Empty values mean the clause is absent.
func New(filename, contains string) Filter {
	return Filter{filename: filename, contains: contains}
}

// ByFilename creates a Filter with only the filename clause.
func ByFilename(filename string) Filter {
	return Filter{filename: filename}
}

// Filename returns the exact source filename to match, or "".
func (f Filter) Filename() string { return f.filename }

// Contains returns the term the chunk text must mention, or "".
func (f Filter) Contains() string { return f.contains }

// HasFilename reports whether the filename clause is set.
func (f Filter) HasFilename() bool { return f.filename != "" }

// HasContains reports whether the content clause is set.
func (f Filter) HasContains() bool { return f.contains != "" }

// IsEmpty reports whether the filter has no clauses.
func (f Filter) IsEmpty() bool { return f.filename == "" && f.contains == "" }

// Relaxations returns the filter followed by its successive weakenings:
// first the content clause is dropped, then the filename clause. Shapes
// that would repeat are omitted, so each attempt is strictly broader
// than the one before it and the unfiltered attempt appears once.
func (f Filter) Relaxations() []Filter {
	ladder := []Filter{f}
	if f.HasContains() {
		ladder = append(ladder, Filter{filename: f.filename})
	}
	if f.HasFilename() {
		ladder = append(ladder, Filter{})
	}
	return ladder
}
