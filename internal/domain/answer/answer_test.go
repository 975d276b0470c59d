package answer

import (
	"strings"
	"testing"
)

func TestNewCitation_ShortContent(t *testing.T) {
	c := NewCitation("abofol.pdf", 3, 1, "Mantener fuera del alcance\nde los niños")

	if c.Filename() != "abofol.pdf" || c.Page() != 3 || c.ChunkIndex() != 1 {
		t.Errorf("coordinates = %q p%d c%d", c.Filename(), c.Page(), c.ChunkIndex())
	}
	if c.Preview() != "Mantener fuera del alcance de los niños" {
		t.Errorf("Preview() = %q", c.Preview())
	}
	if strings.HasSuffix(c.Preview(), "...") {
		t.Error("short content must not gain an ellipsis")
	}
}

func TestNewCitation_LongContentTruncated(t *testing.T) {
	content := strings.Repeat("ñ", PreviewLimit+50)
	c := NewCitation("a.pdf", 1, 0, content)

	want := strings.Repeat("ñ", PreviewLimit) + "..."
	if c.Preview() != want {
		t.Errorf("Preview() length = %d runes", len([]rune(c.Preview())))
	}
}

func TestNewCitation_ExactLimitNoEllipsis(t *testing.T) {
	content := strings.Repeat("x", PreviewLimit)
	c := NewCitation("a.pdf", 1, 0, content)

	if c.Preview() != content {
		t.Errorf("Preview() = %d chars, want untouched content", len(c.Preview()))
	}
}

func TestNewCitation_NewlinesCollapsedBeforeEllipsis(t *testing.T) {
	content := "línea uno\nlínea dos\n" + strings.Repeat("z", PreviewLimit)
	c := NewCitation("a.pdf", 1, 0, content)

	if strings.Contains(c.Preview(), "\n") {
		t.Error("preview still contains newlines")
	}
	if !strings.HasSuffix(c.Preview(), "...") {
		t.Error("truncated preview must end with ellipsis")
	}
}

func TestAnswer(t *testing.T) {
	cits := []Citation{NewCitation("a.pdf", 1, 0, "texto")}
	a := New("Aplicar 2 L/ha.", "openai", cits)

	if a.Text() != "Aplicar 2 L/ha." {
		t.Errorf("Text() = %q", a.Text())
	}
	if a.Provider() != "openai" {
		t.Errorf("Provider() = %q", a.Provider())
	}
	if len(a.Citations()) != 1 {
		t.Errorf("Citations() len = %d", len(a.Citations()))
	}
	if a.IsEmpty() {
		t.Error("IsEmpty() = true for populated answer")
	}
}

func TestAnswer_Empty(t *testing.T) {
	var a Answer
	if !a.IsEmpty() {
		t.Error("zero Answer must be empty")
	}
	if a.Provider() != "" {
		t.Errorf("Provider() = %q, want empty", a.Provider())
	}
}
