package answer

import (
	"fmt"
	"strings"

	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// NoResultsAnswer is what the pipeline reports when retrieval found
// nothing relevant to ground an answer on.
const NoResultsAnswer = "No encuentro esa información en los documentos."

const promptHeader = `Eres un asistente que responde en español de forma concisa y accionable.
Usa exclusivamente la información del CONTEXTO. Si algo no está en el contexto, di: "No encuentro esa información en los documentos".
Incluye pasos claros y, al final, lista breves referencias a las fuentes.`

// BuildPrompt assembles the grounding prompt: the instruction header,
// the passages with 1-based source tags, the literal question and the
// answer cue. Passage order is preserved.
func BuildPrompt(question string, passages []result.Result) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\nCONTEXTO:\n")

	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Fuente %d: %s#p%d c%d]\n%s", i+1, p.Filename(), p.Page(), p.ChunkIndex(), p.Content())
	}

	fmt.Fprintf(&b, "\n\nPREGUNTA: %s\n\nRESPUESTA:", question)
	return b.String()
}

// metadataArtifacts mark document boilerplate that models sometimes
// echo back from the context; lines carrying any of them are dropped.
var metadataArtifacts = []string{
	"page_label:",
	"file_path:",
	"FICHA DE DATOS DE SEGURIDAD",
	"según el Reglamento",
	"Versión",
	"Fecha de revisión:",
	"Número SDS:",
	"Fecha de la última expedición:",
	"Fecha de la primera expedición:",
}

// ScrubArtifacts removes metadata boilerplate lines from generated text
// and trims the result.
func ScrubArtifacts(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if hasArtifact(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hasArtifact(line string) bool {
	for _, marker := range metadataArtifacts {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
