package retrieve

import (
	"sort"
	"strings"

	"github.com/agrodocs/consulta/internal/domain/search/filter"
)

type alias struct {
	trigger  string
	filename string
}

// Planner maps free-text questions onto index filters. Triggers come
// from a configurable alias table (phrase -> canonical filename) that
// may carry common misspellings; keywords mark topics worth a content
// pre-filter.
type Planner struct {
	aliases  []alias
	keywords []string
}

// NewPlanner builds a planner from the alias table and keyword list.
// Matching is case-insensitive. Longer triggers are tried first, so the
// most specific phrase wins when one trigger contains another.
func NewPlanner(aliases map[string]string, keywords []string) *Planner {
	p := &Planner{}

	for trigger, filename := range aliases {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" || filename == "" {
			continue
		}
		p.aliases = append(p.aliases, alias{trigger: trigger, filename: filename})
	}
	sort.Slice(p.aliases, func(i, j int) bool {
		if len(p.aliases[i].trigger) != len(p.aliases[j].trigger) {
			return len(p.aliases[i].trigger) > len(p.aliases[j].trigger)
		}
		return p.aliases[i].trigger < p.aliases[j].trigger
	})

	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			p.keywords = append(p.keywords, kw)
		}
	}
	return p
}

// Plan inspects the question and returns the filter to search with.
// The filename clause comes from the first alias trigger found in the
// question; the contains clause from the first keyword found. Either,
// both, or neither may be set.
func (p *Planner) Plan(question string) filter.Filter {
	q := strings.ToLower(question)

	var filename string
	for _, a := range p.aliases {
		if strings.Contains(q, a.trigger) {
			filename = a.filename
			break
		}
	}

	var contains string
	for _, kw := range p.keywords {
		if strings.Contains(q, kw) {
			contains = kw
			break
		}
	}

	return filter.New(filename, contains)
}
