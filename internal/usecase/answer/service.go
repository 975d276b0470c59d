// Package answer turns a question into a grounded response: retrieval,
// prompt assembly and provider-dispatched generation.
package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
	domanswer "github.com/agrodocs/consulta/internal/domain/answer"
)

// DefaultMaxContext is how many retrieved passages feed the prompt when
// the caller does not say otherwise.
const DefaultMaxContext = 6

// Provider is a registered generation backend. Available reports
// whether its credentials or endpoint are configured, which gates the
// priority probe but not an explicit selection.
type Provider struct {
	Generator Generator
	Model     string
	Available bool
}

// Config selects and orders generation backends.
type Config struct {
	Provider string   // explicit provider name; "" probes Priority
	Priority []string // probe order when Provider is ""
}

// Options bound one question.
type Options struct {
	TopK         int
	MaxContext   int
	OnlyRetrieve bool
}

// Service answers questions over the indexed corpus.
type Service struct {
	retriever  Retriever
	providers  map[string]Provider
	cfg        Config
	maxContext int
	logger     *zap.Logger
}

// New creates an answer service.
func New(retriever Retriever, providers map[string]Provider, cfg Config) *Service {
	return &Service{
		retriever:  retriever,
		providers:  providers,
		cfg:        cfg,
		maxContext: DefaultMaxContext,
		logger:     zap.NewNop(),
	}
}

// WithMaxContext sets how many passages feed the prompt when the request
// does not say. Values below one keep the default.
func (s *Service) WithMaxContext(n int) *Service {
	if n > 0 {
		s.maxContext = n
	}
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Ask retrieves passages for the question and synthesizes an answer
// from them. With no retrieved context it returns a zero Answer and
// never calls a provider. OnlyRetrieve skips synthesis but keeps the
// citations.
func (s *Service) Ask(ctx context.Context, question string, opts Options) (domanswer.Answer, error) {
	hits, err := s.retriever.Retrieve(ctx, question, opts.TopK)
	if err != nil {
		return domanswer.Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(hits) == 0 {
		return domanswer.Answer{}, nil
	}

	bounded := hits[:s.clampContext(opts.MaxContext, len(hits))]
	citations := make([]domanswer.Citation, len(bounded))
	for i, h := range bounded {
		citations[i] = domanswer.NewCitation(h.Filename(), h.Page(), h.ChunkIndex(), h.Content())
	}

	if opts.OnlyRetrieve {
		return domanswer.New("", "", citations), nil
	}

	name, provider, err := s.selectProvider()
	if err != nil {
		return domanswer.Answer{}, err
	}

	text, err := provider.Generator.Generate(ctx, BuildPrompt(question, bounded), provider.Model)
	if err != nil {
		s.logger.Warn("generation failed",
			zap.String("provider", name),
			zap.String("model", provider.Model),
			zap.Error(err),
		)
		return domanswer.Answer{}, domain.NewProviderCallError(name, err)
	}

	return domanswer.New(ScrubArtifacts(text), name, citations), nil
}

// selectProvider resolves which backend answers. An explicit name is
// used exclusively, configured or not reachable; otherwise the priority
// list is probed and the first available backend wins.
func (s *Service) selectProvider() (string, Provider, error) {
	if s.cfg.Provider != "" {
		p, ok := s.providers[s.cfg.Provider]
		if !ok {
			return "", Provider{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, s.cfg.Provider)
		}
		return s.cfg.Provider, p, nil
	}

	for _, name := range s.cfg.Priority {
		if p, ok := s.providers[name]; ok && p.Available {
			return name, p, nil
		}
	}
	return "", Provider{}, domain.ErrProviderUnavailable
}

// clampContext bounds how many passages feed the prompt: at least one,
// at most what retrieval returned.
func (s *Service) clampContext(requested, hits int) int {
	if requested <= 0 {
		requested = s.maxContext
	}
	if requested > hits {
		requested = hits
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}
