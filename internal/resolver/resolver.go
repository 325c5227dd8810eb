// Package resolver decides where an answer comes from: a direct manual
// match, a fuzzy manual match, or the external model.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrEmptyQuestion rejects blank input before any lookup happens
var ErrEmptyQuestion = errors.New("question is empty")

// Resolution is the outcome of one lookup
type Resolution struct {
	Answer string        `json:"answer"`
	Source domain.Source `json:"source"`
	// Entry is the matched manual entry; nil for external answers
	Entry *domain.ManualEntry `json:"entry,omitempty"`
	Index int                 `json:"index"`
	Score float64             `json:"score,omitempty"`
}

// Options configures a Resolver
type Options struct {
	Matching     config.MatchingConfig
	Instructions string
	// FAQ entries are sent ahead of the manual as model context only
	FAQ     []domain.ManualEntry
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Resolver is safe for concurrent use; it never mutates the manual
type Resolver struct {
	provider provider.Provider
	opts     Options
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a Resolver that escalates to p
func New(p provider.Provider, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider: p,
		opts:     opts,
		tracer:   otel.Tracer("github.com/pbaille/qabot/internal/resolver"),
		logger:   logger,
	}
}

// Resolve answers question from manual, escalating to the provider on a miss.
// Provider failures come back as *provider.Error and are never retried.
func (r *Resolver) Resolve(ctx context.Context, question string, manual []domain.ManualEntry) (Resolution, error) {
	if strings.TrimSpace(question) == "" {
		return Resolution{}, ErrEmptyQuestion
	}

	ctx, span := r.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.Int("qabot.manual_size", len(manual))))
	defer span.End()

	res, err := r.resolve(ctx, question, manual)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Resolution{}, err
	}

	span.SetAttributes(attribute.String("qabot.source", string(res.Source)))
	r.opts.Metrics.ObserveResolution(string(res.Source))
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, question string, manual []domain.ManualEntry) (Resolution, error) {
	if i := directMatch(question, manual, r.opts.Matching.Mode); i >= 0 {
		r.logger.Debug("direct manual match", zap.Int("index", i), zap.String("mode", r.opts.Matching.Mode))
		return manualResolution(manual, i, domain.SourceExactManual, 1), nil
	}

	if r.opts.Matching.Fuzzy {
		if i, score := fuzzyMatch(question, manual, r.opts.Matching.Cutoff); i >= 0 {
			r.logger.Debug("fuzzy manual match", zap.Int("index", i), zap.Float64("score", score))
			return manualResolution(manual, i, domain.SourceFuzzyManual, score), nil
		}
	}

	answer, err := r.provider.Complete(ctx, provider.Request{
		System:   r.opts.Instructions,
		Context:  BuildContext(r.opts.FAQ, manual),
		Question: question,
	})
	if err != nil {
		if !provider.IsError(err) {
			err = &provider.Error{Backend: r.provider.Name(), Op: "complete", Err: err}
		}
		r.opts.Metrics.ObserveProviderError(r.provider.Name())
		r.logger.Warn("provider call failed", zap.String("backend", r.provider.Name()), zap.Error(err))
		return Resolution{}, err
	}

	return Resolution{Answer: answer, Source: domain.SourceExternal, Index: -1}, nil
}

func manualResolution(manual []domain.ManualEntry, i int, source domain.Source, score float64) Resolution {
	e := manual[i]
	return Resolution{
		Answer: e.Answer,
		Source: source,
		Entry:  &e,
		Index:  i,
		Score:  score,
	}
}
