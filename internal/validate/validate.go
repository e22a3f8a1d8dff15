// Package validate implements the optional Graph Validator stage: a
// secondary LLM call scores each extracted relation's plausibility given
// its source chunk, dropping relations that score below threshold.
package validate

import (
	"context"
	"fmt"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/extract"
	"github.com/cognipipe/cognipipe/internal/fn"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/resilience"
)

// DefaultThreshold is τ, the minimum confidence a relation must score to
// survive validation.
const DefaultThreshold = 0.7

// degradedDefaultScore is the score assigned to every relation when the
// validator is unavailable. Such relations are kept without being compared
// to the threshold, matching the "skip the threshold" degradation described
// by the Graph Validator's spec.
const degradedDefaultScore = 0.5

// ChunkText resolves a chunk ID to its source text so the validator can
// show the LLM the grounding passage for each candidate relation.
type ChunkText func(ctx context.Context, chunkID string) (string, error)

// Validator scores candidate relations and drops low-confidence ones.
type Validator struct {
	llm       ports.LLM
	threshold float64
	chunkText ChunkText
	limiter   *resilience.Limiter
	retry     fn.RetryOpts
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimiter gates every scoring call behind l, honoring the
// process-wide (provider, resource) token bucket.
func WithLimiter(l *resilience.Limiter) Option {
	return func(v *Validator) { v.limiter = l }
}

// WithRetry overrides the retry/backoff policy for transient LLM errors.
func WithRetry(opts fn.RetryOpts) Option {
	return func(v *Validator) { v.retry = opts }
}

// New builds a Validator. threshold <= 0 uses DefaultThreshold.
func New(llm ports.LLM, threshold float64, chunkText ChunkText, opts ...Option) *Validator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	v := &Validator{llm: llm, threshold: threshold, chunkText: chunkText, retry: fn.DefaultRetry}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type scoreResponse struct {
	Confidence float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
}

const systemPrompt = `You judge whether a candidate (subject, predicate, object) relation
is actually supported by the given source text. Respond with a confidence
between 0 and 1: 1 means the text clearly states the relation, 0 means the
text does not support it at all.`

// Validate scores each relation and returns the ones that meet threshold
// (entities are not passed to this stage and are never dropped by it).
// If the LLM is unavailable, every relation is kept at the
// degraded default score and a DegradedError is returned alongside the
// (unfiltered) relations so the caller can record a run warning without
// failing the pipeline.
func (v *Validator) Validate(ctx context.Context, relations []domain.Relation) ([]domain.Relation, error) {
	if v.llm == nil {
		for i := range relations {
			relations[i].Confidence = degradedDefaultScore
		}
		return relations, domain.NewDegradedError("graph_validator", fmt.Errorf("no validator configured"))
	}

	kept := make([]domain.Relation, 0, len(relations))
	var degraded error
	for _, rel := range relations {
		score, err := v.score(ctx, rel)
		if err != nil {
			rel.Confidence = degradedDefaultScore
			kept = append(kept, rel)
			degraded = domain.NewDegradedError("graph_validator", err)
			continue
		}
		rel.Confidence = score
		if score >= v.threshold {
			kept = append(kept, rel)
		}
	}
	return kept, degraded
}

func (v *Validator) score(ctx context.Context, rel domain.Relation) (float64, error) {
	var text string
	if v.chunkText != nil {
		t, err := v.chunkText(ctx, rel.SourceChunk)
		if err == nil {
			text = t
		}
	}
	schema, err := extract.MapSchemaOf(scoreResponse{})
	if err != nil {
		return 0, err
	}
	prompt := fmt.Sprintf("Source text:\n%s\n\nCandidate relation: (%s) -[%s]-> (%s)", text, rel.FromID, rel.Type, rel.ToID)

	retry := v.retry
	retry.ShouldRetry = domain.IsRetryable
	result := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[scoreResponse] {
		var resp scoreResponse
		call := func(ctx context.Context) error {
			return v.llm.StructuredComplete(ctx, systemPrompt, prompt, schema, &resp, ports.WithTemperature(0))
		}
		var err error
		if v.limiter != nil {
			err = v.limiter.CallWait(ctx, call)
		} else {
			err = call(ctx)
		}
		return fn.FromPair(resp, err)
	})
	resp, err := result.Unwrap()
	if err != nil {
		return 0, domain.NewTransientBackendError("llm", err, 0)
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	return resp.Confidence, nil
}
