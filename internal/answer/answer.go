// Package answer implements the Answer Generator: it builds a grounded
// prompt from retrieved hits with file/page/line provenance, calls the
// LLM at a configurable temperature, and returns the answer alongside
// the ordered citation list the [n] markers refer to.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/fn"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/resilience"
	"github.com/cognipipe/cognipipe/internal/retrieve"
)

// DefaultTemperature is the generator's sampling temperature, chosen for
// grounded, low-variance answers.
const DefaultTemperature = 0.3

// emptyContextFallback is returned verbatim, without ever reaching the
// LLM, when retrieval produced no hits to ground an answer in.
const emptyContextFallback = "I don't have enough information in the provided context to answer that."

// Citation is one numbered source backing the answer, in the order its
// [n] marker appears in the prompt.
type Citation struct {
	N       int
	ChunkID string
	Source  string
	Score   float64
}

// Answer is the generator's result.
type Answer struct {
	Text      string
	Citations []Citation
}

// ChunkProvenance resolves a chunk ID to the file/page/line location its
// text came from, so the prompt can cite it precisely.
type ChunkProvenance func(ctx context.Context, chunkID string) (file string, line int, ok bool)

// Generator produces grounded answers from retrieval hits.
type Generator struct {
	LLM         ports.LLM
	Provenance  ChunkProvenance
	Temperature float64
	Limiter     *resilience.Limiter
	Retry       fn.RetryOpts
}

// Option configures a Generator.
type Option func(*Generator)

// WithLimiter gates every answer call behind l, honoring the process-wide
// (provider, resource) token bucket.
func WithLimiter(l *resilience.Limiter) Option {
	return func(g *Generator) { g.Limiter = l }
}

// WithRetry overrides the retry/backoff policy for transient LLM errors.
func WithRetry(opts fn.RetryOpts) Option {
	return func(g *Generator) { g.Retry = opts }
}

func New(llm ports.LLM, prov ChunkProvenance, opts ...Option) *Generator {
	g := &Generator{LLM: llm, Provenance: prov, Temperature: DefaultTemperature, Retry: fn.DefaultRetry}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

const systemPrompt = `You answer questions using only the numbered context passages given.
Cite every claim with the passage number(s) it came from, using square brackets like [1] or [1][3].
If the passages do not contain the answer, say so plainly instead of guessing.`

// Generate builds a grounded prompt from hits and asks the LLM to
// answer question, returning the answer text and its ordered citations.
// If hits is empty, the fallback string is returned and the LLM is never
// called, per the Open Question on empty-context behavior.
func (g *Generator) Generate(ctx context.Context, question string, hits []retrieve.Hit) (Answer, error) {
	if len(hits) == 0 {
		return Answer{Text: emptyContextFallback}, nil
	}

	citations := make([]Citation, len(hits))
	var passages strings.Builder
	for i, h := range hits {
		n := i + 1
		file, line, ok := "", 0, false
		if g.Provenance != nil {
			file, line, ok = g.Provenance(ctx, h.ID)
		}
		citations[i] = Citation{N: n, ChunkID: h.ID, Source: h.Source, Score: h.Score}

		fmt.Fprintf(&passages, "[%d]", n)
		if ok {
			fmt.Fprintf(&passages, " (%s:%d)", file, line)
		}
		passages.WriteString("\n")
		passages.WriteString(h.Content)
		passages.WriteString("\n\n")
	}

	temp := g.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}

	prompt := fmt.Sprintf("Context passages:\n\n%s\nQuestion: %s", passages.String(), question)

	retry := g.Retry
	retry.ShouldRetry = domain.IsRetryable
	result := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[string] {
		call := func(ctx context.Context) (string, error) {
			return g.LLM.Complete(ctx, systemPrompt, prompt, ports.WithTemperature(temp))
		}
		var text string
		var err error
		if g.Limiter != nil {
			err = g.Limiter.CallWait(ctx, func(ctx context.Context) error {
				text, err = call(ctx)
				return err
			})
		} else {
			text, err = call(ctx)
		}
		return fn.FromPair(text, err)
	})
	text, err := result.Unwrap()
	if err != nil {
		return Answer{}, domain.NewTransientBackendError("llm", err, 0)
	}

	return Answer{Text: text, Citations: citations}, nil
}
