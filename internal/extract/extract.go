package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/fn"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/resilience"
)

// ExtractedEntity is one entity mention the LLM reports from a chunk.
type ExtractedEntity struct {
	Name        string `json:"name" jsonschema:"required,description=the entity's canonical surface form as it appears in the text"`
	Type        string `json:"type" jsonschema:"required,description=a short entity type label, e.g. person, organization, location, concept"`
	Description string `json:"description,omitempty" jsonschema:"description=one sentence describing the entity using only information from the text"`
}

// ExtractedRelation is one relation mention between two entity names the
// LLM reports from a chunk.
type ExtractedRelation struct {
	From string `json:"from" jsonschema:"required,description=the name of the source entity, must match an entity in entities"`
	To   string `json:"to" jsonschema:"required,description=the name of the target entity, must match an entity in entities"`
	Type string `json:"type" jsonschema:"required,description=a short relation type label in upper_snake_case, e.g. WORKS_FOR, LOCATED_IN"`
}

// KnowledgeGraph is the structured-output shape requested from the LLM
// for one chunk.
type KnowledgeGraph struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

const systemPrompt = `You extract a knowledge graph from a single document chunk.
Report only entities and relations explicitly supported by the chunk's text.
Never invent facts not present in the text. Keep entity names consistent
across the response so relations can reference them by name.`

var schemaOnce sync.Once
var schemaMap map[string]any
var schemaErr error

func graphSchema() (map[string]any, error) {
	schemaOnce.Do(func() {
		schemaMap, schemaErr = MapSchemaOf(KnowledgeGraph{})
	})
	return schemaMap, schemaErr
}

// DeclaredTypes is the closed set of entity type labels extraction will
// emit; anything the LLM reports outside this set is rewritten to
// "Other" and logged rather than silently admitted into the graph.
// Empty means no restriction (every reported type is accepted as-is).
var DeclaredTypes = []string{"person", "organization", "location", "concept", "artifact", "event"}

// OtherType is the type label unrecognized entity types are rewritten to.
const OtherType = "Other"

// DefaultMaxParseRetries is how many additional attempts Extract makes
// when the provider returns a response that fails to decode against the
// schema, before treating it as a permanent failure.
const DefaultMaxParseRetries = 2

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimiter gates every LLM call behind l, honoring the process-wide
// (provider, resource) token bucket.
func WithLimiter(l *resilience.Limiter) Option {
	return func(e *Extractor) { e.limiter = l }
}

// WithRetry overrides the retry/backoff policy for transient LLM errors.
func WithRetry(opts fn.RetryOpts) Option {
	return func(e *Extractor) { e.retry = opts }
}

// WithMaxParseRetries overrides how many times a schema-decode failure is
// retried before failing permanently.
func WithMaxParseRetries(n int) Option {
	return func(e *Extractor) { e.maxParseRetries = n }
}

// WithLogger overrides the logger used to record type rewrites.
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// Extractor calls an LLM to pull a KnowledgeGraph out of one
// DocumentChunk and materializes it into tenant-scoped, deterministically
// IDed Entity/Relation values.
type Extractor struct {
	llm             ports.LLM
	limiter         *resilience.Limiter
	retry           fn.RetryOpts
	maxParseRetries int
	log             *slog.Logger
}

func New(llm ports.LLM, opts ...Option) *Extractor {
	e := &Extractor{
		llm:             llm,
		retry:           fn.DefaultRetry,
		maxParseRetries: DefaultMaxParseRetries,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs structured extraction over chunk.Text and returns the
// entities and relations found, with IDs derived from (tenantID,
// normalizedName, type) so repeated extraction of the same entity across
// chunks converges on one ID before resolution even runs.
//
// A transient provider failure (rate limit, network hiccup) is retried
// per e.retry, gated by e.limiter. Every PermanentBackendError is treated
// as a response that failed to decode against the schema: the whole call
// is retried up to e.maxParseRetries times before the error is returned.
// No distinction is made for an auth or quota rejection reported as a
// PermanentBackendError; it gets the same retries. Any other error is
// returned at once.
func (e *Extractor) Extract(ctx context.Context, tenantID string, chunk domain.DocumentChunk) ([]domain.Entity, []domain.Relation, error) {
	schema, err := graphSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("build extraction schema: %w", err)
	}

	prompt := fmt.Sprintf("Document chunk:\n\n%s", chunk.Text)

	kg, err := e.complete(ctx, schema, prompt)
	if err != nil {
		return nil, nil, err
	}

	entities := make([]domain.Entity, 0, len(kg.Entities))
	idByName := make(map[string]string, len(kg.Entities))
	for _, ent := range kg.Entities {
		if ent.Name == "" || ent.Type == "" {
			continue
		}
		entType := e.declareType(chunk.ID, ent.Type)
		id := domain.EntityID(tenantID, normalize(ent.Name), normalize(entType))
		idByName[normalize(ent.Name)] = id
		entities = append(entities, domain.Entity{
			ID:           id,
			TenantID:     tenantID,
			Name:         ent.Name,
			Type:         entType,
			Description:  ent.Description,
			Confidence:   1.0,
			SourceChunk:  chunk.ID,
			SourceChunks: []string{chunk.ID},
		})
	}

	relations := make([]domain.Relation, 0, len(kg.Relations))
	for _, r := range kg.Relations {
		fromID, ok := idByName[normalize(r.From)]
		if !ok {
			continue
		}
		toID, ok := idByName[normalize(r.To)]
		if !ok {
			continue
		}
		relations = append(relations, domain.Relation{
			ID:          domain.RelationID(tenantID, fromID, toID, r.Type),
			TenantID:    tenantID,
			FromID:      fromID,
			ToID:        toID,
			Type:        r.Type,
			Confidence:  1.0,
			SourceChunk: chunk.ID,
		})
	}

	return entities, relations, nil
}

// declareType rewrites ent to "Other" (and logs it) when DeclaredTypes is
// non-empty and ent isn't in it, per the closed-type-set contract.
func (e *Extractor) declareType(chunkID, entType string) string {
	if len(DeclaredTypes) == 0 {
		return entType
	}
	norm := normalize(entType)
	for _, t := range DeclaredTypes {
		if normalize(t) == norm {
			return entType
		}
	}
	e.log.Warn("extract: undeclared entity type rewritten", "chunk", chunkID, "type", entType, "rewritten_to", OtherType)
	return OtherType
}

// complete runs StructuredComplete at temperature 0 (deterministic, per
// the Graph Extractor's spec), retrying transient backend errors and,
// separately, schema-decode failures.
func (e *Extractor) complete(ctx context.Context, schema map[string]any, prompt string) (KnowledgeGraph, error) {
	retry := e.retry
	retry.ShouldRetry = domain.IsRetryable

	for parseAttempt := 0; ; parseAttempt++ {
		result := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[KnowledgeGraph] {
			var kg KnowledgeGraph
			call := func(ctx context.Context) error {
				return e.llm.StructuredComplete(ctx, systemPrompt, prompt, schema, &kg, ports.WithTemperature(0))
			}
			var err error
			if e.limiter != nil {
				err = e.limiter.CallWait(ctx, call)
			} else {
				err = call(ctx)
			}
			return fn.FromPair(kg, err)
		})

		kg, err := result.Unwrap()
		if err == nil {
			return kg, nil
		}

		var pe *domain.PermanentBackendError
		if !asPermanent(err, &pe) || parseAttempt >= e.maxParseRetries {
			return KnowledgeGraph{}, err
		}
		e.log.Warn("extract: schema decode failed, retrying", "attempt", parseAttempt+1, "err", err)
	}
}

func asPermanent(err error, target **domain.PermanentBackendError) bool {
	pe, ok := err.(*domain.PermanentBackendError)
	if ok {
		*target = pe
	}
	return ok
}

func normalize(s string) string {
	return asciiLowerTrim(s)
}
