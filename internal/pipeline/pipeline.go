// Package pipeline implements the Pipeline Engine: it sequences the
// Cognify stages (chunk, extract, validate, resolve, write) as named
// tasks over one PipelineRun, persisting run state, broadcasting stage
// events, and honoring cancellation at every I/O boundary.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cognipipe/cognipipe/internal/chunk"
	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/eventbus"
	"github.com/cognipipe/cognipipe/internal/extract"
	"github.com/cognipipe/cognipipe/internal/fn"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/resolve"
	"github.com/cognipipe/cognipipe/internal/validate"
	"github.com/cognipipe/cognipipe/internal/write"
)

// Mode is a task's execution mode, named per spec: whole-value,
// sequential-stream, or bounded-concurrency stream.
type Mode string

const (
	ModeValue          Mode = "value"
	ModeStream         Mode = "stream"
	ModeParallelStream Mode = "parallelStream"
)

// DefaultWorkers is the bounded worker pool size for parallelStream
// tasks and CPU-bound work, min(8, numCPU).
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n < 8 {
		return n
	}
	return 8
}

// Deps wires every port and component the engine drives.
type Deps struct {
	RelStore  ports.RelationalStore
	Loader    ports.Loader
	Extractor *extract.Extractor
	Validator *validate.Validator // nil disables the optional validation stage
	Embedder  ports.Embedder      // used both by resolve's embedding pass and the writer
	Writer    *write.Writer
	Events    *eventbus.Registry
	ChunkOpts chunk.Options
	Workers   int
}

// RawDoc is one document's raw bytes ready for chunking.
type RawDoc struct {
	Data domain.Data
	Raw  []byte
}

// Engine runs Cognify pipelines against its wired Deps.
type Engine struct {
	deps Deps
}

func New(deps Deps) *Engine {
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers()
	}
	if deps.ChunkOpts.Tokenizer == nil {
		deps.ChunkOpts = chunk.DefaultOptions()
	}
	return &Engine{deps: deps}
}

// stageCounters is recorded alongside each StageCompleted event.
type stageCounters struct {
	ItemsIn, ItemsOut, Retries int
	Duration                   time.Duration
}

func (c stageCounters) asData() map[string]any {
	return map[string]any{
		"items_in":  c.ItemsIn,
		"items_out": c.ItemsOut,
		"retries":   c.Retries,
		"duration":  c.Duration.String(),
	}
}

// RunCognify executes the full pipeline for one dataset's documents,
// returning the finished PipelineRun (status completed/failed/cancelled).
// The error result is always nil: failures are reported through the run's
// Status, Warnings and published events. runID, if
// non-empty, is used as the run's ID instead of generating one, so a
// caller that needs the ID before the run completes (e.g. to answer a
// runInBackground request) can mint it up front and subscribe before
// calling RunCognify.
func (e *Engine) RunCognify(ctx context.Context, runID, tenantID, datasetID string, docs []RawDoc, chunkCollection, entityCollection string) (domain.PipelineRun, error) {
	if runID == "" {
		runID = domain.NewRunID()
	}
	run := domain.PipelineRun{
		ID:        runID,
		TenantID:  tenantID,
		DatasetID: datasetID,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	bus := e.deps.Events.For(run.ID)
	e.saveRun(ctx, run)
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventRunStarted})

	finish := func(status domain.RunStatus, evType eventbus.EventType, data map[string]any) (domain.PipelineRun, error) {
		now := time.Now()
		run.Status = status
		run.CompletedAt = &now
		e.saveRun(ctx, run)
		bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: evType, Data: data})
		return run, nil
	}

	chunks, err := e.stageChunk(ctx, &run, bus, docs)
	if err != nil {
		if ce, ok := asCancelled(err); ok {
			return finish(domain.RunStatusCancelled, eventbus.EventRunCancelled, map[string]any{"stage": ce.Stage})
		}
		return finish(domain.RunStatusFailed, eventbus.EventRunFailed, map[string]any{"stage": "chunk", "error": err.Error()})
	}

	entities, relations, err := e.stageExtract(ctx, &run, bus, tenantID, chunks)
	if err != nil {
		if ce, ok := asCancelled(err); ok {
			return finish(domain.RunStatusCancelled, eventbus.EventRunCancelled, map[string]any{"stage": ce.Stage})
		}
		return finish(domain.RunStatusFailed, eventbus.EventRunFailed, map[string]any{"stage": "extract", "error": err.Error()})
	}

	relations = e.stageValidate(ctx, &run, bus, relations)

	canonical, aliases, err := e.stageResolve(ctx, &run, bus, entities)
	if err != nil {
		return finish(domain.RunStatusFailed, eventbus.EventRunFailed, map[string]any{"stage": "resolve", "error": err.Error()})
	}

	relations = remapRelations(relations, aliases)

	if err := e.stageWrite(ctx, &run, bus, tenantID, chunkCollection, entityCollection, chunks, canonical, relations, aliases); err != nil {
		return finish(domain.RunStatusFailed, eventbus.EventRunFailed, map[string]any{"stage": "write", "error": err.Error()})
	}

	return finish(domain.RunStatusCompleted, eventbus.EventRunCompleted, nil)
}

func (e *Engine) saveRun(ctx context.Context, run domain.PipelineRun) {
	if e.deps.RelStore == nil {
		return
	}
	_ = e.deps.RelStore.SaveRun(ctx, run)
}

func asCancelled(err error) (*domain.CancelledError, bool) {
	ce, ok := err.(*domain.CancelledError)
	return ce, ok
}

// stageChunk loads and chunks each document; a per-document failure is
// recorded and skipped, matching "record per-data error, continue with
// others".
func (e *Engine) stageChunk(ctx context.Context, run *domain.PipelineRun, bus *eventbus.RunBroadcaster, docs []RawDoc) ([]domain.DocumentChunk, error) {
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageStarted, Stage: "chunk"})
	start := time.Now()

	var all []domain.DocumentChunk
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewCancelledError("chunk")
		}
		text, _, err := e.deps.Loader.Load(ctx, doc.Data.Source, doc.Raw)
		if err != nil {
			run.Warnings = append(run.Warnings, fmt.Sprintf("chunk: %s: %v", doc.Data.ID, err))
			continue
		}
		all = append(all, chunk.Split(doc.Data.ID, text, e.deps.ChunkOpts)...)
	}

	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "chunk",
		Data: stageCounters{ItemsIn: len(docs), ItemsOut: len(all), Duration: time.Since(start)}.asData()})
	return all, nil
}

// stageExtract runs graph extraction per chunk as a parallelStream task
// with the engine's bounded worker pool; a chunk-level extraction error
// other than a permanent backend error is tolerated (low-yield chunk),
// permanent errors fail the run.
func (e *Engine) stageExtract(ctx context.Context, run *domain.PipelineRun, bus *eventbus.RunBroadcaster, tenantID string, chunks []domain.DocumentChunk) ([]domain.Entity, []domain.Relation, error) {
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageStarted, Stage: "extract"})
	start := time.Now()

	type out struct {
		entities  []domain.Entity
		relations []domain.Relation
		err       error
	}
	results := fn.ParMap(chunks, e.deps.Workers, func(c domain.DocumentChunk) out {
		if err := ctx.Err(); err != nil {
			return out{err: domain.NewCancelledError("extract")}
		}
		ents, rels, err := e.deps.Extractor.Extract(ctx, tenantID, c)
		return out{entities: ents, relations: rels, err: err}
	})

	var entities []domain.Entity
	var relations []domain.Relation
	for _, r := range results {
		if r.err != nil {
			if ce, ok := r.err.(*domain.CancelledError); ok {
				return nil, nil, ce
			}
			var pe *domain.PermanentBackendError
			if ok := errorsAs(r.err, &pe); ok {
				return nil, nil, pe
			}
			run.Warnings = append(run.Warnings, fmt.Sprintf("extract: %v", r.err))
			continue
		}
		if len(r.entities) == 0 {
			run.Warnings = append(run.Warnings, "extract: low_yield chunk")
		}
		entities = append(entities, r.entities...)
		relations = append(relations, r.relations...)
	}

	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "extract",
		Data: stageCounters{ItemsIn: len(chunks), ItemsOut: len(entities), Duration: time.Since(start)}.asData()})
	return entities, relations, nil
}

func (e *Engine) stageValidate(ctx context.Context, run *domain.PipelineRun, bus *eventbus.RunBroadcaster, relations []domain.Relation) []domain.Relation {
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageStarted, Stage: "validate"})
	start := time.Now()

	if e.deps.Validator == nil {
		bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "validate",
			Data: stageCounters{ItemsIn: len(relations), ItemsOut: len(relations), Duration: time.Since(start)}.asData()})
		return relations
	}

	kept, err := e.deps.Validator.Validate(ctx, relations)
	if err != nil {
		run.Warnings = append(run.Warnings, err.Error())
	}
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "validate",
		Data: stageCounters{ItemsIn: len(relations), ItemsOut: len(kept), Duration: time.Since(start)}.asData()})
	return kept
}

func (e *Engine) stageResolve(ctx context.Context, run *domain.PipelineRun, bus *eventbus.RunBroadcaster, entities []domain.Entity) ([]domain.Entity, []domain.AliasOf, error) {
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageStarted, Stage: "resolve"})
	start := time.Now()

	cands := make([]resolve.Candidate, len(entities))
	for i, ent := range entities {
		cands[i] = resolve.Candidate{Entity: ent}
	}

	var embedder resolve.Embedder
	if e.deps.Embedder != nil {
		embedder = embedderAdapter{e.deps.Embedder}
	}
	res, err := resolve.Resolve(ctx, cands, embedder)
	if err != nil {
		return nil, nil, err
	}

	if e.deps.RelStore != nil {
		for _, a := range res.Aliases {
			_ = e.deps.RelStore.SaveAlias(ctx, a)
		}
	}

	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "resolve",
		Data: stageCounters{ItemsIn: len(entities), ItemsOut: len(res.Canonical), Duration: time.Since(start)}.asData()})
	return res.Canonical, res.Aliases, nil
}

type embedderAdapter struct{ e ports.Embedder }

func (a embedderAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return a.e.Embed(ctx, texts)
}

// remapRelations rewrites relation endpoints that referenced a
// now-superseded entity ID to its canonical survivor.
func remapRelations(relations []domain.Relation, aliases []domain.AliasOf) []domain.Relation {
	if len(aliases) == 0 {
		return relations
	}
	canon := make(map[string]string, len(aliases))
	for _, a := range aliases {
		canon[a.FromID] = a.ToID
	}
	out := make([]domain.Relation, len(relations))
	for i, r := range relations {
		if c, ok := canon[r.FromID]; ok {
			r.FromID = c
		}
		if c, ok := canon[r.ToID]; ok {
			r.ToID = c
		}
		out[i] = r
	}
	return out
}

// stageWrite persists the run's output in two vector collections, per the
// {tenant}_{dataset}_{type}_{field} naming convention each was named with:
// chunk nodes/content go to chunkCollection, entity and relation
// nodes/edges go to entityCollection, so a tenant's chunk and entity
// indexes never bleed into another tenant's or dataset's search results.
func (e *Engine) stageWrite(ctx context.Context, run *domain.PipelineRun, bus *eventbus.RunBroadcaster, tenantID, chunkCollection, entityCollection string, chunks []domain.DocumentChunk, entities []domain.Entity, relations []domain.Relation, aliases []domain.AliasOf) error {
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageStarted, Stage: "write"})
	start := time.Now()

	chunkValues := make([]datapoint.GraphProjectable, 0, len(chunks))
	for _, c := range chunks {
		chunkValues = append(chunkValues, datapoint.ChunkProjection{Chunk: c, DataID: c.DataID})
	}
	entityValues := make([]datapoint.GraphProjectable, 0, len(entities)+len(relations))
	for _, ent := range entities {
		entityValues = append(entityValues, datapoint.EntityProjection{Entity: ent})
	}
	for _, rel := range relations {
		entityValues = append(entityValues, datapoint.RelationProjection{Relation: rel})
	}

	err := e.deps.Writer.Write(ctx, tenantID, chunkCollection, chunkValues...)
	if err == nil {
		err = e.deps.Writer.Write(ctx, tenantID, entityCollection, entityValues...)
	}

	total := len(chunkValues) + len(entityValues)
	bus.Publish(ctx, eventbus.Event{RunID: run.ID, Type: eventbus.EventStageCompleted, Stage: "write",
		Data: stageCounters{ItemsIn: total, ItemsOut: total, Duration: time.Since(start)}.asData()})
	return err
}

func errorsAs(err error, target **domain.PermanentBackendError) bool {
	pe, ok := err.(*domain.PermanentBackendError)
	if ok {
		*target = pe
	}
	return ok
}
