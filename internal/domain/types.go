// Package domain defines the core entities of the cognify pipeline and
// retrieval engine: datasets, raw data, chunks, graph entities and
// relations, vector records, and pipeline runs. It is the validation gate
// at every pipeline and retrieval entry point.
package domain

import "time"

// Dataset groups a tenant's ingested data under one cognify boundary.
type Dataset struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DataStatus tracks a Data item's position in the pipeline.
type DataStatus string

const (
	DataStatusPending    DataStatus = "pending"
	DataStatusProcessing DataStatus = "processing"
	DataStatusDone       DataStatus = "done"
	DataStatusFailed     DataStatus = "failed"
)

// Data is one raw ingested document before chunking.
type Data struct {
	ID          string     `json:"id"`
	DatasetID   string     `json:"dataset_id"`
	TenantID    string     `json:"tenant_id"`
	Source      string     `json:"source"`
	ContentHash string     `json:"content_hash"`
	Status      DataStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DocumentChunk is a token-budgeted slice of a Data item's content with
// provenance back to the source bytes.
type DocumentChunk struct {
	ID         string `json:"id"`
	DataID     string `json:"data_id"`
	TenantID   string `json:"tenant_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
}

// Entity is a resolved node in the property graph. SourceChunk is the
// chunk this value was last extracted/merged from; SourceChunks is the
// accumulated set across every mention merged into it during resolution.
// Aliases collects the surface forms of every non-canonical entity merged
// into this one; this entity's own Name is not included.
type Entity struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Description  string            `json:"description,omitempty"`
	Confidence   float64           `json:"confidence"`
	Properties   map[string]string `json:"properties,omitempty"`
	Aliases      []string          `json:"aliases,omitempty"`
	SourceChunk  string            `json:"source_chunk_id"`
	SourceChunks []string          `json:"source_chunk_ids,omitempty"`
}

// Relation is a resolved edge between two entities.
type Relation struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	FromID      string  `json:"from_id"`
	ToID        string  `json:"to_id"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	SourceChunk string  `json:"source_chunk_id"`
}

// MentionEdge links an Entity back to the DocumentChunk it was extracted
// from, carrying full provenance.
type MentionEdge struct {
	EntityID string `json:"entity_id"`
	ChunkID  string `json:"chunk_id"`
}

// AliasOf records that an entity was merged into a canonical entity during
// resolution. Kept as a real side table so callers can resolve a
// superseded ID to its survivor.
type AliasOf struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// VectorRecord is one embedded unit (chunk or entity) stored in the vector
// index.
type VectorRecord struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	DatasetID string            `json:"dataset_id"`
	Kind      string            `json:"kind"` // "chunk" | "entity"
	RefID     string            `json:"ref_id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// PipelineRun tracks one Cognify invocation across its stages.
type PipelineRun struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	DatasetID   string     `json:"dataset_id"`
	Status      RunStatus  `json:"status"`
	Warnings    []string   `json:"warnings,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
