package metrics

// Cognify bundles the metric handles the pipeline, retrieval, and answer
// packages record against, all backed by one Registry.
type Cognify struct {
	Registry *Registry

	RunsTotal        *Counter
	RunDuration      *Histogram
	StageItemsIn     map[string]*Counter
	StageItemsOut    map[string]*Counter
	StageDuration    map[string]*Histogram
	RetrievalLatency map[string]*Histogram
}

var stageNames = []string{"chunk", "extract", "validate", "resolve", "write"}
var retrievalLanes = []string{"vector", "graph", "lexical", "hybrid"}

// NewCognify registers every cognify-domain metric on reg and returns the
// typed handle bundle.
func NewCognify(reg *Registry) *Cognify {
	c := &Cognify{
		Registry:         reg,
		RunsTotal:        reg.Counter("cognify_runs_total", "total pipeline runs started"),
		RunDuration:      reg.Histogram("cognify_run_duration_seconds", "pipeline run wall-clock duration", nil),
		StageItemsIn:     make(map[string]*Counter, len(stageNames)),
		StageItemsOut:    make(map[string]*Counter, len(stageNames)),
		StageDuration:    make(map[string]*Histogram, len(stageNames)),
		RetrievalLatency: make(map[string]*Histogram, len(retrievalLanes)),
	}
	for _, stage := range stageNames {
		c.StageItemsIn[stage] = reg.Counter(WithLabels("cognify_stage_items_in_total", "stage", stage), "items entering a pipeline stage")
		c.StageItemsOut[stage] = reg.Counter(WithLabels("cognify_stage_items_out_total", "stage", stage), "items leaving a pipeline stage")
		c.StageDuration[stage] = reg.Histogram(WithLabels("cognify_stage_duration_seconds", "stage", stage), "pipeline stage duration", nil)
	}
	for _, lane := range retrievalLanes {
		c.RetrievalLatency[lane] = reg.Histogram(WithLabels("cognify_retrieval_latency_seconds", "lane", lane), "retrieval lane latency", nil)
	}
	return c
}
