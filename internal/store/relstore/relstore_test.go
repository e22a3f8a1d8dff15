package relstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cognipipe/cognipipe/internal/domain"
)

// These tests exercise a real Postgres instance and are skipped unless
// COGNIPIPE_TEST_DSN is set.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COGNIPIPE_TEST_DSN")
	if dsn == "" {
		t.Skip("COGNIPIPE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := OpenPool(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	s := New(pool)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func TestDatasetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	d := domain.Dataset{ID: "ds-1", TenantID: "tenant-a", Name: "docs", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := s.CreateDataset(ctx, d); err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	got, err := s.GetDataset(ctx, "tenant-a", "ds-1")
	if err != nil {
		t.Fatalf("get dataset: %v", err)
	}
	if got.Name != d.Name {
		t.Fatalf("expected name %q, got %q", d.Name, got.Name)
	}

	if _, err := s.GetDataset(ctx, "tenant-a", "missing"); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestRunRoundTripPersistsWarnings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := domain.PipelineRun{
		ID:        "run-1",
		TenantID:  "tenant-a",
		DatasetID: "ds-1",
		Status:    domain.RunStatusRunning,
		Warnings:  []string{"low_yield chunk c1"},
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	completed := time.Now().UTC().Truncate(time.Second)
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completed
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run (update): %v", err)
	}

	got, err := s.GetRun(ctx, "tenant-a", "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed status, got %s", got.Status)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != "low_yield chunk c1" {
		t.Fatalf("expected warnings to round-trip, got %v", got.Warnings)
	}
}

func TestAliasResolvesThroughSavedMapping(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveAlias(ctx, domain.AliasOf{FromID: "e-old", ToID: "e-new"}); err != nil {
		t.Fatalf("save alias: %v", err)
	}
	resolved, err := s.ResolveAlias(ctx, "tenant-a", "e-old")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if resolved != "e-new" {
		t.Fatalf("expected resolved id e-new, got %s", resolved)
	}

	unaliased, err := s.ResolveAlias(ctx, "tenant-a", "e-never-merged")
	if err != nil {
		t.Fatalf("resolve unaliased id: %v", err)
	}
	if unaliased != "e-never-merged" {
		t.Fatalf("unaliased id must resolve to itself, got %s", unaliased)
	}
}
