package chunkcache

import (
	"testing"

	"github.com/cognipipe/cognipipe/internal/domain"
)

func TestPutAndText(t *testing.T) {
	c := New()
	c.Put("ds1", []domain.DocumentChunk{
		{ID: "c1", DataID: "d1", Text: "hello world", LineStart: 3},
		{ID: "c2", DataID: "d1", Text: "second chunk", LineStart: 10},
	})

	text, ok := c.Text("c1")
	if !ok || text != "hello world" {
		t.Fatalf("expected hello world, got %q ok=%v", text, ok)
	}

	file, line, ok := c.Provenance("c2")
	if !ok || file != "d1" || line != 10 {
		t.Fatalf("unexpected provenance: %q %d %v", file, line, ok)
	}

	if _, ok := c.Text("missing"); ok {
		t.Fatal("expected missing chunk to be absent")
	}
}

func TestDocumentsReturnsDatasetScopedCorpus(t *testing.T) {
	c := New()
	c.Put("ds1", []domain.DocumentChunk{{ID: "c1", Text: "a"}})
	c.Put("ds2", []domain.DocumentChunk{{ID: "c2", Text: "b"}})

	docs := c.Documents("ds1")
	if len(docs) != 1 || docs[0].ID != "c1" {
		t.Fatalf("unexpected documents for ds1: %+v", docs)
	}
	if len(c.Documents("ds3")) != 0 {
		t.Fatal("expected empty corpus for unknown dataset")
	}
}
