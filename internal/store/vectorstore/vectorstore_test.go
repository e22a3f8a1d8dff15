package vectorstore

import (
	"strings"
	"testing"
)

func TestCollectionNameSanitizesAndJoins(t *testing.T) {
	got := CollectionName("tenant one", "dataset/two", "chunk", "embedding")
	want := "tenant_one_dataset_two_chunk_embedding"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCollectionNameTruncatesToQdrantLimit(t *testing.T) {
	got := CollectionName(strings.Repeat("a", 300), "d", "k", "f")
	if len(got) != maxCollectionNameLen {
		t.Fatalf("expected length %d, got %d", maxCollectionNameLen, len(got))
	}
}

func TestCollectionNameDropsEmptyParts(t *testing.T) {
	got := CollectionName("tenant", "", "chunk", "")
	if got != "tenant_chunk" {
		t.Fatalf("expected empty parts dropped, got %q", got)
	}
}
