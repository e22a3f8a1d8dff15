// Package resolve implements entity resolution: merging duplicate entity
// mentions across chunks and documents into canonical entities via a
// deterministic single pass of normalization, exact/alias bucketing,
// Levenshtein fuzzy matching and embedding similarity, unioned with a
// disjoint-set and reconciled by a canonicalization rule.
package resolve

import (
	"context"
	"math"
	"sort"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/samber/lo"
)

const (
	// FuzzyThreshold is fuzzyτ, the Levenshtein similarity at/above which
	// two normalized names within the same type are unioned outright.
	FuzzyThreshold = 0.85
	// EmbeddingThreshold is embτ, the cosine similarity at/above which a
	// pair in the ambiguous fuzzy band is unioned.
	EmbeddingThreshold = 0.90
	// fuzzyLowerBand and fuzzyUpperBand bound the ambiguous zone handed
	// off to the embedding pass.
	fuzzyLowerBand = 0.60
	fuzzyUpperBand = 0.85

	coreNameBoost     = 0.95
	familyPrefixBoost = 0.85
)

// Candidate is one entity mention awaiting resolution.
type Candidate struct {
	Entity    domain.Entity
	Aliases   []string
	Embedding []float32
}

// Embedder narrows ports.Embedder to the one call the embedding pass
// needs; candidates without a precomputed Embedding are embedded lazily
// through this interface, skipped entirely if nil.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is the outcome of resolving one batch of candidates.
type Result struct {
	Canonical []domain.Entity
	Aliases   []domain.AliasOf
}

// Resolve merges candidates into canonical entities. embedder may be nil,
// in which case the embedding pass (step 5) is skipped and any pair left
// ambiguous by the fuzzy pass stays unmerged.
func Resolve(ctx context.Context, candidates []Candidate, embedder Embedder) (Result, error) {
	n := len(candidates)
	if n == 0 {
		return Result{}, nil
	}

	normalized := make([]string, n)
	core := make([]string, n)
	for i, c := range candidates {
		normalized[i] = Normalize(c.Entity.Name)
		core[i] = CoreName(normalized[i])
	}

	uf := newUnionFind(n)

	// 2. Exact bucket: group by (normalized_name, type).
	exactKey := func(i int) string { return normalized[i] + "\x00" + candidates[i].Entity.Type }
	buckets := make(map[string][]int)
	for i := range candidates {
		k := exactKey(i)
		buckets[k] = append(buckets[k], i)
	}
	for _, idxs := range buckets {
		for k := 1; k < len(idxs); k++ {
			uf.union(idxs[0], idxs[k])
		}
	}

	// 3. Alias bucket: union any entity whose normalized name matches
	// another entity's declared alias (type-scoped, same as exact).
	aliasIndex := make(map[string][]int)
	for i, c := range candidates {
		for _, a := range c.Aliases {
			key := Normalize(a) + "\x00" + c.Entity.Type
			aliasIndex[key] = append(aliasIndex[key], i)
		}
	}
	for i := range candidates {
		key := exactKey(i)
		if owners, ok := aliasIndex[key]; ok {
			for _, o := range owners {
				uf.union(i, o)
			}
		}
	}

	// 4. Fuzzy pass, type-scoped, with embedding-pass deferral for the
	// ambiguous [0.6, 0.85) band.
	ambiguous := make([][2]int, 0)
	byType := make(map[string][]int)
	for i, c := range candidates {
		byType[c.Entity.Type] = append(byType[c.Entity.Type], i)
	}
	for _, idxs := range byType {
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				i, j := idxs[a], idxs[b]
				if uf.find(i) == uf.find(j) {
					continue
				}
				score := fuzzyScore(normalized[i], normalized[j], core[i], core[j])
				switch {
				case score >= FuzzyThreshold:
					uf.union(i, j)
				case score >= fuzzyLowerBand && score < fuzzyUpperBand:
					ambiguous = append(ambiguous, [2]int{i, j})
				}
			}
		}
	}

	// 5. Embedding pass over the ambiguous band.
	if embedder != nil && len(ambiguous) > 0 {
		if err := resolveAmbiguous(ctx, candidates, embedder, uf, ambiguous); err != nil {
			return Result{}, err
		}
	}

	// 6. Type conflict guard: every union above was already type-scoped,
	// so no further action is needed here; this comment documents the
	// invariant rather than enforcing it again.

	// 7. Canonicalization.
	groups := uf.groups()
	roots := lo.Keys(groups)
	sort.Ints(roots)

	var out Result
	for _, root := range roots {
		members := groups[root]
		canonicalIdx := pickCanonical(candidates, members)
		canonical := mergeGroup(candidates, members, canonicalIdx)
		out.Canonical = append(out.Canonical, canonical)
		for _, m := range members {
			if m == canonicalIdx {
				continue
			}
			out.Aliases = append(out.Aliases, domain.AliasOf{
				FromID: candidates[m].Entity.ID,
				ToID:   canonical.ID,
			})
		}
	}
	return out, nil
}

func fuzzyScore(normA, normB, coreA, coreB string) float64 {
	score := levenshteinSimilarity(normA, normB)
	if coreA == coreB && coreA != "" {
		score = math.Max(score, coreNameBoost)
	}
	if isFamilyPrefixMatch(normA, normB) {
		score = math.Max(score, familyPrefixBoost)
	}
	return score
}

// isFamilyPrefixMatch implements the single-character family-name-prefix
// boost for CJK names (e.g. "王" matching as a shared surname prefix).
func isFamilyPrefixMatch(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	if !isCJK(ra[0]) || !isCJK(rb[0]) {
		return false
	}
	return ra[0] == rb[0]
}

func resolveAmbiguous(ctx context.Context, candidates []Candidate, embedder Embedder, uf *unionFind, pairs [][2]int) error {
	needsEmbed := make([]int, 0)
	embedding := make(map[int][]float32)
	seen := make(map[int]bool)
	for _, p := range pairs {
		for _, idx := range p {
			if seen[idx] {
				continue
			}
			seen[idx] = true
			if len(candidates[idx].Embedding) > 0 {
				embedding[idx] = candidates[idx].Embedding
			} else {
				needsEmbed = append(needsEmbed, idx)
			}
		}
	}
	if len(needsEmbed) > 0 {
		texts := make([]string, len(needsEmbed))
		for i, idx := range needsEmbed {
			texts[i] = candidates[idx].Entity.Name
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return domain.NewTransientBackendError("embedder", err, 0)
		}
		for i, idx := range needsEmbed {
			if i < len(vecs) {
				embedding[idx] = vecs[i]
			}
		}
	}

	for _, p := range pairs {
		i, j := p[0], p[1]
		if uf.find(i) == uf.find(j) {
			continue
		}
		vi, vj := embedding[i], embedding[j]
		if len(vi) == 0 || len(vj) == 0 {
			continue
		}
		if cosineSimilarity(vi, vj) >= EmbeddingThreshold {
			uf.union(i, j)
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// pickCanonical selects (highest confidence, longest description,
// lexicographically smallest name).
func pickCanonical(candidates []Candidate, members []int) int {
	best := members[0]
	for _, m := range members[1:] {
		if better(candidates[m].Entity, candidates[best].Entity) {
			best = m
		}
	}
	return best
}

func better(a, b domain.Entity) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if len(a.Description) != len(b.Description) {
		return len(a.Description) > len(b.Description)
	}
	return a.Name < b.Name
}

// mergeGroup builds the canonical entity: non-canonical members'
// properties are merged in (never overriding an existing canonical
// property), every member's surface forms become the canonical's Aliases
// (excluding the canonical's own final Name), and every member's source
// chunk(s) accumulate into SourceChunks.
func mergeGroup(candidates []Candidate, members []int, canonicalIdx int) domain.Entity {
	canonical := candidates[canonicalIdx].Entity
	props := make(map[string]string, len(canonical.Properties))
	for k, v := range canonical.Properties {
		props[k] = v
	}

	aliasSet := make(map[string]struct{})
	chunkSet := make(map[string]struct{})
	for _, m := range members {
		ent := candidates[m].Entity
		aliasSet[ent.Name] = struct{}{}
		for _, a := range ent.Aliases {
			aliasSet[a] = struct{}{}
		}
		for _, a := range candidates[m].Aliases {
			aliasSet[a] = struct{}{}
		}
		if ent.SourceChunk != "" {
			chunkSet[ent.SourceChunk] = struct{}{}
		}
		for _, c := range ent.SourceChunks {
			chunkSet[c] = struct{}{}
		}
		if m == canonicalIdx {
			continue
		}
		for k, v := range ent.Properties {
			if _, exists := props[k]; !exists {
				props[k] = v
			}
		}
	}
	delete(aliasSet, canonical.Name)

	canonical.Properties = props
	canonical.Aliases = sortedKeys(aliasSet)
	canonical.SourceChunks = sortedKeys(chunkSet)
	return canonical
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
