// Package vector provides brute-force similarity primitives over
// float32 embedding vectors.
package vector

import (
	"math"
	"sort"
)

// Scored pairs a candidate id with its similarity score.
type Scored struct {
	ID    string
	Score float32
}

// Candidate is one entry in a brute-force top-K scan.
type Candidate struct {
	ID     string
	Vector []float32
}

// CosineSimilarity calculates cosine similarity between two vectors.
// Mismatched lengths and zero-magnitude vectors score 0; this is a
// defined degenerate case, not an error.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// TopK scores every candidate against the query (O(n·d)) and returns
// the k best, descending. Negative scores are not filtered; the sort is
// stable, so equal scores keep candidate order.
func TopK(query []float32, candidates []Candidate, k int) []Scored {
	if k <= 0 {
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, Scored{
			ID:    candidate.ID,
			Score: CosineSimilarity(query, candidate.Vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Centroid returns the component-wise arithmetic mean of the vectors.
// Vectors whose length differs from the first one are skipped rather
// than corrupting the mean. Returns nil for an empty input.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)
	count := 0
	for _, vec := range vectors {
		if len(vec) != dim {
			continue
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(count))
	}
	return mean
}
