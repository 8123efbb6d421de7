package vectorstore

import "sort"

// DefaultRRFK is the reciprocal rank fusion constant.
const DefaultRRFK = 60

// Candidate is a scored chunk flowing through the search pipeline.
type Candidate struct {
	Chunk Chunk
	Score float64
}

const unranked = int(^uint(0) >> 1)

// FuseRRF combines a semantic and a lexical ranking with reciprocal rank
// fusion: score(c) = sum over lists containing c of 1/(k + rank). Ties are
// broken by lower semantic rank, then lower lexical rank, then
// lexicographic chunk id. Ranks are 1-based.
func FuseRRF(semantic []SemanticHit, lexical []LexicalHit, k int) []Candidate {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		chunk        Chunk
		score        float64
		semanticRank int
		lexicalRank  int
	}
	byID := make(map[string]*fused)

	for i, hit := range semantic {
		rank := i + 1
		byID[hit.Chunk.ChunkID] = &fused{
			chunk:        hit.Chunk,
			score:        1.0 / float64(k+rank),
			semanticRank: rank,
			lexicalRank:  unranked,
		}
	}
	for i, hit := range lexical {
		rank := i + 1
		if entry, ok := byID[hit.Chunk.ChunkID]; ok {
			entry.score += 1.0 / float64(k+rank)
			entry.lexicalRank = rank
			continue
		}
		byID[hit.Chunk.ChunkID] = &fused{
			chunk:        hit.Chunk,
			score:        1.0 / float64(k+rank),
			semanticRank: unranked,
			lexicalRank:  rank,
		}
	}

	entries := make([]*fused, 0, len(byID))
	for _, entry := range byID {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].semanticRank != entries[j].semanticRank {
			return entries[i].semanticRank < entries[j].semanticRank
		}
		if entries[i].lexicalRank != entries[j].lexicalRank {
			return entries[i].lexicalRank < entries[j].lexicalRank
		}
		return entries[i].chunk.ChunkID < entries[j].chunk.ChunkID
	})

	out := make([]Candidate, len(entries))
	for i, entry := range entries {
		out[i] = Candidate{Chunk: entry.chunk, Score: entry.score}
	}
	return out
}

// ApplyThreshold drops candidates scoring below threshold. A zero threshold
// keeps everything.
func ApplyThreshold(candidates []Candidate, threshold float64) []Candidate {
	if threshold <= 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// Truncate caps the candidate list at n. Non-positive n leaves it unchanged.
func Truncate(candidates []Candidate, n int) []Candidate {
	if n > 0 && len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}
