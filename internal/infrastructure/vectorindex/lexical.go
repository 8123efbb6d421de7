package vectorindex

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// BM25-like scoring constants.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type lexDoc struct {
	chunk     vectorstore.Chunk
	termFreqs map[string]int
	length    int
}

// LexicalMemoryIndex is an in-memory full-text inverted index over chunks.
type LexicalMemoryIndex struct {
	mu       sync.RWMutex
	docs     map[string]*lexDoc            // chunk id -> doc
	postings map[string]map[string]struct{} // term -> chunk ids
	byFile   map[string]map[string][]string // store id -> file id -> chunk ids
	totalLen int
}

// NewLexicalMemoryIndex creates an empty inverted index.
func NewLexicalMemoryIndex() *LexicalMemoryIndex {
	return &LexicalMemoryIndex{
		docs:     make(map[string]*lexDoc),
		postings: make(map[string]map[string]struct{}),
		byFile:   make(map[string]map[string][]string),
	}
}

// IndexFile replaces the file's chunks in the index.
func (idx *LexicalMemoryIndex) IndexFile(storeID, fileID string, chunks []vectorstore.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.deleteFileLocked(storeID, fileID)

	files, ok := idx.byFile[storeID]
	if !ok {
		files = make(map[string][]string)
		idx.byFile[storeID] = files
	}

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		terms := tokenize(chunk.Text)
		doc := &lexDoc{
			chunk:     chunk,
			termFreqs: make(map[string]int, len(terms)),
			length:    len(terms),
		}
		for _, term := range terms {
			doc.termFreqs[term]++
		}
		idx.docs[chunk.ChunkID] = doc
		idx.totalLen += doc.length
		for term := range doc.termFreqs {
			posting, ok := idx.postings[term]
			if !ok {
				posting = make(map[string]struct{})
				idx.postings[term] = posting
			}
			posting[chunk.ChunkID] = struct{}{}
		}
		ids = append(ids, chunk.ChunkID)
	}
	files[fileID] = ids
}

// Search returns the top-k chunks by full-text score, best first. Ties are
// broken by lexicographic chunk id.
func (idx *LexicalMemoryIndex) Search(query string, k int, storeIDs []string) []vectorstore.LexicalHit {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var storeSet map[string]struct{}
	if len(storeIDs) > 0 {
		storeSet = make(map[string]struct{}, len(storeIDs))
		for _, id := range storeIDs {
			storeSet[id] = struct{}{}
		}
	}

	docCount := len(idx.docs)
	if docCount == 0 {
		return nil
	}
	avgLen := float64(idx.totalLen) / float64(docCount)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		posting := idx.postings[term]
		if len(posting) == 0 {
			continue
		}
		idf := math.Log(1 + (float64(docCount)-float64(len(posting))+0.5)/(float64(len(posting))+0.5))
		for chunkID := range posting {
			doc := idx.docs[chunkID]
			if storeSet != nil {
				if _, ok := storeSet[doc.chunk.VectorStoreID]; !ok {
					continue
				}
			}
			tf := float64(doc.termFreqs[term])
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen))
			scores[chunkID] += idf * norm
		}
	}
	if len(scores) == 0 {
		return nil
	}

	hits := make([]vectorstore.LexicalHit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, vectorstore.LexicalHit{Chunk: idx.docs[chunkID].chunk, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// DeleteFile removes every chunk of the file from the index.
func (idx *LexicalMemoryIndex) DeleteFile(storeID, fileID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteFileLocked(storeID, fileID)
}

// DeleteStore removes every file of the store from the index.
func (idx *LexicalMemoryIndex) DeleteStore(storeID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for fileID := range idx.byFile[storeID] {
		idx.deleteFileLocked(storeID, fileID)
	}
	delete(idx.byFile, storeID)
}

func (idx *LexicalMemoryIndex) deleteFileLocked(storeID, fileID string) {
	files := idx.byFile[storeID]
	for _, chunkID := range files[fileID] {
		doc, ok := idx.docs[chunkID]
		if !ok {
			continue
		}
		for term := range doc.termFreqs {
			posting := idx.postings[term]
			delete(posting, chunkID)
			if len(posting) == 0 {
				delete(idx.postings, term)
			}
		}
		idx.totalLen -= doc.length
		delete(idx.docs, chunkID)
	}
	delete(files, fileID)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ vectorstore.LexicalIndex = (*LexicalMemoryIndex)(nil)
