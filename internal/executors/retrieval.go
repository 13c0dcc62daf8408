package executors

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// Document is one retrievable item with its relevance score.
type Document struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Corpus answers retrieval queries. Vector search backends live behind this
// interface; MemoryCorpus is the bundled keyword fallback.
type Corpus interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// MemoryCorpus is an in-memory Corpus scoring documents by term overlap.
type MemoryCorpus struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryCorpus creates a MemoryCorpus with optional seed documents.
func NewMemoryCorpus(docs ...Document) *MemoryCorpus {
	return &MemoryCorpus{docs: docs}
}

// Add appends a document to the corpus.
func (c *MemoryCorpus) Add(doc Document) {
	c.mu.Lock()
	c.docs = append(c.docs, doc)
	c.mu.Unlock()
}

// Search ranks documents by how many distinct query terms they contain.
// Documents matching no term are excluded.
func (c *MemoryCorpus) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []Document
	for _, doc := range c.docs {
		content := strings.ToLower(doc.Content)
		hits := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		scored := doc
		scored.Score = float64(hits) / float64(len(terms))
		matched = append(matched, scored)
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Score > matched[j].Score })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// RetrievalExecutor handles retrieval nodes: it resolves the query and asks
// the injected Corpus for relevant documents.
//
// Config: "query" (interpolated, required), "limit" (default 5).
// Output: {"documents": []Document, "query": string}.
type RetrievalExecutor struct {
	corpus Corpus
}

func NewRetrievalExecutor(corpus Corpus) *RetrievalExecutor {
	if corpus == nil {
		corpus = NewMemoryCorpus()
	}
	return &RetrievalExecutor{corpus: corpus}
}

func (x *RetrievalExecutor) Type() schema.NodeType { return schema.NodeTypeRetrieval }

func (x *RetrievalExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	query := expressions.Resolve(stringParam(in.Config, "query", ""), in.Trigger, in.Results)
	if query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "retrieval node has no query").WithNode(in.NodeID)
	}

	limit := intParam(in.Config, "limit", 5)

	docs, err := x.corpus.Search(ctx, query, limit)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "search failed: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}

	return map[string]any{"documents": docs, "query": query}, nil
}
