package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a search query.
type Params struct {
	Query  string `json:"q" validate:"max=200"`
	RootID string `json:"root_id" validate:"max=64"`

	IncludeInactive bool `json:"include_inactive"`

	Limit  int `json:"limit" validate:"gte=0,lte=100"`
	Offset int `json:"offset" validate:"gte=0"`

	// SortBy is one of "relevance", "name", "author", "recent", "duration".
	SortBy string `json:"sort" validate:"omitempty,oneof=relevance name author recent duration"`
	Desc   bool   `json:"desc"`
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{
		Limit:  20,
		SortBy: "relevance",
	}
}

// Result represents the search results.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit represents a single search result.
type Hit struct {
	ID         string            `json:"id"`
	Type       DocType           `json:"type"`
	RootID     string            `json:"root_id"`
	Name       string            `json:"name"`
	Author     string            `json:"author,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
	Score      float64           `json:"score"`
	DurationMs int64             `json:"duration_ms"`
	Active     bool              `json:"active"`
}

// Search executes a search query.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params)

	if params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("name")
		req.Highlight.AddField("author")
	}
	req.Fields = []string{"type", "root_id", "name", "author", "duration_ms", "active"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if t, ok := h.Fields["type"].(string); ok {
			hit.Type = DocType(t)
		}
		hit.RootID, _ = h.Fields["root_id"].(string)
		hit.Name, _ = h.Fields["name"].(string)
		hit.Author, _ = h.Fields["author"].(string)
		if d, ok := h.Fields["duration_ms"].(float64); ok {
			hit.DurationMs = int64(d)
		}
		hit.Active, _ = h.Fields["active"].(bool)

		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// buildQuery constructs the Bleve query from params.
//
// Text matches the book name most strongly, then the author and chapter
// names. A fuzzy and a prefix query on the name tolerate typos and support
// search-as-you-type.
func buildQuery(params Params) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		nameMatch := bleve.NewMatchQuery(q)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		authorMatch := bleve.NewMatchQuery(q)
		authorMatch.SetField("author")
		authorMatch.SetBoost(2.0)

		chapterMatch := bleve.NewMatchQuery(q)
		chapterMatch.SetField("chapters")

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("name")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{nameMatch, authorMatch, chapterMatch, fuzzy}
		if len(q) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(q))
			prefix.SetField("name")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.RootID != "" {
		root := bleve.NewTermQuery(params.RootID)
		root.SetField("root_id")
		queries = append(queries, root)
	}

	if !params.IncludeInactive {
		active := bleve.NewBoolFieldQuery(true)
		active.SetField("active")
		queries = append(queries, active)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

// addSorting configures sort order. Desc reverses name, author and duration
// order; relevance and recent always put the best and newest first.
func addSorting(req *bleve.SearchRequest, params Params) {
	field := func(name string) string {
		if params.Desc {
			return "-" + name
		}
		return name
	}
	switch params.SortBy {
	case "name":
		req.SortBy([]string{field("name"), "id"})
	case "author":
		req.SortBy([]string{field("author"), "name", "id"})
	case "recent":
		req.SortBy([]string{"-added_at", "id"})
	case "duration":
		req.SortBy([]string{field("duration_ms"), "id"})
	default:
		req.SortBy([]string{"-_score", "id"})
	}
}
