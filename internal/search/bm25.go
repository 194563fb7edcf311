package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/cockroachdb/errors"
)

var resultFields = []string{"name", "description", "server", "category", "tags"}

// SearchBM25 performs BM25 keyword search using Bleve.
func (i *Indexer) SearchBM25(q string, limit int) ([]SearchResult, error) {
	return i.search(i.buildMatchQuery(q), limit, 10)
}

// SearchByServer performs BM25 search scoped to one server.
func (i *Indexer) SearchByServer(q, serverName string, limit int) ([]SearchResult, error) {
	serverQuery := bleve.NewTermQuery(serverName)
	serverQuery.SetField("server")
	return i.search(bleve.NewConjunctionQuery(i.buildMatchQuery(q), serverQuery), limit, 10)
}

// SearchByCategory performs BM25 search scoped to one category.
func (i *Indexer) SearchByCategory(q, category string, limit int) ([]SearchResult, error) {
	categoryQuery := bleve.NewTermQuery(category)
	categoryQuery.SetField("category")
	return i.search(bleve.NewConjunctionQuery(i.buildMatchQuery(q), categoryQuery), limit, 10)
}

// GetAllTools retrieves all indexed tools (up to limit).
func (i *Indexer) GetAllTools(limit int) ([]SearchResult, error) {
	return i.search(bleve.NewMatchAllQuery(), limit, 100)
}

func (i *Indexer) search(q query.Query, limit, defaultLimit int) ([]SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	searchRequest := bleve.NewSearchRequestOptions(q, limit, 0, false)
	searchRequest.Fields = resultFields

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return nil, errors.Wrap(err, "bleve search failed")
	}
	return convertBleveResults(results), nil
}

// convertBleveResults converts Bleve hits to SearchResult values.
func convertBleveResults(results *bleve.SearchResult) []SearchResult {
	searchResults := make([]SearchResult, 0, len(results.Hits))

	for _, hit := range results.Hits {
		name, _ := hit.Fields["name"].(string)
		description, _ := hit.Fields["description"].(string)
		server, _ := hit.Fields["server"].(string)
		category, _ := hit.Fields["category"].(string)

		searchResults = append(searchResults, SearchResult{
			ToolName:    name,
			Description: description,
			ServerName:  server,
			Category:    category,
			Tags:        stringList(hit.Fields["tags"]),
			Score:       hit.Score,
		})
	}
	return searchResults
}

// stringList reads a stored field that holds one string or several.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
