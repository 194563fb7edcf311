/*
Package search implements keyword search over the tool registry.

Tools are indexed with Bleve (BM25 scoring). Ranked search fuses the
keyword score with the observed success rate of each tool, so reliable
tools rank above equally relevant but failing ones.
*/
package search

// SearchResult represents a single search result with relevance score.
type SearchResult struct {
	ToolName    string   `json:"name"`
	Description string   `json:"description"`
	ServerName  string   `json:"server"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
}

// ToolDocument is a tool as stored in the search index.
type ToolDocument struct {
	Name        string   `json:"name"`
	Keywords    string   `json:"keywords"`
	Description string   `json:"description"`
	Server      string   `json:"server"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}
