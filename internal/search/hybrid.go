package search

import (
	"sort"

	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
)

// UnknownSuccessRate is the performance score of tools without history.
const UnknownSuccessRate = 0.85

// PerformanceSource provides observed per-tool performance.
type PerformanceSource interface {
	ToolSummary(tool string) (model.ToolMetrics, bool)
}

// FusionConfig defines weights for fusing relevance and performance.
type FusionConfig struct {
	KeywordWeight     float64
	PerformanceWeight float64
}

// DefaultFusionConfig weighs keyword relevance at 70% and observed success
// rate at 30%.
var DefaultFusionConfig = FusionConfig{
	KeywordWeight:     0.7,
	PerformanceWeight: 0.3,
}

// SearchRanked runs a BM25 search and re-ranks the hits by fusing the
// normalized keyword score with the tool's success rate. Without a
// performance source the BM25 order is kept.
func (i *Indexer) SearchRanked(q string, limit int, perf PerformanceSource, config FusionConfig) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	bm25Results, err := i.SearchBM25(q, limit*2)
	if err != nil {
		return nil, err
	}
	if perf == nil || len(bm25Results) == 0 {
		if len(bm25Results) > limit {
			bm25Results = bm25Results[:limit]
		}
		return bm25Results, nil
	}

	fused := fuseScores(normalizeScores(bm25Results), perf, config)
	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].Score > fused[b].Score
	})

	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuseScores combines normalized keyword scores with success rates.
func fuseScores(results []SearchResult, perf PerformanceSource, config FusionConfig) []SearchResult {
	fused := make([]SearchResult, len(results))
	for idx, r := range results {
		sr := UnknownSuccessRate
		if m, ok := perf.ToolSummary(r.ToolName); ok && m.TotalCalls > 0 {
			sr = m.SuccessRate
		}
		fused[idx] = r
		fused[idx].Score = config.KeywordWeight*r.Score + config.PerformanceWeight*sr
	}
	return fused
}

// normalizeScores normalizes scores to [0, 1] range.
func normalizeScores(results []SearchResult) []SearchResult {
	if len(results) == 0 {
		return results
	}

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, result := range results {
		if result.Score < minScore {
			minScore = result.Score
		}
		if result.Score > maxScore {
			maxScore = result.Score
		}
	}

	normalized := make([]SearchResult, len(results))
	for i, result := range results {
		normalized[i] = result
		if maxScore == minScore {
			normalized[i].Score = 1.0
			continue
		}
		normalized[i].Score = (result.Score - minScore) / (maxScore - minScore)
	}
	return normalized
}
