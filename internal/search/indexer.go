package search

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/registry"
)

var logger = xlog.NewPackageLogger("github.com/khanglvm/tool-optimizer-mcp", "search")

// Indexer manages the search index for all tools.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
	indexPath  string
}

// NewIndexer creates a search indexer with an in-memory Bleve index.
func NewIndexer() (*Indexer, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bleve index")
	}

	return &Indexer{bleveIndex: index}, nil
}

// NewIndexerWithPath creates an indexer with persistent disk storage.
func NewIndexerWithPath(indexPath string) (*Indexer, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create index directory")
	}

	index, err := bleve.NewUsing(indexPath, buildIndexMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		// the index already exists
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open index %s", indexPath)
		}
	}

	return &Indexer{
		bleveIndex: index,
		indexPath:  indexPath,
	}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	toolMapping := bleve.NewDocumentMapping()

	toolMapping.AddFieldMappingsAt("name", bleve.NewTextFieldMapping())
	// name split on underscores, so "take_screenshot" matches "screenshot"
	toolMapping.AddFieldMappingsAt("keywords", bleve.NewTextFieldMapping())
	toolMapping.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())

	// exact-match fields used for filters
	toolMapping.AddFieldMappingsAt("server", bleve.NewKeywordFieldMapping())
	toolMapping.AddFieldMappingsAt("category", bleve.NewKeywordFieldMapping())
	toolMapping.AddFieldMappingsAt("tags", bleve.NewKeywordFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = toolMapping

	return indexMapping
}

func newDocument(t registry.ToolDescriptor) ToolDocument {
	return ToolDocument{
		Name:        t.Name,
		Keywords:    strings.NewReplacer("_", " ", "-", " ").Replace(t.Name),
		Description: t.Description,
		Server:      t.Server,
		Category:    t.Category,
		Tags:        t.Tags,
	}
}

// IndexTools indexes tool descriptors. The tool name is the document ID,
// so indexing a tool again replaces it.
func (i *Indexer) IndexTools(tools []registry.ToolDescriptor) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.bleveIndex.NewBatch()
	for _, t := range tools {
		if err := batch.Index(t.Name, newDocument(t)); err != nil {
			logger.KV(xlog.WARNING, "reason", "index_tool", "tool", t.Name, "err", err.Error())
		}
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return errors.Wrap(err, "failed to batch index tools")
	}
	return nil
}

// IndexRegistry indexes every tool of the registry.
func (i *Indexer) IndexRegistry(reg *registry.Registry) error {
	return i.IndexTools(reg.Tools())
}

// RemoveServer removes all tools served by a server (for reindexing).
func (i *Indexer) RemoveServer(serverName string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	q := bleve.NewTermQuery(serverName)
	q.SetField("server")
	searchRequest := bleve.NewSearchRequestOptions(q, 10000, 0, false)

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to find tools of %s", serverName)
	}

	batch := i.bleveIndex.NewBatch()
	for _, hit := range results.Hits {
		batch.Delete(hit.ID)
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return 0, errors.Wrap(err, "failed to batch delete")
	}
	return len(results.Hits), nil
}

// Sync makes the index mirror reg. Tools of every indexed server are
// removed before the registry is indexed, so a persistent index built from
// an older catalog loses tools that no longer exist. It returns the number
// of removed documents.
func (i *Indexer) Sync(reg *registry.Registry) (int, error) {
	n, err := i.Count()
	if err != nil {
		return 0, err
	}

	removed := 0
	if n > 0 {
		indexed, err := i.GetAllTools(int(n))
		if err != nil {
			return 0, err
		}
		seen := make(map[string]bool)
		for _, r := range indexed {
			if seen[r.ServerName] {
				continue
			}
			seen[r.ServerName] = true
			c, err := i.RemoveServer(r.ServerName)
			if err != nil {
				return removed, err
			}
			removed += c
		}
	}
	return removed, i.IndexRegistry(reg)
}

// Path returns the on-disk location, empty for an in-memory index.
func (i *Indexer) Path() string {
	return i.indexPath
}

// Count returns the total number of indexed tools.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get doc count")
	}
	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}
	return nil
}

// buildMatchQuery creates a match query for BM25 search.
func (i *Indexer) buildMatchQuery(searchText string) query.Query {
	return bleve.NewMatchQuery(searchText)
}
