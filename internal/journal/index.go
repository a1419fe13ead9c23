package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// ReportDoc is what gets indexed for a finished run.
type ReportDoc struct {
	RunID         string
	Query         string
	FinalResponse string
	Status        string
	FinishedAt    time.Time
}

// SearchHit is one full-text match.
type SearchHit struct {
	RunID  string
	Score  float64
	Query  string
	Status string
}

// ReportIndex provides keyword search over questions and final reports.
type ReportIndex struct {
	index bleve.Index
	path  string
}

// OpenReportIndex creates or opens the index at path. A corrupted index is
// deleted and rebuilt empty.
func OpenReportIndex(path string) (*ReportIndex, error) {
	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create report index: %w", err)
		}
	} else if err != nil {
		slog.Warn("report index appears corrupted, recreating", "path", path, "error", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted report index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate report index: %w", err)
		}
	}
	return &ReportIndex{index: index, path: path}, nil
}

// NewMemReportIndex returns an in-memory index.
func NewMemReportIndex() (*ReportIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &ReportIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	runID := bleve.NewTextFieldMapping()
	runID.Analyzer = keyword.Name
	runID.Store = true
	doc.AddFieldMappingsAt("run_id", runID)

	status := bleve.NewTextFieldMapping()
	status.Analyzer = keyword.Name
	status.Store = true
	doc.AddFieldMappingsAt("status", status)

	query := bleve.NewTextFieldMapping()
	query.Analyzer = standard.Name
	query.Store = true
	doc.AddFieldMappingsAt("query", query)

	report := bleve.NewTextFieldMapping()
	report.Analyzer = standard.Name
	report.Store = false
	doc.AddFieldMappingsAt("final_response", report)

	finished := bleve.NewDateTimeFieldMapping()
	finished.Store = true
	doc.AddFieldMappingsAt("finished_at", finished)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Index adds or replaces the document for d.RunID.
func (x *ReportIndex) Index(d ReportDoc) error {
	return x.index.Index(d.RunID, map[string]interface{}{
		"run_id":         d.RunID,
		"status":         d.Status,
		"query":          d.Query,
		"final_response": d.FinalResponse,
		"finished_at":    d.FinishedAt,
	})
}

// Search returns the k best matches for text across questions and reports.
func (x *ReportIndex) Search(text string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	inQuery := bleve.NewMatchQuery(text)
	inQuery.SetField("query")
	inReport := bleve.NewMatchQuery(text)
	inReport.SetField("final_response")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(inQuery, inReport))
	req.Size = k
	req.Fields = []string{"query", "status"}

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("report search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := SearchHit{RunID: h.ID, Score: h.Score}
		if q, ok := h.Fields["query"].(string); ok {
			hit.Query = q
		}
		if s, ok := h.Fields["status"].(string); ok {
			hit.Status = s
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed runs.
func (x *ReportIndex) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the index.
func (x *ReportIndex) Close() error {
	return x.index.Close()
}
