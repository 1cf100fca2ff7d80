package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for book documents.
//
//  1. Book names are stemmed English text and the main search target.
//  2. Authors use the simple analyzer so names are not stemmed.
//  3. Chapter names are searchable but not stored.
//  4. Type, root and id are keywords for exact filtering.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = en.AnalyzerName
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = simple.Name
	authorFieldMapping.Store = true
	authorFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	chaptersFieldMapping := bleve.NewTextFieldMapping()
	chaptersFieldMapping.Analyzer = en.AnalyzerName
	chaptersFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("chapters", chaptersFieldMapping)

	for _, field := range []string{"id", "type", "root_id"} {
		keywordFieldMapping := bleve.NewTextFieldMapping()
		keywordFieldMapping.Analyzer = keyword.Name
		keywordFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, keywordFieldMapping)
	}

	activeFieldMapping := bleve.NewBooleanFieldMapping()
	activeFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("active", activeFieldMapping)

	for _, field := range []string{"duration_ms", "added_at"} {
		numericFieldMapping := bleve.NewNumericFieldMapping()
		numericFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, numericFieldMapping)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
