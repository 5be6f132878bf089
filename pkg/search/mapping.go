package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const TypeBeneficiary = "beneficiary"

// BeneficiaryFields are matched by a free text query.
var BeneficiaryFields = []string{"name", "surname", "telephone", "description"}

func BuildIndexMapping(defaultAnalyzer string) *mapping.IndexMappingImpl {
	if defaultAnalyzer == "" {
		defaultAnalyzer = standard.Name
	}
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = defaultAnalyzer
	idx.TypeField = "type"

	// 文本
	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = defaultAnalyzer
	text.IncludeInAll = true

	// 关键词
	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name
	kw.IncludeInAll = false

	flag := mapping.NewBooleanFieldMapping()
	flag.Store = true
	flag.Index = true

	beneficiary := mapping.NewDocumentMapping()
	beneficiary.Dynamic = false
	beneficiary.AddFieldMappingsAt("name", text)
	beneficiary.AddFieldMappingsAt("surname", text)
	beneficiary.AddFieldMappingsAt("description", text)
	beneficiary.AddFieldMappingsAt("telephone", kw)
	beneficiary.AddFieldMappingsAt("company", kw)
	beneficiary.AddFieldMappingsAt("organization", kw)
	beneficiary.AddFieldMappingsAt("enabled", flag)
	idx.AddDocumentMapping(TypeBeneficiary, beneficiary)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
