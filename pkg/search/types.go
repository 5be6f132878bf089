package search

import "time"

type Config struct {
	// IndexPath 为空时使用内存索引
	IndexPath           string
	DefaultAnalyzer     string
	DefaultSearchFields []string
	QueryTimeout        time.Duration
	BatchSize           int
}

type Doc struct {
	ID     string
	Type   string
	Fields map[string]any
}

type ClausePrefix struct {
	Field  string
	Prefix string
	Boost  *float64
}

type ClauseFuzzy struct {
	Field     string
	Term      string
	Fuzziness int // 0,1,2…
	Prefix    int // 前缀长
	Boost     *float64
}

type SearchRequest struct {
	// 关键字，按 SearchFields（默认 DefaultSearchFields）匹配
	Keyword      string
	SearchFields []string

	// 结构化 Term
	MustTerms    map[string][]string
	MustNotTerms map[string][]string

	Prefixes []ClausePrefix
	Fuzzies  []ClauseFuzzy

	// 排序与分页
	SortBy []string
	From   int
	Size   int

	IncludeFields []string
}

type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

type SearchResult struct {
	Total uint64
	Took  time.Duration
	Hits  []Hit
}

// IDs returns the hit ids in rank order.
func (r SearchResult) IDs() []string {
	ids := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}
