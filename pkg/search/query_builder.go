package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

func buildQuery(req SearchRequest, defaultFields []string) q.Query {
	var must, should, mustNot []q.Query

	// 0) 关键字：每个词在任一字段命中（match 或前缀），词之间为 AND
	if kw := strings.TrimSpace(req.Keyword); kw != "" {
		fields := req.SearchFields
		if len(fields) == 0 {
			fields = defaultFields
		}
		for _, term := range strings.Fields(strings.ToLower(kw)) {
			alts := make([]q.Query, 0, len(fields)*2)
			for _, f := range fields {
				mq := bleve.NewMatchQuery(term)
				mq.SetField(f)
				alts = append(alts, mq)
				pq := bleve.NewPrefixQuery(term)
				pq.SetField(f)
				alts = append(alts, pq)
			}
			if len(alts) == 0 {
				alts = append(alts, bleve.NewMatchQuery(term))
			}
			must = append(must, bleve.NewDisjunctionQuery(alts...))
		}
	}

	// 1) Term 等值过滤
	for f, vs := range req.MustTerms {
		if len(vs) == 1 {
			tq := bleve.NewTermQuery(vs[0])
			tq.SetField(f)
			must = append(must, tq)
		} else if len(vs) > 1 {
			qs := make([]q.Query, 0, len(vs))
			for _, v := range vs {
				tq := bleve.NewTermQuery(v)
				tq.SetField(f)
				qs = append(qs, tq)
			}
			must = append(must, bleve.NewDisjunctionQuery(qs...))
		}
	}
	for f, vs := range req.MustNotTerms {
		for _, v := range vs {
			tq := bleve.NewTermQuery(v)
			tq.SetField(f)
			mustNot = append(mustNot, tq)
		}
	}

	// 2) 前缀与模糊子句只影响排序
	for _, pr := range req.Prefixes {
		pq := bleve.NewPrefixQuery(pr.Prefix)
		if pr.Field != "" {
			pq.SetField(pr.Field)
		}
		if pr.Boost != nil {
			pq.SetBoost(*pr.Boost)
		}
		should = append(should, pq)
	}
	for _, fz := range req.Fuzzies {
		fq := bleve.NewFuzzyQuery(fz.Term)
		if fz.Field != "" {
			fq.SetField(fz.Field)
		}
		if fz.Fuzziness > 0 {
			fq.SetFuzziness(fz.Fuzziness)
		}
		if fz.Prefix > 0 {
			fq.SetPrefix(fz.Prefix)
		}
		if fz.Boost != nil {
			fq.SetBoost(*fz.Boost)
		}
		should = append(should, fq)
	}

	if len(must) == 0 && len(should) == 0 {
		must = append(must, bleve.NewMatchAllQuery())
	}

	boolQ := bleve.NewBooleanQuery()
	if len(must) > 0 {
		boolQ.AddMust(must...)
	}
	if len(mustNot) > 0 {
		boolQ.AddMustNot(mustNot...)
	}
	if len(should) > 0 {
		boolQ.AddShould(should...)
	}
	return boolQ
}
