package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kiroku/internal/models"
)

// entryDoc is the shape indexed per entry.
type entryDoc struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused so entries are not re-indexed on restart. If the mapping
// changes in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query like
	// "goroutines" only matches that exact word form; the English analyzer
	// stems terms in ways that surprise users searching their own notes.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	docMapping.AddFieldMappingsAt("summary", textFieldMapping)
	im.AddDocumentMapping("entry", docMapping)
	im.DefaultType = "entry"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexEntry indexes an entry's content, tag names, and summary under its ID.
func (b *BleveIndex) IndexEntry(ctx context.Context, entry *models.Entry) error {
	tags := make([]string, len(entry.Tags))
	for i, t := range entry.Tags {
		tags[i] = t.Name
	}
	return b.index.Index(entry.ID, entryDoc{
		Content: entry.Content,
		Tags:    tags,
		Summary: entry.Summary,
	})
}

// Search runs a match query and returns up to limit results. When opts.TagBoost
// is greater than 1, tag and content matches are scored separately and merged
// additively with a term coverage penalty, so entries matching all query terms
// outrank partial matches.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *Options) ([]*Result, error) {
	tagBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TagBoost > 0 {
			tagBoost = opts.TagBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	if tagBoost <= 1.0 {
		return b.searchSingle(query, limit, fuzzyEnabled, fuzziness)
	}
	return b.searchTagBoosted(query, limit, tagBoost, fuzzyEnabled, fuzziness)
}

func (b *BleveIndex) searchSingle(query string, limit int, fuzzyEnabled bool, fuzziness int) ([]*Result, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness, "")
	} else {
		q = bleve.NewMatchQuery(query)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) searchTagBoosted(query string, limit int, tagBoost float64, fuzzyEnabled bool, fuzziness int) ([]*Result, error) {
	// Request enough from each field so the merged top "limit" is correct.
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	terms := tokenizeQuery(query)

	var tagQuery, contentQuery blevequery.Query
	if fuzzyEnabled {
		tagQuery = buildFuzzyQuery(query, fuzziness, "tags")
		contentQuery = buildFuzzyQuery(query, fuzziness, "content")
	} else {
		tq := bleve.NewMatchQuery(query)
		tq.SetField("tags")
		tagQuery = tq
		cq := bleve.NewMatchQuery(query)
		cq.SetField("content")
		contentQuery = cq
	}

	tagScores, err := b.runScored(tagQuery, reqSize)
	if err != nil {
		return nil, fmt.Errorf("bleve tag search: %w", err)
	}
	contentScores, err := b.runScored(contentQuery, reqSize)
	if err != nil {
		return nil, fmt.Errorf("bleve content search: %w", err)
	}

	// Coverage: how many distinct query terms each entry matches. A squared
	// penalty makes entries matching all terms outrank partial matches.
	coverage := make(map[string]int)
	if len(terms) > 1 {
		coverage = b.termCoverage(terms, reqSize, fuzzyEnabled, fuzziness)
	}

	scores := make(map[string]float64)
	for id, s := range tagScores {
		scores[id] += s * tagBoost
	}
	for id, s := range contentScores {
		scores[id] += s
	}
	if len(terms) > 1 {
		for id := range scores {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(len(terms))
			scores[id] *= c * c
		}
	}

	type scored struct {
		id    string
		score float64
	}
	merged := make([]scored, 0, len(scores))
	for id, score := range scores {
		merged = append(merged, scored{id: id, score: score})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
	if len(merged) > limit {
		merged = merged[:limit]
	}

	out := make([]*Result, len(merged))
	for i, s := range merged {
		out[i] = &Result{ID: s.id, Score: s.score}
	}
	return out, nil
}

func (b *BleveIndex) runScored(q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

func (b *BleveIndex) termCoverage(terms []string, reqSize int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		var q blevequery.Query
		if fuzzyEnabled {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			q = fq
		} else {
			q = bleve.NewMatchQuery(term)
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// tokenizeQuery splits a query into lowercase terms.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			terms = append(terms, w)
		}
	}
	return terms
}

// buildFuzzyQuery creates a disjunction of fuzzy queries for each term. An
// empty field searches all fields.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Suggest returns a corrected query built by replacing terms absent from the
// index with their closest indexed term. Returns "" when every term is known
// or no close replacement exists.
func (b *BleveIndex) Suggest(query string) string {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return ""
	}

	dict := b.allTerms()
	if len(dict) == 0 {
		return ""
	}
	known := make(map[string]struct{}, len(dict))
	for _, t := range dict {
		known[t] = struct{}{}
	}

	corrected := make([]string, len(terms))
	changed := false
	for i, term := range terms {
		corrected[i] = term
		if _, ok := known[term]; ok {
			continue
		}
		if best := closestTerm(term, dict, 2); best != "" {
			corrected[i] = best
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(corrected, " ")
}

// allTerms collects the unique indexed terms from the searchable fields.
func (b *BleveIndex) allTerms() []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, field := range []string{"content", "tags"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			continue
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				terms = append(terms, entry.Term)
				seen[entry.Term] = struct{}{}
			}
		}
		dict.Close()
	}
	return terms
}

// closestTerm returns the dictionary term nearest to term within maxDistance,
// or "" when none qualifies. Ties go to the earlier dictionary term.
func closestTerm(term string, dict []string, maxDistance int) string {
	best := ""
	bestDist := maxDistance + 1
	for _, candidate := range dict {
		lenDiff := len(candidate) - len(term)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if lenDiff > maxDistance {
			continue
		}
		if d := levenshtein(term, candidate); d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}

// Delete removes an entry from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of indexed entries.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
