package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"papergrade/internal/config"
	"papergrade/internal/domain"

	"go.uber.org/zap"
)

var keywordTokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// stopwords excluded from keyword boosting. Matching is case-insensitive.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "had": {}, "how": {},
	"what": {}, "which": {}, "when": {}, "where": {}, "who": {}, "whom": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "with": {}, "from": {},
	"they": {}, "will": {}, "would": {}, "there": {}, "their": {}, "about": {},
	"into": {}, "than": {}, "then": {}, "them": {}, "some": {}, "such": {},
	"does": {}, "explain": {}, "describe": {}, "define": {}, "write": {},
	"give": {}, "state": {}, "briefly": {}, "following": {}, "answer": {},
	"question": {}, "marks": {},
}

// HybridRetriever combines semantic similarity search over the knowledge
// base with a capped lexical keyword boost, so passages that both embed
// close to the question and literally mention its terms rank first.
type HybridRetriever struct {
	index  domain.KnowledgeBaseIndex
	cfg    config.RetrieverConfig
	logger *zap.Logger
}

// NewHybridRetriever creates a new HybridRetriever.
func NewHybridRetriever(index domain.KnowledgeBaseIndex, cfg config.RetrieverConfig, logger *zap.Logger) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinKeywordLength <= 0 {
		cfg.MinKeywordLength = 3
	}
	if cfg.KeywordBoostCap <= 0 {
		cfg.KeywordBoostCap = 5
	}
	if cfg.KeywordBoostStep <= 0 {
		cfg.KeywordBoostStep = 0.02
	}
	if cfg.ContextCharLimit <= 0 {
		cfg.ContextCharLimit = 2000
	}
	return &HybridRetriever{index: index, cfg: cfg, logger: logger}
}

// ExtractKeywords lowercases the query, tokenizes it and drops stopwords
// and tokens shorter than the configured minimum.
func (r *HybridRetriever) ExtractKeywords(query string) []string {
	tokens := keywordTokenRe.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(tokens))
	var keywords []string
	for _, token := range tokens {
		if len(token) < r.cfg.MinKeywordLength {
			continue
		}
		if _, isStop := stopwords[token]; isStop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

// Retrieve fetches 2*TopK semantic candidates, applies the keyword boost
// and returns the TopK best by boosted score. A knowledge-base failure is
// downgraded to an empty result so grading can proceed without context.
func (r *HybridRetriever) Retrieve(ctx context.Context, query, subject string) ([]domain.RetrievedPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	candidates, err := r.index.Search(ctx, query, subject, r.cfg.TopK*2)
	if err != nil {
		r.logger.Warn("Knowledge base search failed, grading without context",
			zap.String("subject", subject),
			zap.Error(err))
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	keywords := r.ExtractKeywords(query)
	passages := make([]domain.RetrievedPassage, 0, len(candidates))
	for _, c := range candidates {
		passages = append(passages, domain.RetrievedPassage{
			Text:          c.Text,
			SourceID:      c.SourceID,
			SemanticScore: c.Score,
			KeywordBoost:  r.keywordBoost(c.Text, keywords),
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].BoostedScore() > passages[j].BoostedScore()
	})
	if len(passages) > r.cfg.TopK {
		passages = passages[:r.cfg.TopK]
	}
	return passages, nil
}

// keywordBoost counts distinct query keywords present in the passage,
// capped, and converts the count to a score increment.
func (r *HybridRetriever) keywordBoost(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
			if hits == r.cfg.KeywordBoostCap {
				break
			}
		}
	}
	return float64(hits) * r.cfg.KeywordBoostStep
}

// FormatContext renders ranked passages into the prompt context block,
// dropping trailing passages that would overflow the character budget.
// A passage is included whole or not at all; rank order is never
// reordered by truncation.
func (r *HybridRetriever) FormatContext(passages []domain.RetrievedPassage) string {
	if len(passages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, passage := range passages {
		entry := fmt.Sprintf("Source %d (relevance: %.2f):\n%s\n\n", i+1, passage.BoostedScore(), strings.TrimSpace(passage.Text))
		if b.Len()+len(entry) > r.cfg.ContextCharLimit {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}
