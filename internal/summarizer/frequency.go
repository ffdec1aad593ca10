package summarizer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"diaryrag/internal/chunker"
	"diaryrag/internal/domain"
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
// It needs no external service.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	splitter     *chunker.SentenceChunker
	maxSentences int
}

// NewFrequencySummarizer creates a frequency-based sentence ranker. Long
// summaries keep up to maxSentences sentences; short ones keep one.
func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+`),
		stopwords:    defaultStopwords(),
		splitter:     chunker.NewSentenceChunker(1, 0),
		maxSentences: maxSentences,
	}
}

// Summarize returns the highest-ranked sentences of text in their original order.
func (s *FrequencySummarizer) Summarize(ctx context.Context, text string, length domain.SummaryLength) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := s.maxSentences
	if length == domain.SummaryShort {
		limit = 1
	}
	sentences := s.splitter.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if limit > len(scores) {
		limit = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, limit)
	for i := 0; i < limit; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, limit)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) tokens(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"그리고", "그런데", "하지만", "그래서", "그러나", "그냥", "너무", "정말", "진짜", "아주",
		"좀", "또", "더", "잘", "안", "못", "것", "수", "등", "이", "그", "저",
		"나", "나는", "내가", "저는", "제가", "오늘", "오늘은", "했다", "있다", "없다", "같다",
		"the", "a", "an", "and", "or", "but", "to", "of", "in", "is", "it",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
