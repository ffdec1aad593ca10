package chunker

import (
	"regexp"
	"strings"
)

// SentenceChunker splits diary text into scoring units of one or more
// sentences, optionally overlapping.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker builds a chunker; non-positive sizes fall back to one sentence per unit.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 1
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		// terminal punctuation runs, or line breaks, end a sentence
		splitter: regexp.MustCompile(`[^.!?~\n]+(?:[.!?~]+|\n|$)`),
	}
}

// Sentences returns the trimmed, non-empty sentences of text in order.
func (c *SentenceChunker) Sentences(text string) []string {
	raw := c.splitter.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chunk groups the sentences of text into units of sentencesPerChunk.
func (c *SentenceChunker) Chunk(text string) []string {
	sentences := c.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
