package domain

import "context"

// Classifier returns a distribution over the six emotion labels for one text.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}

// Embedder converts free text into a fixed-length vector using an external model.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatCompleter is an LLM chat completion backend.
// Complete returns the text of the first choice.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// SummaryLength selects between a one-line and a multi-sentence summary.
type SummaryLength string

const (
	SummaryShort SummaryLength = "short"
	SummaryLong  SummaryLength = "long"
)

// Summarizer condenses diary text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, length SummaryLength) (string, error)
}
