// Package summarizer produces short and long summaries of diary text.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"diaryrag/internal/domain"
)

// CallConfig describes the completion call for one summary length.
type CallConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// LLMSummarizer asks a chat model for the summary.
type LLMSummarizer struct {
	llm   domain.ChatCompleter
	short CallConfig
	long  CallConfig
}

func NewLLMSummarizer(llm domain.ChatCompleter, short, long CallConfig) *LLMSummarizer {
	if short.Timeout <= 0 {
		short.Timeout = 20 * time.Second
	}
	if long.Timeout <= 0 {
		long.Timeout = 20 * time.Second
	}
	return &LLMSummarizer{llm: llm, short: short, long: long}
}

const summarySystemPrompt = "당신은 사용자의 일기를 읽고 담담하게 요약하는 도우미입니다. 한국어로 답하세요."

// Summarize returns a one-line (short) or few-sentence (long) summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string, length domain.SummaryLength) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyInput
	}
	call, instruction := s.long, "아래 일기를 3~4문장으로 요약하세요. 있었던 일과 그때의 감정을 함께 담고, 평가나 조언은 넣지 마세요."
	switch length {
	case domain.SummaryShort:
		call, instruction = s.short, "아래 일기를 한 문장, 40자 이내로 요약하세요. 평가나 조언은 넣지 마세요."
	case domain.SummaryLong:
	default:
		return "", fmt.Errorf("unknown summary length %q", length)
	}
	ctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()
	out, err := s.llm.Complete(ctx, domain.ChatRequest{
		Model:       call.Model,
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: instruction + "\n\n[일기]\n" + text},
		},
	})
	if err != nil {
		var ext *domain.ExternalServiceError
		if !errors.As(err, &ext) {
			err = domain.NewExternalServiceError("llm", string(length)+" summary", err)
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}
