package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"diaryrag/internal/domain"
)

const diary = "오늘 회사에서 발표를 망쳤다. 발표 준비를 오래 했는데 발표 내내 떨렸다. 점심은 맛있었다. 발표 생각에 잠이 안 온다."

func TestFrequency_ShortKeepsOneSentence(t *testing.T) {
	t.Parallel()

	got, err := NewFrequencySummarizer(3).Summarize(context.Background(), diary, domain.SummaryShort)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Count(got, ".") != 1 || !strings.Contains(got, "발표") {
		t.Fatalf("got=%q", got)
	}
}

func TestFrequency_LongKeepsOrder(t *testing.T) {
	t.Parallel()

	got, err := NewFrequencySummarizer(2).Summarize(context.Background(), diary, domain.SummaryLong)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Contains(got, "점심") {
		t.Fatalf("unrelated sentence kept: %q", got)
	}
	parts := strings.SplitAfter(got, ". ")
	if len(parts) != 2 {
		t.Fatalf("got=%q, want two sentences", got)
	}
	if strings.Index(diary, strings.TrimSpace(parts[0])) > strings.Index(diary, strings.TrimSpace(parts[1])) {
		t.Fatalf("sentences out of order: %q", got)
	}
}

type fakeLLM struct {
	req   domain.ChatRequest
	reply string
	wait  bool
}

func (f *fakeLLM) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	f.req = req
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, nil
}

func TestLLM_UsesPerLengthSettings(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: " 발표 때문에 불안한 하루 "}
	s := NewLLMSummarizer(llm, CallConfig{Model: "s", MaxTokens: 100}, CallConfig{Model: "l", MaxTokens: 400})
	got, err := s.Summarize(context.Background(), diary, domain.SummaryShort)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "발표 때문에 불안한 하루" || llm.req.Model != "s" || llm.req.MaxTokens != 100 {
		t.Fatalf("got=%q req=%+v", got, llm.req)
	}
	if _, err := s.Summarize(context.Background(), diary, domain.SummaryLong); err != nil {
		t.Fatalf("long: %v", err)
	}
	if llm.req.Model != "l" || !strings.Contains(llm.req.Messages[1].Content, diary) {
		t.Fatalf("req=%+v", llm.req)
	}
}

func TestLLM_Errors(t *testing.T) {
	t.Parallel()

	s := NewLLMSummarizer(&fakeLLM{wait: true}, CallConfig{Timeout: 20 * time.Millisecond}, CallConfig{})
	if _, err := s.Summarize(context.Background(), "  ", domain.SummaryShort); !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
	if _, err := s.Summarize(context.Background(), diary, "medium"); err == nil {
		t.Fatalf("expected unknown length error")
	}
	_, err := s.Summarize(context.Background(), diary, domain.SummaryShort)
	if !domain.IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}
}
