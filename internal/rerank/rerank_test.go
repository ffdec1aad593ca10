package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"diaryrag/internal/domain"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	req   domain.ChatRequest
	wait  bool
}

func (f *fakeLLM) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	f.calls++
	f.req = req
	if f.wait {
		<-ctx.Done()
		return "", domain.NewExternalServiceError("llm", "chat", ctx.Err())
	}
	return f.reply, f.err
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"prose around", "결과입니다: {\"a\": {\"b\": 2}} 감사합니다 {\"c\":3}", `{"a": {"b": 2}}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"braces in strings", `{"a":"}{","b":"\"}"}`, `{"a":"}{","b":"\"}"}`},
		{"fence inside value", "```json\n{\"c\":\"a { b \\\" } c ```x\"}\n```", `{"c":"a { b \" } c ` + "```" + `x"}`},
		{"fence on one line", "```json{\"a\":1}```", `{"a":1}`},
		{"prose then fence", "결과:\n```json\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got=%s want=%s", tc.name, got, tc.want)
		}
	}
}

func TestExtractJSON_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "no json here", `{"a": 1`, `{"a": }`} {
		_, err := ExtractJSON(in)
		var mal *domain.MalformedResponseError
		if !errors.As(err, &mal) {
			t.Fatalf("ExtractJSON(%q) err=%v, want MalformedResponseError", in, err)
		}
	}
}

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	raw := `{"ranked_items":[{"type":"single","content":"천천히 산책해 보세요. 도움이 됩니다."},{"type":"multi","content":"상담사: 충분히 쉬세요"}],
		"top_k_final":["천천히 산책해 보세요.","상담사: 충분히 쉬세요"]}`
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.RankedItems) != 2 || res.RankedItems[1].Type != domain.MultiTurn || len(res.TopKFinal) != 2 {
		t.Fatalf("res=%+v", res)
	}
}

func TestParse_Violations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad type":       `{"ranked_items":[{"type":"other","content":"x"}],"top_k_final":[]}`,
		"too many final": `{"ranked_items":[{"type":"single","content":"a b c d"}],"top_k_final":["a","b","c","d"]}`,
		"not verbatim":   `{"ranked_items":[{"type":"single","content":"a"}],"top_k_final":["z"]}`,
		"empty final":    `{"ranked_items":[{"type":"single","content":"a"}],"top_k_final":[" "]}`,
		"wrong shape":    `{"ranked_items":"nope"}`,
	}
	for name, raw := range cases {
		_, err := Parse(raw)
		var mal *domain.MalformedResponseError
		if !errors.As(err, &mal) {
			t.Fatalf("%s: err=%v, want MalformedResponseError", name, err)
		}
	}
}

func TestParse_MissingListsAreEmpty(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.RankedItems == nil || res.TopKFinal == nil {
		t.Fatalf("res=%+v, want non-nil empty slices", res)
	}
}

func TestRerank_BothEmptySkipsModel(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{}
	res, err := New(llm, Config{}, nil).Rerank(context.Background(), "요약", domain.Candidates{})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if llm.calls != 0 || len(res.TopKFinal) != 0 || len(res.RankedItems) != 0 {
		t.Fatalf("calls=%d res=%+v", llm.calls, res)
	}
}

func TestRerank_SendsPromptAndParses(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{reply: "다음과 같습니다.\n```json\n{\"ranked_items\":[{\"type\":\"single\",\"content\":\"호흡을 가다듬어 보세요\"}],\"top_k_final\":[\"호흡을 가다듬어 보세요\"]}\n```"}
	c := domain.Candidates{Single: []string{"호흡을 가다듬어 보세요"}}
	res, err := New(llm, Config{}, nil).Rerank(context.Background(), "불안이 심한 상태", c)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(res.TopKFinal) != 1 {
		t.Fatalf("res=%+v", res)
	}
	if llm.req.Model != "gpt-4.1-nano" || llm.req.MaxTokens != 3000 || llm.req.Temperature != 0.3 {
		t.Fatalf("req=%+v", llm.req)
	}
	prompt := llm.req.Messages[1].Content
	for _, want := range []string{"불안이 심한 상태", "- 호흡을 가다듬어 보세요", "[멀티턴 상담 데이터]\n- 없음", "top_k_final", "maxItems"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRerank_TransportErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := domain.NewExternalServiceError("llm", "chat", errors.New("503"))
	_, err := New(&fakeLLM{err: boom}, Config{}, nil).Rerank(context.Background(), "s", domain.Candidates{Single: []string{"a"}})
	var ext *domain.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("err=%v, want ExternalServiceError", err)
	}
}

func TestRerank_Timeout(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeLLM{wait: true}, Config{Timeout: 20 * time.Millisecond}, nil).
		Rerank(context.Background(), "s", domain.Candidates{Multi: []string{"a"}})
	if !domain.IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}
}

func TestBullets(t *testing.T) {
	t.Parallel()

	if Bullets(nil) != "- 없음" {
		t.Fatalf("empty bullets=%q", Bullets(nil))
	}
	if got := Bullets([]string{" a ", "b"}); got != "- a\n- b" {
		t.Fatalf("got=%q", got)
	}
}
