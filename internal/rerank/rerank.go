// Package rerank asks an LLM to merge and reorder retrieved counseling
// candidates, then validates the structured answer.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
)

const systemPrompt = "당신은 벡터 검색으로 찾은 상담 기록을 사용자의 상황에 맞게 다시 평가하고 순위를 매기는 평가자입니다."

// Config describes the rerank call.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns the stock rerank call settings.
func DefaultConfig() Config {
	return Config{Model: "gpt-4.1-nano", MaxTokens: 3000, Temperature: 0.3, Timeout: 30 * time.Second}
}

// Reranker merges single- and multi-turn candidates into one ranked list.
type Reranker struct {
	llm domain.ChatCompleter
	cfg Config
	log *zap.Logger
}

func New(llm domain.ChatCompleter, cfg Config, log *zap.Logger) *Reranker {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
		if cfg.Temperature == 0 {
			cfg.Temperature = def.Temperature
		}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Reranker{llm: llm, cfg: cfg, log: logging.OrNop(log)}
}

// Rerank returns the validated ranking for summary. When both candidate lists
// are empty it returns an empty result without calling the model.
// Transport failures are *domain.ExternalServiceError; unusable answers are
// *domain.MalformedResponseError.
func (r *Reranker) Rerank(ctx context.Context, summary string, c domain.Candidates) (domain.RerankResult, error) {
	if c.Empty() {
		return domain.RerankResult{RankedItems: []domain.CounselRecord{}, TopKFinal: []string{}}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	raw, err := r.llm.Complete(ctx, domain.ChatRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(summary, c)},
		},
	})
	if err != nil {
		return domain.RerankResult{}, err
	}
	res, err := Parse(raw)
	if err != nil {
		r.log.Warn("rerank answer rejected", zap.Error(err), zap.Int("raw_len", len(raw)))
		return domain.RerankResult{}, err
	}
	r.log.Debug("reranked", zap.Int("ranked", len(res.RankedItems)), zap.Int("final", len(res.TopKFinal)))
	return res, nil
}

// Parse extracts and validates a rerank answer.
func Parse(raw string) (domain.RerankResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return domain.RerankResult{}, err
	}
	var res domain.RerankResult
	if err := json.Unmarshal(obj, &res); err != nil {
		return domain.RerankResult{}, &domain.MalformedResponseError{Reason: "unexpected JSON shape", Raw: raw, Err: err}
	}
	if res.RankedItems == nil {
		res.RankedItems = []domain.CounselRecord{}
	}
	if res.TopKFinal == nil {
		res.TopKFinal = []string{}
	}
	if err := validate(res); err != nil {
		return domain.RerankResult{}, &domain.MalformedResponseError{Reason: err.Error(), Raw: raw}
	}
	return res, nil
}

func validate(res domain.RerankResult) error {
	for i, it := range res.RankedItems {
		if it.Type != domain.SingleTurn && it.Type != domain.MultiTurn {
			return fmt.Errorf("ranked item %d has type %q", i, it.Type)
		}
	}
	if len(res.TopKFinal) > domain.MaxFinal {
		return fmt.Errorf("top_k_final has %d entries, max %d", len(res.TopKFinal), domain.MaxFinal)
	}
	for i, final := range res.TopKFinal {
		if strings.TrimSpace(final) == "" {
			return fmt.Errorf("top_k_final entry %d is empty", i)
		}
		found := false
		for _, it := range res.RankedItems {
			if strings.Contains(it.Content, final) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("top_k_final entry %d not found in ranked items", i)
		}
	}
	return nil
}

// answer mirrors domain.RerankResult for schema generation.
type answer struct {
	RankedItems []rankedItem `json:"ranked_items" jsonschema:"required"`
	TopKFinal   []string     `json:"top_k_final" jsonschema:"required,maxItems=3"`
}

type rankedItem struct {
	Type    string `json:"type" jsonschema:"required,enum=single,enum=multi"`
	Content string `json:"content" jsonschema:"required"`
}

var answerSchema = mustSchema()

func mustSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := reflector.Reflect(&answer{})
	s.Version = ""
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Bullets renders items as "- item" lines, or "- 없음" when there are none.
func Bullets(items []string) string {
	if len(items) == 0 {
		return "- 없음"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + strings.TrimSpace(it)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt renders the rerank instruction for one request.
func BuildPrompt(summary string, c domain.Candidates) string {
	var b strings.Builder
	b.WriteString("아래는 사용자의 현재 심리 상태를 요약한 내용입니다.\n\n")
	b.WriteString("[사용자 요약]\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n검색 시스템이 찾은 상담 기록 후보입니다.\n\n")
	b.WriteString("[싱글턴 상담 데이터]\n")
	b.WriteString(Bullets(c.Single))
	b.WriteString("\n\n[멀티턴 상담 데이터]\n")
	b.WriteString(Bullets(c.Multi))
	b.WriteString(`

두 목록을 하나로 합쳐 사용자에게 도움이 될 가능성이 높은 순서로 다시 정렬하세요.

평가 기준
1. 내용 관련성: 요약된 감정 상태와 직접 연결되는가
2. 상황 유사성: 관계, 스트레스 요인, 감정 패턴이 닮았는가
3. 감정 일치: 불안, 분노, 슬픔, 상처 같은 감정 맥락이 맞는가
4. 조언 가능성: 실제 조언을 만드는 데 쓸 수 있는가
5. 중복 제거: 의미가 겹치는 사례는 하나로 묶고 순위를 낮출 것

출력은 아래 JSON 스키마를 따르는 JSON 객체 하나만 작성하세요.
- type은 "single" 또는 "multi"
- content는 후보의 원문 그대로
- top_k_final에는 가장 적합한 상담 내용 최대 3개를 원문 그대로

`)
	b.WriteString(answerSchema)
	b.WriteString("\n")
	return b.String()
}
