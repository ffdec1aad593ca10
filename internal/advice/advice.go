// Package advice turns a user report and reference counseling cases into
// short, cautious Korean advice for a given audience.
package advice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
)

// NoSimilarCases replaces the reference block when nothing was retrieved.
const NoSimilarCases = "유사 상담 데이터를 찾지 못했습니다."

// CallConfig describes the completion call for one role.
type CallConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultCalls returns the stock per-role call settings.
func DefaultCalls() map[domain.Role]CallConfig {
	return map[domain.Role]CallConfig{
		domain.RoleManager:    {Model: "gpt-4.1-nano", MaxTokens: 500, Temperature: 0.6, Timeout: 30 * time.Second},
		domain.RoleIndividual: {Model: "gpt-4.1-nano", MaxTokens: 500, Temperature: 0.6, Timeout: 20 * time.Second},
		domain.RoleDaily:      {Model: "gpt-4.1-nano", MaxTokens: 200, Temperature: 0.6, Timeout: 20 * time.Second},
	}
}

// Synthesizer generates advice text.
type Synthesizer struct {
	llm   domain.ChatCompleter
	calls map[domain.Role]CallConfig
	log   *zap.Logger
}

// New merges calls over DefaultCalls; roles missing from calls keep their defaults.
func New(llm domain.ChatCompleter, calls map[domain.Role]CallConfig, log *zap.Logger) *Synthesizer {
	merged := DefaultCalls()
	for role, c := range calls {
		def := merged[role]
		if c.Model == "" {
			c.Model = def.Model
			if c.Temperature == 0 {
				c.Temperature = def.Temperature
			}
		}
		if c.MaxTokens <= 0 {
			c.MaxTokens = def.MaxTokens
		}
		if c.Timeout <= 0 {
			c.Timeout = def.Timeout
		}
		merged[role] = c
	}
	return &Synthesizer{llm: llm, calls: merged, log: logging.OrNop(log)}
}

// Synthesize writes advice for role. report is the weekly report for the
// manager and individual roles and the diary text for the daily role;
// reference is the reranked counseling text, possibly empty.
func (s *Synthesizer) Synthesize(ctx context.Context, role domain.Role, report, reference string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown advice role %q", role)
	}
	call := s.calls[role]
	if strings.TrimSpace(reference) == "" {
		reference = NoSimilarCases
	}
	ctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	out, err := s.llm.Complete(ctx, domain.ChatRequest{
		Model:       call.Model,
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompts[role]},
			{Role: "user", Content: BuildPrompt(role, report, reference)},
		},
	})
	if err != nil {
		var ext *domain.ExternalServiceError
		if !errors.As(err, &ext) {
			err = domain.NewExternalServiceError("llm", string(role)+" advice", err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", domain.NewExternalServiceError("llm", string(role)+" advice", errors.New("empty completion"))
	}
	s.log.Debug("advice generated", zap.String("role", string(role)), zap.Int("chars", len([]rune(out))))
	return out, nil
}

var systemPrompts = map[domain.Role]string{
	domain.RoleManager:    "당신은 정서적으로 힘든 팀원을 돌봐야 하는 팀장에게 가이드를 주는 상담 코치입니다. 한국어로, 팀장만 할 수 있는 조치 위주로 답하세요.",
	domain.RoleIndividual: "당신은 정서적으로 지친 사람에게 작은 조언을 건네는 코치입니다. 한국어로 답하세요.",
	domain.RoleDaily:      "당신은 오늘 하루가 힘들었던 사용자에게 짧은 조언을 건네는 친구입니다. 한국어로 답하세요.",
}

const commonRules = `- 존댓말로 작성할 것
- 과한 감정 표현 없이 현실적이고 따뜻하게 쓸 것
- 전문 상담가가 아니므로 진단하지 말고 안전하고 조심스러운 방법을 제안할 것
- 유사한 상담 사례가 있으면 참고하고, 없으면 스스로 판단해 조언할 것`

// BuildPrompt renders the user message for role.
func BuildPrompt(role domain.Role, report, reference string) string {
	var b strings.Builder
	switch role {
	case domain.RoleManager:
		b.WriteString("당신은 팀장으로서 팀원의 상태 보고서를 보고 조언을 준비합니다.\n")
		b.WriteString(commonRules)
		b.WriteString("\n- 개인이 스스로 할 수 있는 일보다 팀장만 할 수 있는 조치를 제안할 것")
		b.WriteString("\n- 300자 이상 500자 이하로 작성할 것")
		b.WriteString("\n- 먼저 상태를 짧게 요약하고, 제안은 최대 3개까지 번호를 붙여 작성할 것\n\n")
		b.WriteString("[팀원의 일주일 상태 보고서]\n")
	case domain.RoleIndividual:
		b.WriteString("당신은 사용자 본인에게 작은 조언을 건넵니다.\n")
		b.WriteString(commonRules)
		b.WriteString("\n- 100자 이상 300자 이하로 작성할 것")
		b.WriteString("\n- 제안은 최대 3개까지 번호를 붙여 짧게 작성할 것\n\n")
		b.WriteString("[사용자의 일주일 다이어리 보고서]\n")
	case domain.RoleDaily:
		b.WriteString("당신은 오늘의 다이어리를 읽고 아주 짧은 조언을 건넵니다.\n")
		b.WriteString(commonRules)
		b.WriteString("\n- 한 줄 공감 뒤에 조언을 최대 2개까지 작성할 것")
		b.WriteString("\n- 각 조언은 50자를 넘기지 말 것")
		b.WriteString("\n- 형식: \"조언 1 : ...\" 다음 줄에 \"조언 2 : ...\"\n\n")
		b.WriteString("[오늘의 다이어리]\n")
	}
	b.WriteString(strings.TrimSpace(report))
	b.WriteString("\n\n[유사한 상담 사례]\n")
	b.WriteString(strings.TrimSpace(reference))
	b.WriteString("\n")
	return b.String()
}
