// Package service wires scoring, summarization, retrieval, reranking and
// advice into the request pipelines.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"diaryrag/internal/chunker"
	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
)

// Scorer computes the emotion profile of diary sentences.
type Scorer interface {
	Score(ctx context.Context, sentences []string) (domain.EmotionProfile, error)
}

// Retriever finds similar counseling precedents. It never fails; trouble yields empty candidates.
type Retriever interface {
	Retrieve(ctx context.Context, query string, profile domain.Profile, topK int) domain.Candidates
}

// Reranker orders candidates by usefulness for the user.
type Reranker interface {
	Rerank(ctx context.Context, summary string, c domain.Candidates) (domain.RerankResult, error)
}

// Advisor writes the final advice text.
type Advisor interface {
	Synthesize(ctx context.Context, role domain.Role, report, reference string) (string, error)
}

// Journal records analyzed diary entries.
type Journal interface {
	Save(ctx context.Context, e domain.DiaryEntry) error
}

// Deps are the components a Service needs. Journal and Chunker are optional.
type Deps struct {
	Scorer     Scorer
	Summarizer domain.Summarizer
	Retriever  Retriever
	Reranker   Reranker
	Advisor    Advisor
	Journal    Journal
	Chunker    *chunker.SentenceChunker
	Log        *zap.Logger
}

// Service runs the diary summary and advice pipelines.
type Service struct {
	scorer     Scorer
	summarizer domain.Summarizer
	retriever  Retriever
	reranker   Reranker
	advisor    Advisor
	journal    Journal
	chunker    *chunker.SentenceChunker
	log        *zap.Logger
}

func New(d Deps) *Service {
	c := d.Chunker
	if c == nil {
		c = chunker.NewSentenceChunker(1, 0)
	}
	return &Service{
		scorer:     d.Scorer,
		summarizer: d.Summarizer,
		retriever:  d.Retriever,
		reranker:   d.Reranker,
		advisor:    d.Advisor,
		journal:    d.Journal,
		chunker:    c,
		log:        logging.OrNop(d.Log),
	}
}

// DiaryRequest carries one day of diary entries.
type DiaryRequest struct {
	UserID string   `json:"user_id"`
	Texts  []string `json:"texts"`
	// Profile, when set, enables the short daily advice.
	Profile *domain.Profile `json:"profile,omitempty"`
}

// DiaryResult is the per-day analysis.
type DiaryResult struct {
	Score        float64                    `json:"score"`
	Sentiment    map[domain.Emotion]float64 `json:"sentiment"`
	ShortSummary string                     `json:"short_summary"`
	LongSummary  string                     `json:"long_summary"`
	ShortAdvice  string                     `json:"short_advice,omitempty"`
}

// DiarySummary is the response to a DiaryRequest.
type DiarySummary struct {
	UserID string      `json:"user_id"`
	Result DiaryResult `json:"result"`
}

// AdviceRequest asks for advice on a weekly report.
type AdviceRequest struct {
	UserID  string         `json:"user_id"`
	Role    domain.Role    `json:"role"`
	Report  string         `json:"report"`
	Summary string         `json:"total_summary"`
	Profile domain.Profile `json:"profile"`
}

// AdviceResult is the response to an AdviceRequest.
type AdviceResult struct {
	UserID string `json:"user_id"`
	Report string `json:"report"`
	Advice string `json:"advice"`
}

// DiarySummary scores the entries and summarizes them concurrently. Any
// failing step fails the whole request. A journal write failure is only logged.
func (s *Service) DiarySummary(ctx context.Context, req DiaryRequest) (DiarySummary, error) {
	log := s.requestLogger("diary_summary", req.UserID)
	var sentences []string
	for _, t := range req.Texts {
		sentences = append(sentences, s.chunker.Chunk(t)...)
	}
	if len(sentences) == 0 {
		return DiarySummary{}, domain.ErrEmptyInput
	}
	joined := strings.Join(sentences, " ")

	var (
		profile     domain.EmotionProfile
		short, long string
		dailyAdvice string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.scorer.Score(gctx, sentences)
		if err != nil {
			return fmt.Errorf("score: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		short, err = s.summarizer.Summarize(gctx, joined, domain.SummaryShort)
		if err != nil {
			return fmt.Errorf("short summary: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		long, err = s.summarizer.Summarize(gctx, joined, domain.SummaryLong)
		if err != nil {
			return fmt.Errorf("long summary: %w", err)
		}
		return nil
	})
	if req.Profile != nil {
		g.Go(func() error {
			var err error
			dailyAdvice, err = s.advise(gctx, log, domain.RoleDaily, joined, joined, *req.Profile)
			if err != nil {
				return fmt.Errorf("daily advice: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("diary summary failed", zap.Error(err))
		return DiarySummary{}, err
	}
	log.Info("diary summary done", zap.Float64("score", profile.DistressScore), zap.Int("sentences", len(sentences)))
	if s.journal != nil {
		err := s.journal.Save(ctx, domain.DiaryEntry{
			UserID:       req.UserID,
			CreatedAt:    time.Now(),
			Text:         strings.Join(req.Texts, "\n"),
			Emotion:      profile,
			ShortSummary: short,
			LongSummary:  long,
			ShortAdvice:  dailyAdvice,
		})
		if err != nil {
			log.Warn("journal write failed", zap.Error(err))
		}
	}
	return DiarySummary{
		UserID: req.UserID,
		Result: DiaryResult{
			Score:        profile.DistressScore,
			Sentiment:    profile.Sentiment,
			ShortSummary: short,
			LongSummary:  long,
			ShortAdvice:  dailyAdvice,
		},
	}, nil
}

// Advice retrieves, reranks and synthesizes advice for a weekly report.
func (s *Service) Advice(ctx context.Context, req AdviceRequest) (AdviceResult, error) {
	if !req.Role.Valid() {
		return AdviceResult{}, fmt.Errorf("unknown advice role %q", req.Role)
	}
	log := s.requestLogger(string(req.Role)+"_advice", req.UserID)
	query := req.Summary
	if strings.TrimSpace(query) == "" {
		query = req.Report
	}
	advice, err := s.advise(ctx, log, req.Role, query, req.Report, req.Profile)
	if err != nil {
		log.Error("advice failed", zap.Error(err))
		return AdviceResult{}, err
	}
	log.Info("advice done", zap.Int("chars", len([]rune(advice))))
	return AdviceResult{UserID: req.UserID, Report: req.Report, Advice: advice}, nil
}

// DailyAdvice runs the advice chain for a single diary day.
func (s *Service) DailyAdvice(ctx context.Context, userID, text string, profile domain.Profile) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyInput
	}
	log := s.requestLogger("daily_advice", userID)
	return s.advise(ctx, log, domain.RoleDaily, text, text, profile)
}

// advise runs retrieve, rerank and synthesize in order. A malformed rerank
// answer, or one with no final picks, falls back to the raw single-turn candidates.
func (s *Service) advise(ctx context.Context, log *zap.Logger, role domain.Role, query, report string, profile domain.Profile) (string, error) {
	cands := s.retriever.Retrieve(ctx, query, profile, 0)
	log.Debug("retrieved", zap.Int("single", len(cands.Single)), zap.Int("multi", len(cands.Multi)))

	var reference string
	res, err := s.reranker.Rerank(ctx, query, cands)
	var malformed *domain.MalformedResponseError
	switch {
	case errors.As(err, &malformed):
		log.Warn("rerank answer unusable, using single-turn candidates", zap.Error(err))
		reference = strings.Join(cands.Single, "\n")
	case err != nil:
		return "", fmt.Errorf("rerank: %w", err)
	case len(res.TopKFinal) == 0:
		reference = strings.Join(cands.Single, "\n")
	default:
		reference = strings.Join(res.TopKFinal, "\n")
	}
	return s.advisor.Synthesize(ctx, role, report, reference)
}

func (s *Service) requestLogger(op, userID string) *zap.Logger {
	return s.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("op", op),
		zap.String("user_id", userID),
	)
}
