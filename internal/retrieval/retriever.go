// Package retrieval finds counseling precedents similar to a user's situation.
package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
	"diaryrag/internal/vectorstore"
)

// Config tunes the hybrid queries. Zero values take the defaults: TopK 5,
// Alpha 0.5, Timeout 20s, fields output and dialogue.
type Config struct {
	TopK        int
	Alpha       float64
	Timeout     time.Duration
	SingleField string
	MultiField  string
}

// Retriever embeds a composite query once and searches both counseling collections with it.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	cfg      Config
	log      *zap.Logger
}

func New(embedder domain.Embedder, store vectorstore.Storage, cfg Config, log *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.SingleField == "" {
		cfg.SingleField = "output"
	}
	if cfg.MultiField == "" {
		cfg.MultiField = "dialogue"
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, log: logging.OrNop(log)}
}

// ComposeQuery appends the user profile block to the free-text query.
func ComposeQuery(query string, p domain.Profile) string {
	age := ""
	if p.Age > 0 {
		age = strconv.Itoa(p.Age)
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n사용자 정보")
	fmt.Fprintf(&b, "\n나이 : %s", age)
	fmt.Fprintf(&b, "\n직업 : %s", p.Job)
	fmt.Fprintf(&b, "\n질병력 : %s", p.IllnessHistory)
	fmt.Fprintf(&b, "\n성별 : %s", p.Gender)
	fmt.Fprintf(&b, "\n거주 형태 : %s", p.LivingSituation)
	return b.String()
}

// Retrieve returns up to topK texts from each collection. Failures never
// propagate: they are logged and produce empty candidates.
func (r *Retriever) Retrieve(ctx context.Context, query string, profile domain.Profile, topK int) domain.Candidates {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	text := ComposeQuery(query, profile)
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		r.log.Warn("retrieval degraded: embedding failed", zap.Error(err))
		return domain.Candidates{Single: []string{}, Multi: []string{}}
	}

	var single, multi []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		single, err = r.search(gctx, domain.SingleCounsel, r.cfg.SingleField, text, vec, topK)
		return err
	})
	g.Go(func() error {
		var err error
		multi, err = r.search(gctx, domain.MultiCounsel, r.cfg.MultiField, text, vec, topK)
		return err
	})
	if err := g.Wait(); err != nil {
		r.log.Warn("retrieval degraded: hybrid search failed", zap.Error(err))
		return domain.Candidates{Single: []string{}, Multi: []string{}}
	}
	r.log.Debug("retrieved candidates", zap.Int("single", len(single)), zap.Int("multi", len(multi)))
	return domain.Candidates{Single: single, Multi: multi}
}

func (r *Retriever) search(ctx context.Context, collection, field, text string, vec []float64, limit int) ([]string, error) {
	hits, err := r.store.Hybrid(ctx, collection, vectorstore.HybridQuery{
		Text:   text,
		Vector: vec,
		Alpha:  r.cfg.Alpha,
		Limit:  limit,
		Fields: []string{field},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", collection, err)
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Properties[field])
	}
	return out, nil
}
