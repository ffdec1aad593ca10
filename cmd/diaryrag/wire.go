package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"diaryrag/internal/advice"
	"diaryrag/internal/chunker"
	"diaryrag/internal/config"
	"diaryrag/internal/domain"
	embopenai "diaryrag/internal/embedding/openai"
	"diaryrag/internal/emotion"
	"diaryrag/internal/history"
	llmopenai "diaryrag/internal/llm/openai"
	"diaryrag/internal/rerank"
	"diaryrag/internal/retrieval"
	"diaryrag/internal/retry"
	"diaryrag/internal/service"
	"diaryrag/internal/summarizer"
	"diaryrag/internal/vectorstore"
	"diaryrag/internal/vectorstore/memory"
	"diaryrag/internal/vectorstore/weaviate"
)

// app holds the assembled components; Close releases the store.
type app struct {
	log      *zap.Logger
	embedder domain.Embedder
	store    vectorstore.Storage
	journal  *history.Store
	svc      *service.Service
}

func (a *app) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// openJournal returns nil when the journal is disabled.
func openJournal(cfg *config.AppConfig) (*history.Store, error) {
	if cfg.History.Disabled || cfg.History.Path == "" {
		return nil, nil
	}
	j, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return j, nil
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return embopenai.NewClient(embopenai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Timeout:    secs(o.TimeoutSecs),
			MaxRetries: o.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newStore(cfg *config.AppConfig, log *zap.Logger) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		dir := ""
		if cfg.VectorStore.Memory != nil {
			dir = cfg.VectorStore.Memory.SnapshotDir
		}
		return memory.NewStorage(dir, log), nil
	case "weaviate":
		w := cfg.VectorStore.Weaviate
		if w == nil {
			return nil, fmt.Errorf("weaviate config missing")
		}
		var key string
		if w.APIKeyEnv != "" {
			key = os.Getenv(w.APIKeyEnv)
		}
		return weaviate.NewStorage(weaviate.Config{
			URL:     w.URL,
			APIKey:  key,
			Timeout: secs(w.TimeoutSecs),
			Startup: retry.Policy{
				MaxAttempts: cfg.Startup.MaxAttempts,
				Backoff:     retry.Fixed(secs(cfg.Startup.DelaySecs)),
			},
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// openStore builds the embedder and an initialized store; ingest needs nothing else.
func openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*app, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	st, err := newStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("vector store init: %w", err)
	}
	return &app{log: log, embedder: emb, store: st}, nil
}

// assemble wires the full request pipeline.
func assemble(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (_ *app, err error) {
	a, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	cls, err := emotion.NewHTTPClassifier(emotion.HTTPConfig{
		URL:       cfg.Classifier.URL,
		APIKeyEnv: cfg.Classifier.APIKeyEnv,
		Timeout:   secs(cfg.Classifier.TimeoutSecs),
	})
	if err != nil {
		return nil, err
	}
	weights, err := cfg.Scoring.EmotionWeights()
	if err != nil {
		return nil, err
	}
	scorer, err := emotion.NewScorer(cls, weights, semaphore.NewWeighted(int64(cfg.Classifier.MaxConcurrent)), log)
	if err != nil {
		return nil, err
	}

	llm, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKeyEnv:  cfg.LLM.APIKeyEnv,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "llm":
		sum = summarizer.NewLLMSummarizer(llm, summaryCall(cfg.Summarizer.Short), summaryCall(cfg.Summarizer.Long))
	case "frequency":
		sum = summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxSentences)
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	retriever := retrieval.New(a.embedder, a.store, retrieval.Config{
		TopK:        cfg.Retrieval.TopK,
		Alpha:       cfg.Retrieval.Alpha,
		Timeout:     secs(cfg.Retrieval.TimeoutSecs),
		SingleField: cfg.Retrieval.SingleField,
		MultiField:  cfg.Retrieval.MultiField,
	}, log)

	reranker := rerank.New(llm, rerank.Config{
		Model:       cfg.Rerank.Model,
		MaxTokens:   cfg.Rerank.MaxTokens,
		Temperature: cfg.Rerank.Temperature,
		Timeout:     cfg.Rerank.Timeout(),
	}, log)

	advisor := advice.New(llm, map[domain.Role]advice.CallConfig{
		domain.RoleManager:    adviceCall(cfg.Advice.Manager),
		domain.RoleIndividual: adviceCall(cfg.Advice.Individual),
		domain.RoleDaily:      adviceCall(cfg.Advice.Daily),
	}, log)

	if a.journal, err = openJournal(cfg); err != nil {
		return nil, err
	}

	deps := service.Deps{
		Scorer:     scorer,
		Summarizer: sum,
		Retriever:  retriever,
		Reranker:   reranker,
		Advisor:    advisor,
		Chunker:    chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences),
		Log:        log,
	}
	if a.journal != nil {
		deps.Journal = a.journal
	}
	a.svc = service.New(deps)
	return a, nil
}

func summaryCall(c config.ModelCallConfig) summarizer.CallConfig {
	return summarizer.CallConfig{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature, Timeout: c.Timeout()}
}

func adviceCall(c config.ModelCallConfig) advice.CallConfig {
	return advice.CallConfig{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature, Timeout: c.Timeout()}
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
