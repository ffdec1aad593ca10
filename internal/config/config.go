package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ClassifierConfig points at the remote emotion classification endpoint.
type ClassifierConfig struct {
	URL           string `yaml:"url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ScoringConfig holds the logistic weight of every emotion label.
type ScoringConfig struct {
	Weights map[string]float64 `yaml:"weights"`
}

// ChunkerConfig configures how diary paragraphs are split into scoring units.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Memory   *MemoryConfig   `yaml:"memory,omitempty"`
	Weaviate *WeaviateConfig `yaml:"weaviate,omitempty"`
}

// MemoryConfig configures the in-process hybrid store.
type MemoryConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
}

// WeaviateConfig contains connection details for a Weaviate instance.
type WeaviateConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig tunes the hybrid similarity search.
type RetrievalConfig struct {
	TopK        int     `yaml:"top_k"`
	Alpha       float64 `yaml:"alpha"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	SingleField string  `yaml:"single_field"`
	MultiField  string  `yaml:"multi_field"`
}

// LLMConfig configures the chat completion endpoint shared by all prompts.
type LLMConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries int    `yaml:"max_retries"`
}

// ModelCallConfig describes one kind of chat completion call.
type ModelCallConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// Timeout returns the per-call deadline.
func (m ModelCallConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// AdviceConfig holds the call settings of every advice role.
type AdviceConfig struct {
	Manager    ModelCallConfig `yaml:"manager"`
	Individual ModelCallConfig `yaml:"individual"`
	Daily      ModelCallConfig `yaml:"daily"`
}

// SummarizerConfig selects and configures the diary summarizer.
type SummarizerConfig struct {
	Type         string          `yaml:"type"`
	MaxSentences int             `yaml:"max_sentences"`
	Short        ModelCallConfig `yaml:"short"`
	Long         ModelCallConfig `yaml:"long"`
}

// StartupConfig bounds the vector store readiness probe.
type StartupConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelaySecs   int `yaml:"delay_secs"`
}

// IngestConfig locates the counseling corpora for the ingest command.
type IngestConfig struct {
	SinglePath  string `yaml:"single_path"`
	MultiPath   string `yaml:"multi_path"`
	Concurrency int    `yaml:"concurrency"`
}

// HistoryConfig locates the diary journal database.
type HistoryConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         logging.Config    `yaml:"log"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
	Rerank      ModelCallConfig   `yaml:"rerank"`
	Advice      AdviceConfig      `yaml:"advice"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Startup     StartupConfig     `yaml:"startup"`
	Ingest      IngestConfig      `yaml:"ingest"`
	History     HistoryConfig     `yaml:"history"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/diaryrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/diaryrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "diaryrag", "config.yaml"), nil
}

// DefaultWeights returns the stock logistic weights; joy lowers distress.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		string(domain.Joy):           -1.5,
		string(domain.Embarrassment): 0.5,
		string(domain.Anger):         0.8,
		string(domain.Anxiety):       0.7,
		string(domain.Hurt):          0.6,
		string(domain.Sadness):       1.0,
	}
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "llm"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}

	if cfg.Classifier.URL == "" {
		cfg.Classifier.URL = "http://localhost:8080/predict"
	}
	if cfg.Classifier.TimeoutSecs == 0 {
		cfg.Classifier.TimeoutSecs = 20
	}
	if cfg.Classifier.MaxConcurrent == 0 {
		cfg.Classifier.MaxConcurrent = 4
	}
	if len(cfg.Scoring.Weights) == 0 {
		cfg.Scoring.Weights = DefaultWeights()
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 1
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "weaviate" {
		if cfg.VectorStore.Weaviate == nil {
			cfg.VectorStore.Weaviate = &WeaviateConfig{}
		}
		if cfg.VectorStore.Weaviate.URL == "" {
			cfg.VectorStore.Weaviate.URL = "http://localhost:8081"
		}
		if cfg.VectorStore.Weaviate.TimeoutSecs == 0 {
			cfg.VectorStore.Weaviate.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Alpha == 0 {
		cfg.Retrieval.Alpha = 0.5
	}
	if cfg.Retrieval.TimeoutSecs == 0 {
		cfg.Retrieval.TimeoutSecs = 20
	}
	if cfg.Retrieval.SingleField == "" {
		cfg.Retrieval.SingleField = "output"
	}
	if cfg.Retrieval.MultiField == "" {
		cfg.Retrieval.MultiField = "dialogue"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}

	applyCallDefaults(&cfg.Rerank, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 3000, Temperature: 0.3, TimeoutSecs: 30})
	applyCallDefaults(&cfg.Advice.Manager, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 500, Temperature: 0.6, TimeoutSecs: 30})
	applyCallDefaults(&cfg.Advice.Individual, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 500, Temperature: 0.6, TimeoutSecs: 20})
	applyCallDefaults(&cfg.Advice.Daily, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 200, Temperature: 0.6, TimeoutSecs: 20})

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "llm"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	applyCallDefaults(&cfg.Summarizer.Short, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 100, Temperature: 0.3, TimeoutSecs: 20})
	applyCallDefaults(&cfg.Summarizer.Long, ModelCallConfig{Model: "gpt-4.1-nano", MaxTokens: 400, Temperature: 0.3, TimeoutSecs: 20})

	if cfg.Startup.MaxAttempts == 0 {
		cfg.Startup.MaxAttempts = 5
	}
	if cfg.Startup.DelaySecs == 0 {
		cfg.Startup.DelaySecs = 2
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.History.Path == "" && !cfg.History.Disabled {
		if p, err := defaultUserConfigPath(); err == nil {
			cfg.History.Path = filepath.Join(filepath.Dir(p), "history.db")
		}
	}
}

// applyCallDefaults fills zero fields from def. Temperature is only taken
// from def when the model is unset too, so an explicit 0 survives.
func applyCallDefaults(c *ModelCallConfig, def ModelCallConfig) {
	if c.Model == "" {
		c.Model = def.Model
		if c.Temperature == 0 {
			c.Temperature = def.Temperature
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = def.TimeoutSecs
	}
}

// Validate rejects configurations the pipelines cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Embedder.Type != "openai" {
		errs = append(errs, fmt.Errorf("embedder.type: unknown %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "memory":
	case "weaviate":
		if c.VectorStore.Weaviate == nil || c.VectorStore.Weaviate.URL == "" {
			errs = append(errs, errors.New("vector_store.weaviate.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector_store.type: unknown %q", c.VectorStore.Type))
	}
	switch c.Summarizer.Type {
	case "llm", "frequency":
	default:
		errs = append(errs, fmt.Errorf("summarizer.type: unknown %q", c.Summarizer.Type))
	}
	if c.Chunker.Type != "sentence" {
		errs = append(errs, fmt.Errorf("chunker.type: unknown %q", c.Chunker.Type))
	}
	if c.Classifier.URL == "" {
		errs = append(errs, errors.New("classifier.url is required"))
	}
	if c.Classifier.MaxConcurrent < 0 {
		errs = append(errs, errors.New("classifier.max_concurrent must be positive"))
	}
	if _, err := c.Scoring.EmotionWeights(); err != nil {
		errs = append(errs, err)
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		errs = append(errs, fmt.Errorf("retrieval.alpha %.2f outside [0,1]", c.Retrieval.Alpha))
	}
	return errors.Join(errs...)
}

// EmotionWeights converts the configured weights to a per-label vector.
// Exactly the six classifier labels must be present.
func (s ScoringConfig) EmotionWeights() (map[domain.Emotion]float64, error) {
	out := make(map[domain.Emotion]float64, len(domain.Emotions))
	for k, w := range s.Weights {
		e := domain.Emotion(k)
		if !e.Valid() {
			return nil, fmt.Errorf("scoring.weights: unknown label %q", k)
		}
		out[e] = w
	}
	for _, e := range domain.Emotions {
		if _, ok := out[e]; !ok {
			return nil, fmt.Errorf("scoring.weights: missing label %q", e)
		}
	}
	return out, nil
}
