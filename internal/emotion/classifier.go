package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"diaryrag/internal/domain"
)

// HTTPClassifier calls a hosted text-classification endpoint that returns
// every label score for its input.
type HTTPClassifier struct {
	url    string
	apiKey string
	client *http.Client
}

// HTTPConfig configures HTTPClassifier.
type HTTPConfig struct {
	URL       string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewHTTPClassifier builds a classifier client. The API key is optional.
func NewHTTPClassifier(cfg HTTPConfig) (*HTTPClassifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("classifier url is required")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 20 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &HTTPClassifier{
		url:    cfg.URL,
		apiKey: key,
		client: &http.Client{Timeout: t},
	}, nil
}

// Classify returns the label distribution for text.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) ([]domain.LabelScore, error) {
	data, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewExternalServiceError("classifier", "classify", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewExternalServiceError("classifier", "classify", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewExternalServiceError("classifier", "classify", err)
	}
	if resp.StatusCode >= 300 {
		return nil, domain.NewExternalServiceError("classifier", "classify",
			fmt.Errorf("status %s", resp.Status))
	}
	scores, err := decodeScores(payload)
	if err != nil {
		return nil, domain.NewExternalServiceError("classifier", "decode", err)
	}
	return scores, nil
}

type rawScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// decodeScores accepts both the batched [[...]] and flat [...] pipeline shapes.
func decodeScores(payload []byte) ([]domain.LabelScore, error) {
	var raw []rawScore
	var nested [][]rawScore
	if err := json.Unmarshal(payload, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("empty classifier response")
		}
		raw = nested[0]
	} else if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("unexpected classifier response: %w", err)
	}
	out := make([]domain.LabelScore, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.LabelScore{Label: mapLabel(r.Label), Score: r.Score})
	}
	return out, nil
}

// mapLabel translates generic LABEL_<id> names through the classifier id order.
func mapLabel(label string) domain.Emotion {
	if id, ok := strings.CutPrefix(label, "LABEL_"); ok {
		if n, err := strconv.Atoi(id); err == nil && n >= 0 && n < len(domain.Emotions) {
			return domain.Emotions[n]
		}
	}
	return domain.Emotion(label)
}
