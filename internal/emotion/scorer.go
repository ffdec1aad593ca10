// Package emotion turns diary sentences into an averaged emotion distribution
// and a weighted-logistic distress score.
package emotion

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
	"diaryrag/internal/normalize"
)

// Scorer classifies sentences concurrently and folds the results into an EmotionProfile.
type Scorer struct {
	classifier domain.Classifier
	weights    map[domain.Emotion]float64
	sem        *semaphore.Weighted
	log        *zap.Logger
}

// NewScorer validates weights and returns a Scorer. sem bounds concurrent
// classifier calls across every Scorer sharing it; nil allows one call at a time.
func NewScorer(c domain.Classifier, weights map[domain.Emotion]float64, sem *semaphore.Weighted, log *zap.Logger) (*Scorer, error) {
	if c == nil {
		return nil, fmt.Errorf("emotion: nil classifier")
	}
	if len(weights) != len(domain.Emotions) {
		return nil, fmt.Errorf("emotion: weights cover %d labels, want %d", len(weights), len(domain.Emotions))
	}
	for _, e := range domain.Emotions {
		if _, ok := weights[e]; !ok {
			return nil, fmt.Errorf("emotion: missing weight for %q", e)
		}
	}
	if sem == nil {
		sem = semaphore.NewWeighted(1)
	}
	w := make(map[domain.Emotion]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Scorer{classifier: c, weights: w, sem: sem, log: logging.OrNop(log)}, nil
}

// Score returns the mean label distribution of sentences and the distress score.
// Sentences that normalize to nothing are skipped. Any classifier failure fails the whole batch.
func (s *Scorer) Score(ctx context.Context, sentences []string) (domain.EmotionProfile, error) {
	texts := normalize.NormalizeAll(sentences)
	if len(texts) == 0 {
		return domain.EmotionProfile{}, domain.ErrEmptyInput
	}

	dists := make([]map[domain.Emotion]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
			scores, err := s.classifier.Classify(gctx, text)
			if err != nil {
				return err
			}
			dist, err := distribution(scores)
			if err != nil {
				return err
			}
			dists[i] = dist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("emotion scoring failed", zap.Int("sentences", len(texts)), zap.Error(err))
		return domain.EmotionProfile{}, err
	}

	mean := make(map[domain.Emotion]float64, len(domain.Emotions))
	for _, d := range dists {
		for e, v := range d {
			mean[e] += v
		}
	}
	n := float64(len(dists))
	var z float64
	sentiment := make(map[domain.Emotion]float64, len(domain.Emotions))
	for _, e := range domain.Emotions {
		m := mean[e] / n
		z += s.weights[e] * m
		sentiment[e] = round(m, 4)
	}
	return domain.EmotionProfile{
		Sentiment:     sentiment,
		DistressScore: DistressScore(z),
	}, nil
}

// DistressScore maps a weighted label sum onto [0,100] through the logistic
// function, rounded to two decimals.
func DistressScore(weightedSum float64) float64 {
	return round(100/(1+math.Exp(-weightedSum)), 2)
}

// distribution checks one classifier output. Labels the classifier omitted count as zero.
func distribution(scores []domain.LabelScore) (map[domain.Emotion]float64, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("classifier returned no labels")
	}
	out := make(map[domain.Emotion]float64, len(domain.Emotions))
	for _, ls := range scores {
		if !ls.Label.Valid() {
			return nil, fmt.Errorf("classifier returned unknown label %q", ls.Label)
		}
		if math.IsNaN(ls.Score) || ls.Score < 0 || ls.Score > 1 {
			return nil, fmt.Errorf("classifier score %v for %q outside [0,1]", ls.Score, ls.Label)
		}
		if _, dup := out[ls.Label]; dup {
			return nil, fmt.Errorf("classifier returned %q twice", ls.Label)
		}
		out[ls.Label] = ls.Score
	}
	return out, nil
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
