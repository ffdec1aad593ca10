package domain

import "time"

// Emotion is one of the six labels produced by the sentiment classifier.
type Emotion string

const (
	Joy           Emotion = "기쁨"
	Embarrassment Emotion = "당황"
	Anger         Emotion = "분노"
	Anxiety       Emotion = "불안"
	Hurt          Emotion = "상처"
	Sadness       Emotion = "슬픔"
)

// Emotions lists the closed label set in classifier id order (id2label).
var Emotions = []Emotion{Joy, Embarrassment, Anger, Anxiety, Hurt, Sadness}

// Valid reports whether e belongs to the closed label set.
func (e Emotion) Valid() bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// LabelScore is one entry of a classifier distribution.
type LabelScore struct {
	Label Emotion `json:"label"`
	Score float64 `json:"score"`
}

// EmotionProfile is the averaged label distribution for a batch of sentences
// together with the derived distress score in [0,100].
type EmotionProfile struct {
	Sentiment     map[Emotion]float64 `json:"sentiment"`
	DistressScore float64             `json:"score"`
}

// Profile holds the structured user context mixed into retrieval queries.
type Profile struct {
	Age             int    `json:"age" yaml:"age"`
	Job             string `json:"job" yaml:"job"`
	IllnessHistory  string `json:"disease" yaml:"disease"`
	Gender          string `json:"gender" yaml:"gender"`
	LivingSituation string `json:"family" yaml:"family"`
}

// CounselType distinguishes single-turn from multi-turn counseling records.
type CounselType string

const (
	SingleTurn CounselType = "single"
	MultiTurn  CounselType = "multi"
)

// Vector store collection names.
const (
	SingleCounsel = "SingleCounsel"
	MultiCounsel  = "MultiCounsel"
)

// CounselRecord is a retrieved or re-ranked counseling precedent.
type CounselRecord struct {
	Type    CounselType `json:"type"`
	Content string      `json:"content"`
}

// Candidates are the retrieval results for one request, one slice per corpus.
type Candidates struct {
	Single []string
	Multi  []string
}

// Empty reports whether both corpora returned nothing.
func (c Candidates) Empty() bool { return len(c.Single) == 0 && len(c.Multi) == 0 }

// MaxFinal bounds RerankResult.TopKFinal.
const MaxFinal = 3

// RerankResult is the validated output of the LLM re-ranking pass.
type RerankResult struct {
	RankedItems []CounselRecord `json:"ranked_items"`
	TopKFinal   []string        `json:"top_k_final"`
}

// Role selects the advice variant.
type Role string

const (
	RoleManager    Role = "manager"
	RoleIndividual Role = "individual"
	RoleDaily      Role = "daily"
)

// Valid reports whether r is a known advice role.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleIndividual, RoleDaily:
		return true
	}
	return false
}

// Object is a record stored in a vector store collection.
type Object struct {
	ID         string
	Properties map[string]any
	Vector     []float64
}

// SearchResult is one hybrid search hit with the requested text fields.
type SearchResult struct {
	Properties map[string]string
	Score      float64
}

// DiaryEntry is one analyzed diary submission as kept in the journal.
type DiaryEntry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	CreatedAt    time.Time      `json:"created_at"`
	Text         string         `json:"text"`
	Emotion      EmotionProfile `json:"emotion"`
	ShortSummary string         `json:"short_summary"`
	LongSummary  string         `json:"long_summary"`
	ShortAdvice  string         `json:"short_advice,omitempty"`
}
