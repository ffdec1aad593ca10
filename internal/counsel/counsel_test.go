package counsel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"diaryrag/internal/domain"
	"diaryrag/internal/vectorstore"
	"diaryrag/internal/vectorstore/memory"
)

const singleJSON = `[
  {"input": " 회사에서 실수를 해서 불안해요 ", "output": "실수는 누구에게나 있어요."},
  {"input": "", "output": ""},
  {"input": "잠이 안 와요", "output": "잠들기 전 휴대폰을 멀리 두세요."}
]`

const multiJSON = `[
  [{"speaker": "내담자", "utterance": "요즘 우울해요"}, {"speaker": "상담사", "utterance": "언제부터 그러셨나요?"}],
  []
]`

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, &domain.EmbeddingError{Err: errors.New("boom")}
	}
	return []float64{float64(len(text)), 1}, nil
}

func TestRecords_Flatten(t *testing.T) {
	t.Parallel()

	single, err := LoadSingle(strings.NewReader(singleJSON))
	if err != nil {
		t.Fatalf("LoadSingle: %v", err)
	}
	multi, err := LoadMulti(strings.NewReader(multiJSON))
	if err != nil {
		t.Fatalf("LoadMulti: %v", err)
	}
	recs := Records(single, multi)
	if len(recs) != 3 {
		t.Fatalf("records=%d, want 3", len(recs))
	}
	if recs[0].Text != "회사에서 실수를 해서 불안해요\n실수는 누구에게나 있어요." {
		t.Fatalf("single text=%q", recs[0].Text)
	}
	if recs[0].Properties["content"] != recs[0].Text || recs[0].Collection != domain.SingleCounsel {
		t.Fatalf("single props=%v", recs[0].Properties)
	}
	if recs[2].Text != "내담자: 요즘 우울해요\n상담사: 언제부터 그러셨나요?" || recs[2].Collection != domain.MultiCounsel {
		t.Fatalf("multi=%+v", recs[2])
	}
}

func TestRecord_IDIsStable(t *testing.T) {
	t.Parallel()

	a, _ := SingleTurn{Input: "q", Output: "a"}.Record()
	b, _ := SingleTurn{Input: " q ", Output: "a"}.Record()
	c, _ := SingleTurn{Input: "q", Output: "b"}.Record()
	if a.ID != b.ID || a.ID == c.ID {
		t.Fatalf("ids a=%s b=%s c=%s", a.ID, b.ID, c.ID)
	}
}

func TestIngest_WritesAllRecords(t *testing.T) {
	t.Parallel()

	store := memory.NewStorage("", nil)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer store.Close()

	var single []SingleTurn
	for i := 0; i < 23; i++ {
		single = append(single, SingleTurn{Input: fmt.Sprintf("질문 %d", i), Output: fmt.Sprintf("답변 %d", i)})
	}
	multi := []Dialogue{{{Speaker: "내담자", Utterance: "힘들어요"}}}
	emb := &fakeEmbedder{}
	n, err := NewIngester(emb, store, 4, nil).Ingest(context.Background(), Records(single, multi))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 24 || emb.calls != 24 {
		t.Fatalf("written=%d calls=%d, want 24", n, emb.calls)
	}
	got, err := store.Hybrid(context.Background(), domain.SingleCounsel, vectorstore.HybridQuery{
		Text: "답변", Alpha: 0, Limit: 50, Fields: []string{"output"},
	})
	if err != nil {
		t.Fatalf("Hybrid: %v", err)
	}
	if len(got) != 23 {
		t.Fatalf("stored single=%d, want 23", len(got))
	}
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	t.Parallel()

	store := memory.NewStorage("", nil)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer store.Close()

	single := []SingleTurn{{Input: "a", Output: "b"}, {Input: "bad", Output: "c"}}
	n, err := NewIngester(&fakeEmbedder{fail: "bad"}, store, 2, nil).Ingest(context.Background(), Records(single, nil))
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
