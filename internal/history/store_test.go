package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"diaryrag/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(user string, at time.Time, score float64, short string) domain.DiaryEntry {
	return domain.DiaryEntry{
		UserID:    user,
		CreatedAt: at,
		Text:      "본문 " + short,
		Emotion: domain.EmotionProfile{
			DistressScore: score,
			Sentiment:     map[domain.Emotion]float64{domain.Sadness: score / 100, domain.Joy: 1 - score/100},
		},
		ShortSummary: short,
		LongSummary:  short + " 길게",
	}
}

func TestSaveAndRecent(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 12, 21, 0, 0, 0, time.UTC)
	for i, short := range []string{"월", "화", "수"} {
		if err := s.Save(ctx, entry("u1", base.Add(time.Duration(i)*24*time.Hour), float64(50+i), short)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := s.Save(ctx, entry("u2", base, 10, "다른 사람")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ShortSummary != "수" || got[1].ShortSummary != "화" {
		t.Fatalf("recent=%+v", got)
	}
	if got[0].ID == "" || !got[0].CreatedAt.Equal(base.Add(48*time.Hour)) {
		t.Fatalf("id=%q created=%v", got[0].ID, got[0].CreatedAt)
	}
	if got[0].Emotion.Sentiment[domain.Sadness] != 0.52 {
		t.Fatalf("sentiment=%v", got[0].Emotion.Sentiment)
	}
}

func TestSinceOrdersOldestFirst(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	// sub-second timestamps must still sort correctly
	for i, off := range []time.Duration{2 * time.Second, 500 * time.Millisecond, 0, -time.Hour} {
		if err := s.Save(ctx, entry("u", base.Add(off), float64(i), off.String())); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	got, err := s.Since(ctx, "u", base)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	var order []string
	for _, e := range got {
		order = append(order, e.ShortSummary)
	}
	if strings.Join(order, ",") != "0s,500ms,2s" {
		t.Fatalf("order=%v", order)
	}

	none, err := s.Since(ctx, "nobody", base)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("none=%v err=%v", none, err)
	}
}

func TestWeeklyReport(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 10, 12, 21, 0, 0, 0, time.UTC)
	entries := []domain.DiaryEntry{
		entry("u", base, 40, "무난한 하루"),
		entry("u", base.Add(24*time.Hour), 80, "야근으로 지침"),
	}
	report, summary := WeeklyReport(entries)
	for _, want := range []string{"2026-10-12 ~ 2026-10-13", "작성한 일기: 2개", "평균 스트레스 점수: 60.00", "가장 높은 점수: 80.00 (10/13)", "주요 감정: 슬픔 (평균 0.6000)", "- 10/13 (80.00): 야근으로 지침"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
	if summary != "무난한 하루 길게 야근으로 지침 길게" {
		t.Fatalf("summary=%q", summary)
	}
	if r, s := WeeklyReport(nil); r != "" || s != "" {
		t.Fatalf("empty input produced %q / %q", r, s)
	}
}
