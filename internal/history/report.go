package history

import (
	"fmt"
	"strings"

	"diaryrag/internal/domain"
)

// WeeklyReport condenses journal entries into the report text and the total
// summary fed to the advice pipeline. Entries are expected oldest first.
func WeeklyReport(entries []domain.DiaryEntry) (report, summary string) {
	if len(entries) == 0 {
		return "", ""
	}
	var (
		total    float64
		peak     = entries[0]
		emotions = make(map[domain.Emotion]float64, len(domain.Emotions))
		longs    []string
	)
	for _, e := range entries {
		total += e.Emotion.DistressScore
		if e.Emotion.DistressScore > peak.Emotion.DistressScore {
			peak = e
		}
		for label, v := range e.Emotion.Sentiment {
			emotions[label] += v
		}
		if s := strings.TrimSpace(e.LongSummary); s != "" {
			longs = append(longs, s)
		} else if s := strings.TrimSpace(e.ShortSummary); s != "" {
			longs = append(longs, s)
		}
	}
	n := float64(len(entries))
	top := domain.Emotions[0]
	for _, label := range domain.Emotions {
		if emotions[label] > emotions[top] {
			top = label
		}
	}

	var b strings.Builder
	first, last := entries[0].CreatedAt, entries[len(entries)-1].CreatedAt
	fmt.Fprintf(&b, "기간: %s ~ %s\n", first.Format("2006-01-02"), last.Format("2006-01-02"))
	fmt.Fprintf(&b, "작성한 일기: %d개\n", len(entries))
	fmt.Fprintf(&b, "평균 스트레스 점수: %.2f\n", total/n)
	fmt.Fprintf(&b, "가장 높은 점수: %.2f (%s)\n", peak.Emotion.DistressScore, peak.CreatedAt.Format("01/02"))
	fmt.Fprintf(&b, "주요 감정: %s (평균 %.4f)\n", top, emotions[top]/n)
	b.WriteString("일별 요약:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s (%.2f): %s\n", e.CreatedAt.Format("01/02"), e.Emotion.DistressScore, e.ShortSummary)
	}
	return strings.TrimRight(b.String(), "\n"), strings.Join(longs, " ")
}
