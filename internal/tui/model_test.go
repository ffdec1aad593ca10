package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"diaryrag/internal/domain"
	"diaryrag/internal/service"
)

type fakeDiary struct {
	got service.DiaryRequest
	err error
}

func (f *fakeDiary) DiarySummary(_ context.Context, req service.DiaryRequest) (service.DiarySummary, error) {
	f.got = req
	if f.err != nil {
		return service.DiarySummary{}, f.err
	}
	return service.DiarySummary{UserID: req.UserID, Result: service.DiaryResult{
		Score:        62.5,
		Sentiment:    map[domain.Emotion]float64{domain.Sadness: 0.6, domain.Joy: 0.1},
		ShortSummary: "지친 하루",
		ShortAdvice:  "산책을 해보세요",
	}}, nil
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestEnterRunsAnalysis(t *testing.T) {
	t.Parallel()

	svc := &fakeDiary{}
	profile := &domain.Profile{Job: "학생"}
	m := New(svc, "u1", profile, 0)
	m, _ = func() (Model, tea.Cmd) {
		next, cmd := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
		return next.(Model), cmd
	}()

	m, cmd := typeAndSubmit(t, m, "  오늘은 너무 지쳤다.  ")
	if cmd == nil || !m.busy {
		t.Fatalf("expected analysis command, busy=%v", m.busy)
	}
	msg := cmd()
	if svc.got.UserID != "u1" || svc.got.Profile != profile || svc.got.Texts[0] != "오늘은 너무 지쳤다." {
		t.Fatalf("request=%+v", svc.got)
	}
	next, _ := m.Update(msg)
	m = next.(Model)
	if m.busy || len(m.history) != 1 {
		t.Fatalf("busy=%v history=%d", m.busy, len(m.history))
	}
	out := m.renderCurrent()
	for _, want := range []string{"62.50", "지친 하루", "산책을 해보세요", "슬픔"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestEnterIgnoresBlankAndBusy(t *testing.T) {
	t.Parallel()

	m := New(&fakeDiary{}, "u", nil, 0)
	if _, cmd := typeAndSubmit(t, m, "   "); cmd != nil {
		t.Fatalf("blank input started analysis")
	}
	m.busy = true
	if _, cmd := typeAndSubmit(t, m, "내용"); cmd != nil {
		t.Fatalf("second analysis started while busy")
	}
}

func TestErrorShownInStatus(t *testing.T) {
	t.Parallel()

	m := New(&fakeDiary{err: errors.New("classifier down")}, "u", nil, 0)
	m, cmd := typeAndSubmit(t, m, "내용")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.busy || !strings.Contains(m.status, "classifier down") {
		t.Fatalf("status=%q busy=%v", m.status, m.busy)
	}
}

func TestRenderBarsOrdersByScore(t *testing.T) {
	t.Parallel()

	out := renderBars(map[domain.Emotion]float64{domain.Anger: 0.5, domain.Anxiety: 0.9}, 10)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(domain.Emotions) {
		t.Fatalf("lines=%d", len(lines))
	}
	if !strings.HasPrefix(lines[0], string(domain.Anxiety)) || !strings.HasPrefix(lines[1], string(domain.Anger)) {
		t.Fatalf("order:\n%s", out)
	}
}
