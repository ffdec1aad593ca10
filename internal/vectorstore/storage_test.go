package vectorstore

import (
	"testing"

	"diaryrag/internal/domain"
)

func TestLookupClass(t *testing.T) {
	t.Parallel()

	c, ok := LookupClass(domain.MultiCounsel)
	if !ok || len(c.Properties) != 3 || c.Properties[0].Name != "dialogue" {
		t.Fatalf("class=%+v ok=%v", c, ok)
	}
	if _, ok := LookupClass("Nope"); ok {
		t.Fatalf("unknown class found")
	}
}

func TestProject(t *testing.T) {
	t.Parallel()

	got := Project(map[string]any{
		"output": "괜찮아요",
		"tags":   []any{"직장", "불안"},
	}, []string{"output", "tags", "missing"})
	if got["output"] != "괜찮아요" || got["tags"] != "직장, 불안" || got["missing"] != "" {
		t.Fatalf("got=%v", got)
	}
}
