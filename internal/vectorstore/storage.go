package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"diaryrag/internal/domain"
)

// HybridQuery combines keyword and vector similarity. Alpha 1 is pure vector,
// 0 pure keyword. Fields lists the properties returned per hit.
type HybridQuery struct {
	Text   string
	Vector []float64
	Alpha  float64
	Limit  int
	Fields []string
}

// Storage persists counseling records with their vectors and supports hybrid search.
// Implementations are safe for concurrent use once Init has returned.
type Storage interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, collection string, objects []domain.Object) error
	Hybrid(ctx context.Context, collection string, q HybridQuery) ([]domain.SearchResult, error)
	Close() error
}

// Property is one schema property; Array marks text[] properties.
type Property struct {
	Name  string
	Array bool
}

// Class describes one collection.
type Class struct {
	Name       string
	Properties []Property
}

// Schema lists the counseling collections.
var Schema = []Class{
	{
		Name: domain.SingleCounsel,
		Properties: []Property{
			{Name: "input"},
			{Name: "output"},
			{Name: "content"},
			{Name: "tags", Array: true},
		},
	},
	{
		Name: domain.MultiCounsel,
		Properties: []Property{
			{Name: "dialogue"},
			{Name: "summary"},
			{Name: "tags", Array: true},
		},
	},
}

// LookupClass returns the schema class with the given name.
func LookupClass(name string) (Class, bool) {
	for _, c := range Schema {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

// Text renders a stored property value as text. Arrays are joined with ", ".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, Text(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// Project keeps only fields from props, rendering each as text; absent fields are "".
func Project(props map[string]any, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = Text(props[f])
	}
	return out
}
