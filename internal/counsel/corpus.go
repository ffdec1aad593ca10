// Package counsel loads the counseling corpora and ingests them into a vector store.
package counsel

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"diaryrag/internal/domain"
)

// SingleTurn is one question/answer counseling record.
type SingleTurn struct {
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Tags   []string `json:"tags,omitempty"`
}

// Turn is one utterance of a multi-turn counseling dialogue.
type Turn struct {
	Speaker   string `json:"speaker"`
	Utterance string `json:"utterance"`
}

// Dialogue is a multi-turn counseling session.
type Dialogue []Turn

// Record is a flattened corpus entry ready for embedding.
type Record struct {
	Collection string
	ID         string
	Text       string
	Properties map[string]any
}

// LoadSingle decodes a JSON array of single-turn records.
func LoadSingle(r io.Reader) ([]SingleTurn, error) {
	var out []SingleTurn
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode single-turn corpus: %w", err)
	}
	return out, nil
}

// LoadMulti decodes a JSON array of dialogues.
func LoadMulti(r io.Reader) ([]Dialogue, error) {
	var out []Dialogue
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode multi-turn corpus: %w", err)
	}
	return out, nil
}

// LoadSingleFile reads a single-turn corpus from path.
func LoadSingleFile(path string) ([]SingleTurn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSingle(f)
}

// LoadMultiFile reads a multi-turn corpus from path.
func LoadMultiFile(path string) ([]Dialogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadMulti(f)
}

// Record flattens s as "input\noutput"; blank records report false.
func (s SingleTurn) Record() (Record, bool) {
	in := strings.TrimSpace(s.Input)
	out := strings.TrimSpace(s.Output)
	if in == "" && out == "" {
		return Record{}, false
	}
	content := in + "\n" + out
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return Record{
		Collection: domain.SingleCounsel,
		ID:         recordID(domain.SingleCounsel, content),
		Text:       content,
		Properties: map[string]any{
			"input":   in,
			"output":  out,
			"content": content,
			"tags":    tags,
		},
	}, true
}

// Text renders the dialogue as "speaker: utterance" lines.
func (d Dialogue) Text() string {
	lines := make([]string, 0, len(d))
	for _, t := range d {
		u := strings.TrimSpace(t.Utterance)
		if u == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(t.Speaker)+": "+u)
	}
	return strings.Join(lines, "\n")
}

// Record flattens d; dialogues without utterances report false.
func (d Dialogue) Record() (Record, bool) {
	text := d.Text()
	if text == "" {
		return Record{}, false
	}
	return Record{
		Collection: domain.MultiCounsel,
		ID:         recordID(domain.MultiCounsel, text),
		Text:       text,
		Properties: map[string]any{
			"dialogue": text,
			"summary":  "",
			"tags":     []string{},
		},
	}, true
}

// Records flattens both corpora, skipping blank entries.
func Records(single []SingleTurn, multi []Dialogue) []Record {
	out := make([]Record, 0, len(single)+len(multi))
	for _, s := range single {
		if r, ok := s.Record(); ok {
			out = append(out, r)
		}
	}
	for _, d := range multi {
		if r, ok := d.Record(); ok {
			out = append(out, r)
		}
	}
	return out
}

// recordID is stable across runs so re-ingesting the same corpus overwrites instead of duplicating.
func recordID(collection, content string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"\x00"+content)).String()
}
