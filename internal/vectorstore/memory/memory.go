package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"go.uber.org/zap"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
	"diaryrag/internal/vectorstore"
)

// Storage is an in-process hybrid store: bleve for keyword scoring and
// brute-force cosine similarity for vectors.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
	snapshotDir string
	dirty       bool
	log         *zap.Logger
}

type collection struct {
	index     bleve.Index
	dimension int
	order     []string
	objects   map[string]domain.Object
}

// NewStorage returns an empty store. When snapshotDir is set, Init loads
// <collection>.jsonl files from it and Close writes them back after changes.
func NewStorage(snapshotDir string, log *zap.Logger) *Storage {
	return &Storage{
		collections: make(map[string]*collection),
		snapshotDir: snapshotDir,
		log:         logging.OrNop(log),
	}
}

// Init creates one keyword index per schema class and loads snapshots.
func (s *Storage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, class := range vectorstore.Schema {
		if _, ok := s.collections[class.Name]; ok {
			continue
		}
		im := bleve.NewIndexMapping()
		im.DefaultAnalyzer = cjk.AnalyzerName
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return fmt.Errorf("create %s index: %w", class.Name, err)
		}
		s.collections[class.Name] = &collection{index: idx, objects: make(map[string]domain.Object)}
	}
	if s.snapshotDir == "" {
		return nil
	}
	for _, class := range vectorstore.Schema {
		if err := ctx.Err(); err != nil {
			return err
		}
		objs, err := readSnapshot(filepath.Join(s.snapshotDir, class.Name+".jsonl"))
		if err != nil {
			return err
		}
		if len(objs) == 0 {
			continue
		}
		if err := s.upsertLocked(class.Name, objs); err != nil {
			return fmt.Errorf("load %s snapshot: %w", class.Name, err)
		}
		s.log.Info("loaded snapshot", zap.String("collection", class.Name), zap.Int("objects", len(objs)))
	}
	s.dirty = false
	return nil
}

// Upsert stores objects, replacing any with the same ID.
func (s *Storage) Upsert(ctx context.Context, name string, objects []domain.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertLocked(name, objects); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Storage) upsertLocked(name string, objects []domain.Object) error {
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("unknown collection %q", name)
	}
	for _, o := range objects {
		if o.ID == "" {
			return errors.New("object without id")
		}
		if len(o.Vector) == 0 {
			return fmt.Errorf("object %s has no vector", o.ID)
		}
		if c.dimension == 0 {
			c.dimension = len(o.Vector)
		}
		if len(o.Vector) != c.dimension {
			return fmt.Errorf("object %s: vector dimension %d, want %d", o.ID, len(o.Vector), c.dimension)
		}
	}
	batch := c.index.NewBatch()
	for _, o := range objects {
		doc := make(map[string]interface{}, len(o.Properties))
		for k, v := range o.Properties {
			doc[k] = vectorstore.Text(v)
		}
		if err := batch.Index(o.ID, doc); err != nil {
			return fmt.Errorf("index %s: %w", o.ID, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("batch index %s: %w", name, err)
	}
	for _, o := range objects {
		if _, exists := c.objects[o.ID]; !exists {
			c.order = append(c.order, o.ID)
		}
		c.objects[o.ID] = o
	}
	return nil
}

// Hybrid fuses min-max normalized keyword and cosine scores as
// alpha*vector + (1-alpha)*keyword and returns the best Limit hits.
func (s *Storage) Hybrid(ctx context.Context, name string, q vectorstore.HybridQuery) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	if len(c.order) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(q.Vector) > 0 && len(q.Vector) != c.dimension {
		return nil, fmt.Errorf("query vector dimension %d, want %d", len(q.Vector), c.dimension)
	}

	keyword, err := c.keywordScores(q.Text)
	if err != nil {
		return nil, err
	}
	semantic := make(map[string]float64)
	if len(q.Vector) > 0 {
		for _, id := range c.order {
			semantic[id] = cosine(c.objects[id].Vector, q.Vector)
		}
	}
	normalize(keyword)
	normalize(semantic)

	type scored struct {
		id    string
		pos   int
		score float64
	}
	hits := make([]scored, 0, len(c.order))
	for pos, id := range c.order {
		k, hasK := keyword[id]
		v, hasV := semantic[id]
		if !hasK && !hasV {
			continue
		}
		hits = append(hits, scored{id: id, pos: pos, score: q.Alpha*v + (1-q.Alpha)*k})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.SearchResult{
			Properties: vectorstore.Project(c.objects[h.id].Properties, q.Fields),
			Score:      h.score,
		})
	}
	return out, nil
}

func (c *collection) keywordScores(text string) (map[string]float64, error) {
	scores := make(map[string]float64)
	if text == "" {
		return scores, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), len(c.order), 0, false)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// Close writes snapshots if anything changed and releases the indexes.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.snapshotDir != "" && s.dirty {
		if err := s.saveLocked(); err != nil {
			errs = append(errs, err)
		}
		s.dirty = false
	}
	for name, c := range s.collections {
		if err := c.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.collections = make(map[string]*collection)
	return errors.Join(errs...)
}

type snapshotLine struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Vector     []float64      `json:"vector"`
}

func (s *Storage) saveLocked() error {
	if err := os.MkdirAll(s.snapshotDir, 0o755); err != nil {
		return err
	}
	for name, c := range s.collections {
		path := filepath.Join(s.snapshotDir, name+".jsonl")
		tmp := path + ".tmp"
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		for _, id := range c.order {
			o := c.objects[id]
			if err := enc.Encode(snapshotLine{ID: o.ID, Properties: o.Properties, Vector: o.Vector}); err != nil {
				_ = f.Close()
				return err
			}
		}
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		if err := os.Rename(tmp, path); err != nil {
			return err
		}
		s.log.Info("saved snapshot", zap.String("collection", name), zap.Int("objects", len(c.order)))
	}
	return nil
}

func readSnapshot(path string) ([]domain.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []domain.Object
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var l snapshotLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, domain.Object{ID: l.ID, Properties: l.Properties, Vector: l.Vector})
	}
	return out, sc.Err()
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalize rescales scores to [0,1] in place; equal scores all become 1.
func normalize(scores map[string]float64) {
	if len(scores) == 0 {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for k, v := range scores {
		if hi == lo {
			scores[k] = 1
		} else {
			scores[k] = (v - lo) / (hi - lo)
		}
	}
}
