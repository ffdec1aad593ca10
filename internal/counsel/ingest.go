package counsel

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
	"diaryrag/internal/vectorstore"
)

const upsertBatchSize = 10

// Ingester embeds corpus records and writes them to a store.
type Ingester struct {
	embedder    domain.Embedder
	store       vectorstore.Storage
	concurrency int
	log         *zap.Logger
}

func NewIngester(embedder domain.Embedder, store vectorstore.Storage, concurrency int, log *zap.Logger) *Ingester {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ingester{embedder: embedder, store: store, concurrency: concurrency, log: logging.OrNop(log)}
}

// Ingest embeds every record and upserts them per collection in batches.
// It stops at the first embedding or store failure and returns how many records were written.
func (in *Ingester) Ingest(ctx context.Context, records []Record) (int, error) {
	vectors := make([][]float64, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, r := range records {
		g.Go(func() error {
			v, err := in.embedder.Embed(gctx, r.Text)
			if err != nil {
				return fmt.Errorf("embed %s %s: %w", r.Collection, r.ID, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	written := 0
	pending := make(map[string][]domain.Object)
	flush := func(collection string) error {
		objs := pending[collection]
		if len(objs) == 0 {
			return nil
		}
		if err := in.store.Upsert(ctx, collection, objs); err != nil {
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
		written += len(objs)
		pending[collection] = nil
		in.log.Debug("upserted batch", zap.String("collection", collection), zap.Int("objects", len(objs)))
		return nil
	}
	for i, r := range records {
		pending[r.Collection] = append(pending[r.Collection], domain.Object{
			ID:         r.ID,
			Properties: r.Properties,
			Vector:     vectors[i],
		})
		if len(pending[r.Collection]) >= upsertBatchSize {
			if err := flush(r.Collection); err != nil {
				return written, err
			}
		}
	}
	for _, class := range vectorstore.Schema {
		if err := flush(class.Name); err != nil {
			return written, err
		}
	}
	in.log.Info("ingest complete", zap.Int("records", written))
	return written, nil
}
