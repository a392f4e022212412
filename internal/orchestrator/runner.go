package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stockmeta/internal/models"
	"stockmeta/internal/vision"
)

const DefaultMaxWorkers = 3

// Processor turns one file into a Row. The Row is always well formed; the
// error is the upstream failure behind an error Row, if any.
type Processor interface {
	Process(ctx context.Context, req models.GenerationRequest, imageDataURL, credential string) (models.Row, error)
}

// Item is one file of a run. Image loads the data URL lazily; nil means the
// file is described from its name only.
type Item struct {
	Request models.GenerationRequest
	Image   func(ctx context.Context) (string, error)
}

func StaticImage(dataURL string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return dataURL, nil }
}

type Job struct {
	Items []Item
	Pool  *KeyPool
	// Stop is the run-wide stop flag. It is created when nil; pass one in to
	// share it with a retrier.
	Stop  *atomic.Bool
	OnRow func(models.Row)
}

type Result struct {
	Rows []models.Row
	// Skipped lists files never claimed because the run stopped.
	Skipped []string
	Stopped bool
}

type Runner struct {
	processor  Processor
	maxWorkers int
	log        zerolog.Logger
}

func NewRunner(processor Processor, maxWorkers int, logger zerolog.Logger) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Runner{processor: processor, maxWorkers: maxWorkers, log: logger}
}

// Run processes every item with min(maxWorkers, items, keys) workers. Worker w
// is bound to key w for its whole life. A quota error retires that worker's
// key; the run stops only when no key is left.
func (r *Runner) Run(ctx context.Context, job Job) Result {
	stop := job.Stop
	if stop == nil {
		stop = new(atomic.Bool)
	}
	pool := job.Pool
	if pool == nil {
		pool = NewKeyPool(nil)
	}
	pool.Reset()

	results := models.NewResultList()
	total := int64(len(job.Items))
	var cursor atomic.Int64

	workers := min(r.maxWorkers, len(job.Items), pool.Len())
	if workers == 0 && total > 0 {
		r.log.Warn().Int("files", len(job.Items)).Msg("no usable api keys")
		stop.Store(true)
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		key := pool.Key(w % pool.Len())
		g.Go(func() error {
			r.work(ctx, job, key, pool, stop, &cursor, total, results)
			return nil
		})
	}
	_ = g.Wait()

	claimed := min(cursor.Load(), total)
	res := Result{Rows: results.Rows(), Stopped: stop.Load() || ctx.Err() != nil}
	for _, item := range job.Items[claimed:] {
		res.Skipped = append(res.Skipped, item.Request.Filename)
	}
	return res
}

func (r *Runner) work(ctx context.Context, job Job, key Key, pool *KeyPool, stop *atomic.Bool, cursor *atomic.Int64, total int64, results *models.ResultList) {
	logger := r.log.With().Str("key", key.Fingerprint).Logger()
	for {
		if stop.Load() || ctx.Err() != nil {
			return
		}
		if pool.IsExhausted(key.Index) {
			return
		}
		i := cursor.Add(1) - 1
		if i >= total {
			return
		}

		item := job.Items[i]
		row, err := r.processItem(ctx, item, key)
		results.Put(row)
		if job.OnRow != nil {
			job.OnRow(row)
		}
		if row.Failed() {
			logger.Warn().Str("filename", row.Filename).Str("error", row.Error).Msg("file failed")
		}

		if vision.IsQuotaExhausted(err) {
			remaining := pool.Exhaust(key.Index)
			logger.Warn().Int("keys_remaining", remaining).Msg("api key exhausted")
			if remaining == 0 {
				stop.Store(true)
			}
			return
		}
	}
}

func (r *Runner) processItem(ctx context.Context, item Item, key Key) (models.Row, error) {
	var image string
	if item.Image != nil {
		var err error
		image, err = item.Image(ctx)
		if err != nil {
			asset := models.ResolveAssetType(item.Request.AssetType, "")
			return models.ErrorRow(item.Request, asset, fmt.Sprintf("load image: %v", err)), err
		}
	}
	return r.processor.Process(ctx, item.Request, image, key.Credential)
}
