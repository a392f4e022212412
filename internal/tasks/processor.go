package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockmeta/internal/media/sniffer"
	"stockmeta/internal/models"
	"stockmeta/internal/orchestrator"
	"stockmeta/internal/queue"
	"stockmeta/internal/repository"
	"stockmeta/internal/service"
)

// Runner executes one generation run; *service.Generator satisfies it.
type Runner interface {
	Run(ctx context.Context, items []orchestrator.Item, onRow func(models.Row)) orchestrator.Result
	DataURL(mime string, data []byte) string
}

type Processor struct {
	batches   service.BatchStore
	blobs     service.BlobStore
	runner    Runner
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewProcessor(batches service.BatchStore, blobs service.BlobStore, runner Runner, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		batches:   batches,
		blobs:     blobs,
		runner:    runner,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case queue.TaskGenerate:
		return p.handleGenerate(ctx, task)
	case queue.TaskRegenerate:
		return p.handleRegenerate(ctx, task)
	case queue.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", string(task.Type)).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleGenerate(ctx context.Context, task queue.Task) error {
	batch, err := p.batches.GetByID(ctx, task.BatchID)
	if errors.Is(err, repository.ErrBatchNotFound) {
		p.logger.Warn().Str("batch_id", task.BatchID).Msg("batch gone, dropping task")
		return nil
	}
	if err != nil {
		return err
	}
	return p.run(ctx, batch, batch.Files)
}

func (p *Processor) handleRegenerate(ctx context.Context, task queue.Task) error {
	batch, err := p.batches.GetByID(ctx, task.BatchID)
	if errors.Is(err, repository.ErrBatchNotFound) {
		p.logger.Warn().Str("batch_id", task.BatchID).Msg("batch gone, dropping task")
		return nil
	}
	if err != nil {
		return err
	}

	files := batch.Files
	if task.Scope != queue.ScopeAll {
		rows, err := p.batches.ListRows(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("list rows: %w", err)
		}
		files = pendingFiles(batch.Files, rows)
	}
	return p.run(ctx, batch, files)
}

// pendingFiles selects files whose row failed or was never written.
func pendingFiles(files []models.BatchFile, rows []models.Row) []models.BatchFile {
	done := make(map[string]bool, len(rows))
	for _, row := range rows {
		done[row.Filename] = !row.Failed()
	}
	var out []models.BatchFile
	for _, f := range files {
		if !done[f.Filename] {
			out = append(out, f)
		}
	}
	return out
}

func (p *Processor) run(ctx context.Context, batch models.Batch, files []models.BatchFile) error {
	logger := p.logger.With().Str("batch_id", batch.ID).Logger()

	if err := p.batches.UpdateStatus(ctx, batch.ID, models.BatchStatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	positions := make(map[string]int, len(batch.Files))
	for i, f := range batch.Files {
		positions[f.Filename] = i
	}

	items := make([]orchestrator.Item, 0, len(files))
	for _, f := range files {
		item := orchestrator.Item{Request: batch.Request(f)}
		if !(sniffer.Result{MIME: f.MIME}).IsVideo() {
			item.Image = p.loadImage(f)
		}
		items = append(items, item)
	}

	result := p.runner.Run(ctx, items, func(row models.Row) {
		if err := p.batches.UpsertRow(ctx, batch.ID, positions[row.Filename], row); err != nil {
			logger.Error().Err(err).Str("filename", row.Filename).Msg("save row failed")
		}
	})
	if err := ctx.Err(); err != nil {
		// Leave the message pending so another worker picks the batch up.
		return err
	}

	rows, err := p.batches.ListRows(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("list rows: %w", err)
	}
	status := models.StatusFor(rows, len(result.Skipped))
	if err := p.batches.UpdateStatus(ctx, batch.ID, status); err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}

	logger.Info().
		Str("status", string(status)).
		Int("processed", len(result.Rows)).
		Int("skipped", len(result.Skipped)).
		Msg("batch finished")
	return nil
}

func (p *Processor) loadImage(f models.BatchFile) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		data, err := p.blobs.Get(ctx, f.Bucket, f.ObjectKey)
		if err != nil {
			return "", err
		}
		return p.runner.DataURL(f.MIME, data), nil
	}
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.retention)
	purged, err := p.batches.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge batches: %w", err)
	}

	removed := 0
	for _, batch := range purged {
		for _, f := range batch.Files {
			if err := p.blobs.Remove(ctx, f.Bucket, f.ObjectKey); err != nil {
				p.logger.Warn().Err(err).Str("batch_id", batch.ID).Str("object", f.ObjectKey).Msg("remove object failed")
				continue
			}
			removed++
		}
	}

	p.logger.Info().
		Time("cutoff", cutoff).
		Int("batches", len(purged)).
		Int("objects", removed).
		Msg("cleanup finished")
	return nil
}
