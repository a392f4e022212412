package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockmeta/internal/ids"
	"stockmeta/internal/media/sniffer"
	"stockmeta/internal/media/svg"
	"stockmeta/internal/models"
	"stockmeta/internal/orchestrator"
	"stockmeta/internal/queue"
	"stockmeta/internal/storage"
	"stockmeta/internal/vision"
)

var (
	ErrNoFiles           = errors.New("no files supplied")
	ErrEmptyFile         = errors.New("empty file")
	ErrDuplicateFilename = errors.New("duplicate filename in batch")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrContentMismatch   = errors.New("declared content type does not match file")
	ErrInvalidScope      = errors.New("invalid regenerate scope")
	ErrNoKeys            = errors.New("no api keys configured")
	ErrKeysExhausted     = errors.New("all api keys exhausted")
)

type BatchStore interface {
	Create(ctx context.Context, batch models.Batch) error
	GetByID(ctx context.Context, id string) (models.Batch, error)
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error
	UpsertRow(ctx context.Context, batchID string, position int, row models.Row) error
	ListRows(ctx context.Context, batchID string) ([]models.Row, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]models.Batch, error)
}

type BlobStore interface {
	Bucket() string
	Put(ctx context.Context, bucket, key, contentType string, data []byte) (int64, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Remove(ctx context.Context, bucket, key string) error
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// Upload is one received file before validation.
type Upload struct {
	Filename     string
	Data         []byte
	DeclaredMIME string
}

// UploadFromDataURL decodes a base64 data URL supplied in a JSON request.
func UploadFromDataURL(filename, dataURL string) (Upload, error) {
	mime, payload, err := vision.ParseDataURL(dataURL)
	if err != nil {
		return Upload{}, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", vision.ErrBadImageData, err)
	}
	return Upload{Filename: filename, Data: data, DeclaredMIME: mime}, nil
}

type BatchService struct {
	batches        BatchStore
	blobs          BlobStore
	tasks          TaskQueue
	generator      *Generator
	autoKeywordCap int
	log            zerolog.Logger
}

func NewBatchService(batches BatchStore, blobs BlobStore, tasks TaskQueue, generator *Generator, autoKeywordCap int, log zerolog.Logger) *BatchService {
	return &BatchService{
		batches:        batches,
		blobs:          blobs,
		tasks:          tasks,
		generator:      generator,
		autoKeywordCap: autoKeywordCap,
		log:            log,
	}
}

// Options fills server-side defaults into client options.
func (s *BatchService) Options(opts models.GenerationRequest) models.GenerationRequest {
	if opts.AutoKeywordCap <= 0 {
		opts.AutoKeywordCap = s.autoKeywordCap
	}
	opts.Filename = ""
	opts.Extension = ""
	return opts.Normalize()
}

// Describe generates one row synchronously.
func (s *BatchService) Describe(ctx context.Context, opts models.GenerationRequest, upload Upload) (models.Row, error) {
	if s.generator == nil || !s.generator.HasKeys() {
		return models.Row{}, ErrNoKeys
	}
	media, data, err := prepare(upload)
	if err != nil {
		return models.Row{}, err
	}

	item := orchestrator.Item{Request: s.Options(opts).ForFile(cleanName(upload.Filename))}
	if !media.IsVideo() {
		item.Image = orchestrator.StaticImage(s.generator.DataURL(media.MIME, data))
	}

	result := s.generator.Run(ctx, []orchestrator.Item{item}, nil)
	if len(result.Rows) == 0 {
		if err := ctx.Err(); err != nil {
			return models.Row{}, err
		}
		return models.Row{}, ErrKeysExhausted
	}
	return result.Rows[0], nil
}

// Create validates and stores every upload, persists the batch and queues it.
func (s *BatchService) Create(ctx context.Context, opts models.GenerationRequest, uploads []Upload) (models.Batch, error) {
	if len(uploads) == 0 {
		return models.Batch{}, ErrNoFiles
	}

	type prepared struct {
		name  string
		media sniffer.Result
		data  []byte
	}
	files := make([]prepared, 0, len(uploads))
	seen := make(map[string]struct{}, len(uploads))
	for _, u := range uploads {
		name := cleanName(u.Filename)
		if _, dup := seen[name]; dup {
			return models.Batch{}, fmt.Errorf("%w: %s", ErrDuplicateFilename, name)
		}
		seen[name] = struct{}{}

		media, data, err := prepare(u)
		if err != nil {
			return models.Batch{}, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, prepared{name: name, media: media, data: data})
	}

	batch := models.Batch{
		ID:      ids.New(),
		Status:  models.BatchStatusQueued,
		Options: s.Options(opts),
	}
	bucket := s.blobs.Bucket()
	for i, f := range files {
		key := storage.ObjectKey(batch.ID, i, f.name)
		size, err := s.blobs.Put(ctx, bucket, key, f.media.MIME, f.data)
		if err != nil {
			return models.Batch{}, fmt.Errorf("store %s: %w", f.name, err)
		}
		batch.Files = append(batch.Files, models.BatchFile{
			Filename:  f.name,
			Bucket:    bucket,
			ObjectKey: key,
			MIME:      f.media.MIME,
			SizeBytes: size,
		})
	}

	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if err := s.batches.Create(ctx, batch); err != nil {
		return models.Batch{}, fmt.Errorf("save batch: %w", err)
	}

	if _, err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TaskGenerate, BatchID: batch.ID}); err != nil {
		return models.Batch{}, err
	}

	s.log.Info().Str("batch_id", batch.ID).Int("files", len(batch.Files)).Msg("batch queued")
	return batch, nil
}

func (s *BatchService) Get(ctx context.Context, id string) (models.Batch, []models.Row, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return models.Batch{}, nil, err
	}
	rows, err := s.batches.ListRows(ctx, id)
	if err != nil {
		return models.Batch{}, nil, fmt.Errorf("list rows: %w", err)
	}
	return batch, rows, nil
}

// Regenerate queues a new run over failed rows or every file of a batch.
func (s *BatchService) Regenerate(ctx context.Context, id, scope string) error {
	if scope == "" {
		scope = queue.ScopeFailed
	}
	if scope != queue.ScopeFailed && scope != queue.ScopeAll {
		return ErrInvalidScope
	}
	if _, err := s.batches.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.batches.UpdateStatus(ctx, id, models.BatchStatusQueued); err != nil {
		return err
	}
	_, err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TaskRegenerate, BatchID: id, Scope: scope})
	return err
}

// prepare sniffs the real type and strips active content from vectors.
func prepare(u Upload) (sniffer.Result, []byte, error) {
	if len(u.Data) == 0 {
		return sniffer.Result{}, nil, ErrEmptyFile
	}

	result, err := sniffer.DetectHead(head(u.Data))
	if err != nil {
		return sniffer.Result{}, nil, ErrUnsupportedMedia
	}

	declared := strings.ToLower(strings.TrimSpace(u.DeclaredMIME))
	if declared != "" && declared != "application/octet-stream" && !compatibleMIME(declared, result.MIME) {
		return sniffer.Result{}, nil, fmt.Errorf("%w: declared %s, actual %s", ErrContentMismatch, declared, result.MIME)
	}

	data := u.Data
	if result.IsSVG() {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return sniffer.Result{}, nil, fmt.Errorf("sanitize svg: %w", err)
		}
		data = clean
	}
	return result, data, nil
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}

func compatibleMIME(declared, actual string) bool {
	if declared == actual {
		return true
	}
	switch declared {
	case "image/jpg", "image/pjpeg":
		return actual == "image/jpeg"
	case "video/avi", "video/msvideo":
		return actual == "video/x-msvideo"
	case "text/xml", "application/xml":
		return actual == "image/svg+xml"
	}
	return false
}

func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
