package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockmeta/internal/media/sniffer"
	"stockmeta/internal/models"
	"stockmeta/internal/orchestrator"
	"stockmeta/internal/queue"
	"stockmeta/internal/repository"
)

type memStore struct {
	mu       sync.Mutex
	batch    models.Batch
	rows     map[string]models.Row
	statuses []models.BatchStatus
	purged   []models.Batch
	cutoff   time.Time
}

func (m *memStore) Create(context.Context, models.Batch) error { return nil }

func (m *memStore) GetByID(_ context.Context, id string) (models.Batch, error) {
	if id != m.batch.ID {
		return models.Batch{}, repository.ErrBatchNotFound
	}
	return m.batch, nil
}

func (m *memStore) UpdateStatus(_ context.Context, _ string, status models.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) UpsertRow(_ context.Context, _ string, _ int, row models.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]models.Row{}
	}
	m.rows[row.Filename] = row
	return nil
}

func (m *memStore) ListRows(context.Context, string) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Row
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (m *memStore) PurgeOlderThan(_ context.Context, cutoff time.Time) ([]models.Batch, error) {
	m.cutoff = cutoff
	return m.purged, nil
}

type memBlobs struct {
	removed []string
}

func (b *memBlobs) Bucket() string { return "originals" }
func (b *memBlobs) Put(context.Context, string, string, string, []byte) (int64, error) {
	return 0, nil
}
func (b *memBlobs) Get(_ context.Context, _, key string) ([]byte, error) {
	if key == "missing" {
		return nil, errors.New("no such key")
	}
	return []byte("hi"), nil
}
func (b *memBlobs) Remove(_ context.Context, _, key string) error {
	b.removed = append(b.removed, key)
	return nil
}

// scriptedRunner fails files listed in fail and skips files listed in skip.
type scriptedRunner struct {
	fail   map[string]bool
	skip   map[string]bool
	seen   []string
	images map[string]string
}

func (r *scriptedRunner) Run(ctx context.Context, items []orchestrator.Item, onRow func(models.Row)) orchestrator.Result {
	var res orchestrator.Result
	r.images = map[string]string{}
	for _, item := range items {
		name := item.Request.Filename
		r.seen = append(r.seen, name)
		if r.skip[name] {
			res.Skipped = append(res.Skipped, name)
			res.Stopped = true
			continue
		}
		if item.Image != nil {
			img, err := item.Image(ctx)
			if err != nil {
				img = "error: " + err.Error()
			}
			r.images[name] = img
		}
		row := models.SuccessRow(item.Request, "Title for "+name, "", []string{"kw"}, models.AssetPhoto)
		if r.fail[name] {
			row = models.ErrorRow(item.Request, models.AssetPhoto, "boom")
		}
		res.Rows = append(res.Rows, row)
		onRow(row)
	}
	return res
}

func (r *scriptedRunner) DataURL(mime string, data []byte) string {
	return sniffer.DataURL(mime, data)
}

func testBatch() models.Batch {
	return models.Batch{
		ID:      "b1",
		Status:  models.BatchStatusQueued,
		Options: models.GenerationRequest{Platform: models.PlatformAdobe},
		Files: []models.BatchFile{
			{Filename: "a.png", Bucket: "originals", ObjectKey: "k/a", MIME: "image/png"},
			{Filename: "b.mp4", Bucket: "originals", ObjectKey: "k/b", MIME: "video/mp4"},
			{Filename: "c.png", Bucket: "originals", ObjectKey: "k/c", MIME: "image/png"},
		},
	}
}

func message(task queue.Task) redis.XMessage {
	values := map[string]interface{}{}
	for k, v := range task.Values() {
		values[k] = v
	}
	return redis.XMessage{ID: "1-0", Values: values}
}

func TestGenerateCompletes(t *testing.T) {
	store := &memStore{batch: testBatch()}
	runner := &scriptedRunner{}
	p := NewProcessor(store, &memBlobs{}, runner, 0, zerolog.Nop())

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskGenerate, BatchID: "b1"})))

	assert.Equal(t, []string{"a.png", "b.mp4", "c.png"}, runner.seen)
	assert.Equal(t, "data:image/png;base64,aGk=", runner.images["a.png"])
	_, hasImage := runner.images["b.mp4"]
	assert.False(t, hasImage, "videos are described from the filename")
	assert.Len(t, store.rows, 3)
	assert.Equal(t, "Adobe Stock", store.rows["a.png"].Platform)
	assert.Equal(t, []models.BatchStatus{models.BatchStatusProcessing, models.BatchStatusCompleted}, store.statuses)
}

func TestGeneratePartialAndHalted(t *testing.T) {
	store := &memStore{batch: testBatch()}
	p := NewProcessor(store, &memBlobs{}, &scriptedRunner{fail: map[string]bool{"a.png": true}}, 0, zerolog.Nop())
	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskGenerate, BatchID: "b1"})))
	assert.Equal(t, models.BatchStatusPartial, store.statuses[len(store.statuses)-1])

	store = &memStore{batch: testBatch()}
	p = NewProcessor(store, &memBlobs{}, &scriptedRunner{skip: map[string]bool{"c.png": true}}, 0, zerolog.Nop())
	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskGenerate, BatchID: "b1"})))
	assert.Equal(t, models.BatchStatusHalted, store.statuses[len(store.statuses)-1])
}

func TestRegenerateFailedOnly(t *testing.T) {
	store := &memStore{batch: testBatch(), rows: map[string]models.Row{
		"a.png": {Filename: "a.png", Title: "ok"},
		"b.mp4": {Filename: "b.mp4", Error: "boom"},
	}}
	runner := &scriptedRunner{}
	p := NewProcessor(store, &memBlobs{}, runner, 0, zerolog.Nop())

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskRegenerate, BatchID: "b1", Scope: queue.ScopeFailed})))

	assert.Equal(t, []string{"b.mp4", "c.png"}, runner.seen)
	assert.False(t, store.rows["b.mp4"].Failed())
	assert.Equal(t, "ok", store.rows["a.png"].Title)
	assert.Equal(t, models.BatchStatusCompleted, store.statuses[len(store.statuses)-1])
}

func TestRegenerateAll(t *testing.T) {
	store := &memStore{batch: testBatch()}
	runner := &scriptedRunner{}
	p := NewProcessor(store, &memBlobs{}, runner, 0, zerolog.Nop())

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskRegenerate, BatchID: "b1", Scope: queue.ScopeAll})))
	assert.Len(t, runner.seen, 3)
}

func TestImageLoadFailureReachesRunner(t *testing.T) {
	batch := testBatch()
	batch.Files[0].ObjectKey = "missing"
	store := &memStore{batch: batch}
	runner := &scriptedRunner{}
	p := NewProcessor(store, &memBlobs{}, runner, 0, zerolog.Nop())

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskGenerate, BatchID: "b1"})))
	assert.Equal(t, "error: no such key", runner.images["a.png"])
}

func TestMissingBatchIsDropped(t *testing.T) {
	store := &memStore{batch: testBatch()}
	runner := &scriptedRunner{}
	p := NewProcessor(store, &memBlobs{}, runner, 0, zerolog.Nop())

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskGenerate, BatchID: "gone"})))
	assert.Empty(t, runner.seen)
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	store := &memStore{purged: []models.Batch{testBatch()}}
	blobs := &memBlobs{}
	p := NewProcessor(store, blobs, &scriptedRunner{}, 48*time.Hour, zerolog.Nop())
	p.now = func() time.Time { return now }

	require.NoError(t, p.Handle(context.Background(), message(queue.Task{Type: queue.TaskCleanup})))
	assert.Equal(t, now.Add(-48*time.Hour), store.cutoff)
	assert.Equal(t, []string{"k/a", "k/b", "k/c"}, blobs.removed)
}

func TestUnknownTaskIsAcked(t *testing.T) {
	p := NewProcessor(&memStore{}, &memBlobs{}, &scriptedRunner{}, 0, zerolog.Nop())
	assert.NoError(t, p.Handle(context.Background(), redis.XMessage{Values: map[string]interface{}{"type": "thumbnail"}}))
}
