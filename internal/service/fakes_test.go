package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockmeta/internal/models"
	"stockmeta/internal/queue"
	"stockmeta/internal/repository"
)

type memBatches struct {
	mu      sync.Mutex
	batches map[string]models.Batch
	rows    map[string]map[string]models.Row
}

func newMemBatches() *memBatches {
	return &memBatches{batches: map[string]models.Batch{}, rows: map[string]map[string]models.Row{}}
}

func (m *memBatches) Create(_ context.Context, batch models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.ID] = batch
	return nil
}

func (m *memBatches) GetByID(_ context.Context, id string) (models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return models.Batch{}, repository.ErrBatchNotFound
	}
	return b, nil
}

func (m *memBatches) UpdateStatus(_ context.Context, id string, status models.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return repository.ErrBatchNotFound
	}
	b.Status = status
	m.batches[id] = b
	return nil
}

func (m *memBatches) UpsertRow(_ context.Context, batchID string, _ int, row models.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[batchID] == nil {
		m.rows[batchID] = map[string]models.Row{}
	}
	m.rows[batchID][row.Filename] = row
	return nil
}

func (m *memBatches) ListRows(_ context.Context, batchID string) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Row
	for _, r := range m.rows[batchID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (m *memBatches) PurgeOlderThan(_ context.Context, cutoff time.Time) ([]models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Batch
	for id, b := range m.batches {
		if b.CreatedAt.Before(cutoff) {
			out = append(out, b)
			delete(m.batches, id)
			delete(m.rows, id)
		}
	}
	return out, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Bucket() string { return "originals" }

func (m *memBlobs) Put(_ context.Context, bucket, key, contentType string, data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	m.types[bucket+"/"+key] = contentType
	return int64(len(data)), nil
}

func (m *memBlobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (m *memBlobs) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

type memQueue struct {
	tasks []queue.Task
}

func (q *memQueue) Enqueue(_ context.Context, task queue.Task) (string, error) {
	q.tasks = append(q.tasks, task)
	return fmt.Sprintf("%d-0", len(q.tasks)), nil
}
