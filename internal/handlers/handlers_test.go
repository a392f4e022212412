package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockmeta/internal/config"
	"stockmeta/internal/models"
	"stockmeta/internal/repository"
	"stockmeta/internal/service"
)

type fakeBatches struct {
	opts    models.GenerationRequest
	uploads []service.Upload
	scope   string
	err     error
	rows    []models.Row
}

func (f *fakeBatches) Describe(_ context.Context, opts models.GenerationRequest, upload service.Upload) (models.Row, error) {
	f.opts = opts
	f.uploads = append(f.uploads, upload)
	if f.err != nil {
		return models.Row{}, f.err
	}
	return models.Row{Filename: upload.Filename, Title: "Red fox in snow", Keywords: []string{"fox"}}, nil
}

func (f *fakeBatches) Create(_ context.Context, opts models.GenerationRequest, uploads []service.Upload) (models.Batch, error) {
	f.opts = opts
	f.uploads = uploads
	if f.err != nil {
		return models.Batch{}, f.err
	}
	batch := models.Batch{ID: "b1", Status: models.BatchStatusQueued}
	for _, u := range uploads {
		batch.Files = append(batch.Files, models.BatchFile{Filename: u.Filename})
	}
	return batch, nil
}

func (f *fakeBatches) Get(_ context.Context, id string) (models.Batch, []models.Row, error) {
	if f.err != nil {
		return models.Batch{}, nil, f.err
	}
	return models.Batch{ID: id, Status: models.BatchStatusPartial}, f.rows, nil
}

func (f *fakeBatches) Regenerate(_ context.Context, _ string, scope string) error {
	f.scope = scope
	return f.err
}

func newRouter(t *testing.T, batches Batches, db, cache Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandlerSet(zerolog.Nop(), &config.AppConfig{Environment: "test"}, db, cache, batches).Register(engine.Group("/api"))
	return engine
}

func multipartBody(t *testing.T, field string, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestHealth(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	newRouter(t, &fakeBatches{}, ok, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","cache":"ok","environment":"test"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	newRouter(t, &fakeBatches{}, ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"error"`)
}

func TestGenerateMultipart(t *testing.T) {
	fake := &fakeBatches{}
	body, ctype := multipartBody(t, "file", map[string][]byte{"fox.png": pngBytes}, map[string]string{
		"platform":         "adobe",
		"keywordMode":      "fixed",
		"keywordCount":     "25",
		"negativeKeywords": "cheap, ugly",
		"isVector":         "true",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var row models.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "fox.png", row.Filename)

	assert.Equal(t, models.PlatformAdobe, fake.opts.Platform)
	assert.Equal(t, models.KeywordModeFixed, fake.opts.KeywordMode)
	assert.Equal(t, 25, fake.opts.KeywordCount)
	assert.Equal(t, []string{"cheap", "ugly"}, fake.opts.NegativeKeywords)
	assert.True(t, fake.opts.IsVector)
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, pngBytes, fake.uploads[0].Data)
}

func TestGenerateJSON(t *testing.T) {
	fake := &fakeBatches{}
	payload := `{"filename":"fox.png","imageDataUrl":"data:image/png;base64,iVBORw0KGgo=","platform":"shutterstock","negativeTitle":["night"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.PlatformShutterstock, fake.opts.Platform)
	assert.Equal(t, []string{"night"}, fake.opts.NegativeTitle)
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, "image/png", fake.uploads[0].DeclaredMIME)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, fake.uploads[0].Data)
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"bad data url", `{"filename":"a.png","imageDataUrl":"nope"}`, nil, http.StatusBadRequest, "invalid_image_data"},
		{"missing filename", `{"imageDataUrl":"data:image/png;base64,aGk="}`, nil, http.StatusBadRequest, "filename_required"},
		{"no keys", `{"filename":"a.png","imageDataUrl":"data:image/png;base64,aGk="}`, service.ErrNoKeys, http.StatusServiceUnavailable, "no_api_keys"},
		{"exhausted", `{"filename":"a.png","imageDataUrl":"data:image/png;base64,aGk="}`, service.ErrKeysExhausted, http.StatusTooManyRequests, "keys_exhausted"},
		{"unsupported", `{"filename":"a.png","imageDataUrl":"data:image/png;base64,aGk="}`, service.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "unsupported_media_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			newRouter(t, &fakeBatches{err: tc.err}, nil, nil).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.code+`"}`, rec.Body.String())
		})
	}
}

func TestCreateBatch(t *testing.T) {
	fake := &fakeBatches{}
	body, ctype := multipartBody(t, "files[]", map[string][]byte{"a.png": pngBytes, "b.png": pngBytes}, map[string]string{"platform": "general"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b1", resp.ID)
	assert.Equal(t, "queued", resp.Status)
	assert.Len(t, resp.Files, 2)
	assert.Len(t, fake.uploads, 2)
}

func TestCreateBatchWithoutFiles(t *testing.T) {
	body, ctype := multipartBody(t, "files[]", nil, map[string]string{"platform": "general"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(t, &fakeBatches{err: service.ErrNoFiles}, nil, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"file_required"}`, rec.Body.String())
}

func TestGetBatch(t *testing.T) {
	fake := &fakeBatches{rows: []models.Row{{Filename: "a.png", Title: "Fox"}, {Filename: "b.png", Error: "boom"}}}
	rec := httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batches/b1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "partial", resp.Status)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "boom", resp.Rows[1].Error)

	rec = httptest.NewRecorder()
	newRouter(t, &fakeBatches{err: repository.ErrBatchNotFound}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batches/zz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegenerateBatch(t *testing.T) {
	fake := &fakeBatches{}
	rec := httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batches/b1/regenerate", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "failed", fake.scope)

	rec = httptest.NewRecorder()
	newRouter(t, fake, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batches/b1/regenerate?scope=all", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "all", fake.scope)

	rec = httptest.NewRecorder()
	newRouter(t, &fakeBatches{err: service.ErrInvalidScope}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batches/b1/regenerate?scope=some", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSplitTerms(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitTerms([]string{"a, b", " c ", ""}))
	assert.Nil(t, splitTerms(nil))
}
