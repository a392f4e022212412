package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockmeta/internal/models"
	"stockmeta/internal/service"
)

type batchResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Files     []models.BatchFile `json:"files"`
	Rows      []models.Row       `json:"rows"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func newBatchResponse(batch models.Batch, rows []models.Row) batchResponse {
	files := batch.Files
	if files == nil {
		files = []models.BatchFile{}
	}
	return batchResponse{
		ID:        batch.ID,
		Status:    string(batch.Status),
		Files:     files,
		Rows:      rows,
		CreatedAt: batch.CreatedAt,
		UpdatedAt: batch.UpdatedAt,
	}
}

func (h HandlerSet) CreateBatch(c *gin.Context) {
	var opts generationOptions
	if err := c.ShouldBind(&opts); err != nil {
		if isTooLarge(err) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_options"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}

	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = form.File["files"]
	}
	uploads := make([]service.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			h.fail(c, err)
			return
		}
		uploads = append(uploads, upload)
	}

	batch, err := h.batches.Create(c.Request.Context(), opts.request(), uploads)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newBatchResponse(batch, []models.Row{}))
}

func (h HandlerSet) GetBatch(c *gin.Context) {
	batch, rows, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []models.Row{}
	}
	c.JSON(http.StatusOK, newBatchResponse(batch, rows))
}

func (h HandlerSet) RegenerateBatch(c *gin.Context) {
	id := c.Param("id")
	scope := c.DefaultQuery("scope", "failed")
	if err := h.batches.Regenerate(c.Request.Context(), id, scope); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": models.BatchStatusQueued, "scope": scope})
}
