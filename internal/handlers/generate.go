package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stockmeta/internal/media/sniffer"
	"stockmeta/internal/service"
)

// Generate describes a single file synchronously. It accepts a multipart
// "file" with form options, or JSON carrying imageDataUrl.
func (h HandlerSet) Generate(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		h.generateJSON(c)
		return
	}

	var opts generationOptions
	if err := c.ShouldBind(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_options"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	upload, err := readUpload(header)
	if err != nil {
		h.fail(c, err)
		return
	}

	row, err := h.batches.Describe(c.Request.Context(), opts.request(), upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h HandlerSet) generateJSON(c *gin.Context) {
	var body generateJSON
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	if strings.TrimSpace(body.Filename) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename_required"})
		return
	}

	upload, err := service.UploadFromDataURL(body.Filename, body.ImageDataURL)
	if err != nil {
		h.fail(c, err)
		return
	}

	row, err := h.batches.Describe(c.Request.Context(), body.request(), upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func readUpload(header *multipart.FileHeader) (service.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return service.Upload{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, err
	}
	return service.Upload{
		Filename:     header.Filename,
		Data:         data,
		DeclaredMIME: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
	}, nil
}

func isTooLarge(err error) bool {
	status, _ := classify(err)
	return status == http.StatusRequestEntityTooLarge
}
