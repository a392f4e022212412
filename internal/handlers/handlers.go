package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stockmeta/internal/config"
	"stockmeta/internal/models"
	"stockmeta/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Batches is the slice of *service.BatchService the HTTP layer uses.
type Batches interface {
	Describe(ctx context.Context, opts models.GenerationRequest, upload service.Upload) (models.Row, error)
	Create(ctx context.Context, opts models.GenerationRequest, uploads []service.Upload) (models.Batch, error)
	Get(ctx context.Context, id string) (models.Batch, []models.Row, error)
	Regenerate(ctx context.Context, id, scope string) error
}

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	db      Pinger
	cache   Pinger
	batches Batches
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, db, cache Pinger, batches Batches) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		db:      db,
		cache:   cache,
		batches: batches,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.POST("/generate", h.Generate)

	batches := v1.Group("/batches")
	batches.POST("", h.CreateBatch)
	batches.GET("/:id", h.GetBatch)
	batches.POST("/:id/regenerate", h.RegenerateBatch)
}
