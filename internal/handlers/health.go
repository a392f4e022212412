package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    h.ping(ctx, h.db, "database"),
		Cache:       h.ping(ctx, h.cache, "redis"),
		Environment: h.cfg.Environment,
	}

	code := http.StatusOK
	if resp.Database == "error" || resp.Cache == "error" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h HandlerSet) ping(ctx context.Context, p Pinger, name string) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msgf("%s ping failed", name)
		return "error"
	}
	return "ok"
}
