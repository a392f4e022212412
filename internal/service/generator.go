package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stockmeta/internal/events"
	"stockmeta/internal/media/sniffer"
	"stockmeta/internal/media/thumb"
	"stockmeta/internal/models"
	"stockmeta/internal/orchestrator"
	"stockmeta/internal/pipeline"
	"stockmeta/internal/vision"
)

type GeneratorOptions struct {
	Keys        []string
	MaxWorkers  int
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxImageSide bounds the longest side of images sent to the model; 0 sends originals.
	MaxImageSide int
}

// Generator runs files through the pipeline with a fresh key pool and stop
// flag per run. It is shared by the synchronous API path and the worker.
type Generator struct {
	caller   vision.Caller
	pipeline *pipeline.Pipeline
	sink     events.Sink
	opts     GeneratorOptions
	log      zerolog.Logger
}

func NewGenerator(caller vision.Caller, p *pipeline.Pipeline, sink events.Sink, opts GeneratorOptions, log zerolog.Logger) *Generator {
	return &Generator{
		caller:   caller,
		pipeline: p,
		sink:     sink,
		opts:     opts,
		log:      log,
	}
}

func (g *Generator) HasKeys() bool {
	return orchestrator.NewKeyPool(g.opts.Keys).Len() > 0
}

// DataURL builds the image payload for the model, downscaling large rasters.
// An image that fails to decode is sent as uploaded.
func (g *Generator) DataURL(mime string, data []byte) string {
	out, outMIME, err := thumb.Fit(data, mime, g.opts.MaxImageSide)
	if err != nil {
		g.log.Debug().Err(err).Str("mime", mime).Msg("image not resized")
		return sniffer.DataURL(mime, data)
	}
	return sniffer.DataURL(outMIME, out)
}

func (g *Generator) Run(ctx context.Context, items []orchestrator.Item, onRow func(models.Row)) orchestrator.Result {
	stop := new(atomic.Bool)

	retrier := vision.NewRetrier(g.caller, g.opts.MaxAttempts, g.opts.BaseDelay, g.log)
	retrier.Stopped = stop.Load
	retrier.OnRetry = events.Callback(ctx, g.sink, g.log)

	runner := orchestrator.NewRunner(g.pipeline.WithCaller(retrier), g.opts.MaxWorkers, g.log)
	result := runner.Run(ctx, orchestrator.Job{
		Items: items,
		Pool:  orchestrator.NewKeyPool(g.opts.Keys),
		Stop:  stop,
		OnRow: onRow,
	})

	g.log.Info().
		Int("files", len(items)).
		Int("rows", len(result.Rows)).
		Int("skipped", len(result.Skipped)).
		Bool("stopped", result.Stopped).
		Msg("generation run finished")
	return result
}
