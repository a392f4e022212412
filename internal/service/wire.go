package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"stockmeta/internal/compliance"
	"stockmeta/internal/config"
	"stockmeta/internal/events"
	"stockmeta/internal/pipeline"
	"stockmeta/internal/policy"
	"stockmeta/internal/vision"
)

// BuildGenerator wires the configured vision provider, policy tables and
// compliance mode into a Generator.
func BuildGenerator(cfg *config.AppConfig, sink events.Sink, log zerolog.Logger) (*Generator, error) {
	caller, err := vision.NewCaller(cfg.Vision.Provider, cfg.Vision.BaseURL, cfg.Vision.Model, cfg.Vision.Timeout)
	if err != nil {
		return nil, fmt.Errorf("vision caller: %w", err)
	}

	pol, err := policy.LoadFile(cfg.Generation.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	validator := compliance.NewValidator(pol)
	validator.Strict = cfg.Generation.StrictCompliance

	p := pipeline.New(caller, pol, validator, log)
	return NewGenerator(caller, p, sink, GeneratorOptions{
		Keys:        cfg.Vision.APIKeys,
		MaxWorkers:  cfg.Generation.MaxWorkers,
		MaxAttempts: cfg.Vision.MaxAttempts,
		BaseDelay:   cfg.Vision.BaseDelay,

		MaxImageSide: cfg.Generation.MaxImageSide,
	}, log), nil
}
