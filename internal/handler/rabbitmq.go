// Package handler turns queued crawl commands into crawl jobs.
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/internal/platform/rabbitmq"
	"github.com/dealmungchi/dealcrawler/logger"
)

// CrawlCommand is the queued form of a crawl job request
type CrawlCommand struct {
	Sources []string       `json:"sources"`
	Options engine.Options `json:"options"`
}

// JobRunner executes crawl jobs
type JobRunner interface {
	ExecuteCrawlJob(ctx context.Context, req engine.CrawlJobRequest) (*engine.CrawlJobResult, error)
}

// Consumer delivers queue messages to a handler
type Consumer interface {
	Consume(ctx context.Context, queue string, handler rabbitmq.HandlerFunc) (<-chan error, error)
}

// RMQHandler handles RMQ messages.
type RMQHandler struct {
	rmq    Consumer
	runner JobRunner
	logger *logger.Logger
}

// NewHandler returns new RMQHandler.
func NewHandler(rmq Consumer, runner JobRunner, log *logger.Logger) *RMQHandler {
	return &RMQHandler{
		rmq:    rmq,
		runner: runner,
		logger: log,
	}
}

// Start starts consuming and handling crawl commands from RMQ.
func (h *RMQHandler) Start(ctx context.Context, queue string) error {
	errorsChan, err := h.rmq.Consume(ctx, queue, h.Handle)
	if err != nil {
		return err
	}

	go func() {
		for err := range errorsChan {
			h.logger.Error().
				Err(err).
				Msg("can't handle message")
		}
	}()

	return nil
}

// Handle runs the crawl command in message. Only undecodable or rejected
// commands return an error; source failures stay in the job result.
func (h *RMQHandler) Handle(ctx context.Context, message []byte) error {
	cmd, err := decodeMessage(message)
	if err != nil {
		return err
	}

	h.logger.Debug().
		Strs("sources", cmd.Sources).
		Msg("crawl command received")

	result, err := h.runner.ExecuteCrawlJob(ctx, engine.CrawlJobRequest{
		Sources: cmd.Sources,
		Options: cmd.Options,
	})
	if err != nil {
		return fmt.Errorf("crawl command rejected: %w", err)
	}

	h.logger.Info().
		Str("job_id", result.JobID).
		Bool("success", result.Success).
		Int("saved", result.Stats.TotalSaved).
		Msg("crawl command finished")

	return nil
}

func decodeMessage(msg []byte) (*CrawlCommand, error) {
	var cmd CrawlCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return nil, fmt.Errorf("can't decode crawl command: %w", err)
	}
	return &cmd, nil
}
