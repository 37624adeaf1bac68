package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/di"
	"github.com/savaki/judgement-ingest/internal/errors"
	"github.com/savaki/judgement-ingest/internal/ingest"
	"github.com/savaki/judgement-ingest/internal/models"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// Processor ingests a single judgement link
type Processor interface {
	Process(ctx context.Context, link string) (ingest.Result, error)
}

// MetricsPublisher records per-batch counts
type MetricsPublisher interface {
	PutIngestCounts(ctx context.Context, ingested, failed int) error
}

type Handler struct {
	processor   Processor
	metrics     MetricsPublisher
	concurrency int
}

func NewHandler(processor Processor, metrics MetricsPublisher, config *services.Config) *Handler {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = services.DefaultConcurrency
	}
	return &Handler{
		processor:   processor,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// HandleSQSEvent processes every record in the batch and reports the ones that
// failed so only those are redelivered
func (h *Handler) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	logger := zerolog.Ctx(ctx)

	var (
		mu       sync.Mutex
		response events.SQSEventResponse
		ingested int
	)

	group := errgroup.Group{}
	group.SetLimit(h.concurrency)

	for i := range event.Records {
		record := &event.Records[i]
		group.Go(func() error {
			ok, err := h.processRecord(ctx, record)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
					ItemIdentifier: record.MessageId,
				})
				return nil
			}
			if ok {
				ingested++
			}
			return nil
		})
	}
	_ = group.Wait()

	failed := len(response.BatchItemFailures)
	logger.Info().
		Int("records", len(event.Records)).
		Int("ingested", ingested).
		Int("failed", failed).
		Msg("processed batch")

	if h.metrics != nil {
		if err := h.metrics.PutIngestCounts(ctx, ingested, failed); err != nil {
			logger.Warn().Err(err).Msg("failed to publish ingest metrics")
		}
	}

	return response, nil
}

// processRecord returns true when the record was ingested.
// Records without a link are acknowledged without being ingested.
func (h *Handler) processRecord(ctx context.Context, record *events.SQSMessage) (bool, error) {
	logger := zerolog.Ctx(ctx).With().Str("message_id", record.MessageId).Logger()
	ctx = logger.WithContext(ctx)

	var message models.JudgementMessage
	if err := json.Unmarshal([]byte(record.Body), &message); err != nil {
		logger.Error().Err(err).Msg("failed to decode message body")
		return false, fmt.Errorf("failed to decode message %s: %w", record.MessageId, err)
	}

	if message.JudgementPdfLink == "" {
		logger.Warn().Err(errors.ErrMissingJudgementLink).Msg("skipping message")
		return false, nil
	}

	result, err := h.processor.Process(ctx, message.JudgementPdfLink)
	if err != nil {
		event := logger.Error().Err(err).Str("link", message.JudgementPdfLink)
		if result.UniqueID != "" {
			event = event.Str("unique_id", result.UniqueID)
		}
		if stderrors.Is(err, errors.ErrInvalidJudgementURL) || stderrors.Is(err, errors.ErrInvalidFileName) {
			event = event.Bool("invalid_link", true)
		}
		event.Msg("failed to ingest judgement")
		return false, err
	}

	logger.Info().
		Str("unique_id", result.UniqueID).
		Str("job_id", result.JobID).
		Msg("ingested judgement")
	return true, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "ingest").Logger()

	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	container, err := di.New(env,
		di.WithLogger(logger),
		di.WithProviders(
			di.ProvideJudgementDAO,
			di.ProvideProcessor,
			func(processor *ingest.Processor, metrics *services.Metrics, config *services.Config) *Handler {
				return NewHandler(processor, metrics, config)
			},
		),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DI container")
		os.Exit(1)
	}

	handler := di.MustGet[*Handler](container)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		wrappedHandler := func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleSQSEvent(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "ingest",
		Usage: "Simulate an SQS event carrying judgement links",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "url",
				Usage:    "judgement PDF link, may be repeated",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			event := newEvent(c.StringSlice("url")...)

			ctx := logger.WithContext(c.Context)
			response, err := handler.HandleSQSEvent(ctx, event)
			if err != nil {
				return err
			}
			if n := len(response.BatchItemFailures); n > 0 {
				return fmt.Errorf("%d of %d judgements failed", n, len(event.Records))
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}

// newEvent wraps links in an SQS event the way the queue would deliver them
func newEvent(links ...string) events.SQSEvent {
	var event events.SQSEvent
	for _, link := range links {
		body, _ := json.Marshal(models.JudgementMessage{JudgementPdfLink: link})
		event.Records = append(event.Records, events.SQSMessage{
			MessageId:   ksuid.New().String(),
			Body:        string(body),
			EventSource: "aws:sqs",
		})
	}
	return event
}
