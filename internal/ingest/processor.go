// Package ingest moves a single judgement PDF from its source URL into S3,
// starts its OCR job, and records the job against the judgement.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/dao/judgementdao"
	"github.com/savaki/judgement-ingest/internal/judgement"
	"github.com/savaki/judgement-ingest/internal/models"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/segmentio/ksuid"
)

// Downloader fetches the PDF at url
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Store writes PDFs to object storage
type Store interface {
	PutPDF(ctx context.Context, bucket, key string, data []byte) error
}

// JobSubmitter starts an OCR job and returns its id
type JobSubmitter interface {
	SubmitJob(ctx context.Context, requestID string, job models.JobRequest) (string, error)
}

// JudgementUpdater looks up and records the job against the judgement
type JudgementUpdater interface {
	Find(ctx context.Context, id judgementdao.ID) (*judgementdao.Record, error)
	UpdateJob(ctx context.Context, input judgementdao.UpdateJobInput) error
}

// Result describes a judgement that was ingested
type Result struct {
	UniqueID   string
	FileName   string
	InputPath  string
	OutputPath string
	JobID      string
	RequestID  string
	Size       int
	Existing   bool // job was already recorded, nothing was submitted
}

type Processor struct {
	config     *services.Config
	downloader Downloader
	store      Store
	jobs       JobSubmitter
	judgements JudgementUpdater
	newID      func() string

	updateAttempts uint
	updateDelay    time.Duration
}

func NewProcessor(config *services.Config, downloader Downloader, store Store, jobs JobSubmitter, judgements JudgementUpdater) *Processor {
	return &Processor{
		config:     config,
		downloader: downloader,
		store:      store,
		jobs:       jobs,
		judgements: judgements,
		newID:      func() string { return ksuid.New().String() },

		updateAttempts: 3,
		updateDelay:    200 * time.Millisecond,
	}
}

// Process ingests the judgement at link.
// Each step runs only when the previous one succeeded. A judgement whose job
// is already recorded for the same input path is returned without resubmitting.
func (p *Processor) Process(ctx context.Context, link string) (Result, error) {
	fileName, err := judgement.FileName(link)
	if err != nil {
		return Result{}, err
	}
	uniqueID, err := judgement.UniqueID(link)
	if err != nil {
		return Result{}, err
	}

	key := judgement.ObjectKey(p.config.KeyPrefix, fileName)
	result := Result{
		UniqueID:   uniqueID,
		FileName:   fileName,
		InputPath:  judgement.S3URI(p.config.InputBucket, key),
		OutputPath: judgement.S3URI(p.config.OutputBucket, key),
		RequestID:  p.newID(),
	}

	logger := zerolog.Ctx(ctx).With().
		Str("unique_id", uniqueID).
		Str("request_id", result.RequestID).
		Logger()
	ctx = logger.WithContext(ctx)

	existing, err := p.judgements.Find(ctx, judgementdao.ID(uniqueID))
	if err != nil {
		return result, fmt.Errorf("failed to look up judgement: %w", err)
	}
	if existing != nil && existing.JobID != "" && existing.InputPath == result.InputPath {
		result.JobID = existing.JobID
		if existing.RequestID != "" {
			result.RequestID = existing.RequestID
		}
		result.Existing = true
		logger.Info().
			Str("job_id", existing.JobID).
			Str("status", existing.Status.String()).
			Msg("judgement already has an OCR job")
		return result, nil
	}

	data, err := p.downloader.Download(ctx, link)
	if err != nil {
		return result, fmt.Errorf("failed to download judgement: %w", err)
	}
	result.Size = len(data)

	if err := p.store.PutPDF(ctx, p.config.InputBucket, key, data); err != nil {
		return result, fmt.Errorf("failed to store judgement: %w", err)
	}
	logger.Info().
		Str("input_path", result.InputPath).
		Str("size", humanize.Bytes(uint64(result.Size))).
		Msg("stored judgement pdf")

	jobID, err := p.jobs.SubmitJob(ctx, result.RequestID, models.JobRequest{
		InputFilePath:  result.InputPath,
		OutputFilePath: result.OutputPath,
	})
	if err != nil {
		return result, fmt.Errorf("failed to submit OCR job: %w", err)
	}
	result.JobID = jobID

	// The job is already running, so a lost record would resubmit it on redelivery
	update := judgementdao.UpdateJobInput{
		ID:         judgementdao.ID(uniqueID),
		Status:     judgementdao.StatusPendingOCR,
		JobID:      jobID,
		SourceURL:  link,
		InputPath:  result.InputPath,
		OutputPath: result.OutputPath,
		RequestID:  result.RequestID,
	}
	err = retry.Do(
		func() error {
			return p.judgements.UpdateJob(ctx, update)
		},
		retry.Context(ctx),
		retry.Attempts(p.updateAttempts),
		retry.Delay(p.updateDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().
				Err(err).
				Uint("attempt", n+1).
				Str("job_id", jobID).
				Msg("failed to record OCR job, retrying")
		}),
	)
	if err != nil {
		return result, fmt.Errorf("failed to record OCR job: %w", err)
	}

	logger.Info().
		Str("job_id", jobID).
		Str("status", judgementdao.StatusPendingOCR.String()).
		Msg("judgement pending ocr")

	return result, nil
}
