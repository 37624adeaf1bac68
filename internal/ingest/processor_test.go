package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/dao/judgementdao"
	ierrors "github.com/savaki/judgement-ingest/internal/errors"
	"github.com/savaki/judgement-ingest/internal/models"
	"github.com/savaki/judgement-ingest/internal/services"
)

type mockDownloader struct {
	downloadFunc func(ctx context.Context, url string) ([]byte, error)
	calls        int
}

func (m *mockDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	return m.downloadFunc(ctx, url)
}

type mockStore struct {
	err    error
	bucket string
	key    string
	data   []byte
	calls  int
}

func (m *mockStore) PutPDF(ctx context.Context, bucket, key string, data []byte) error {
	m.calls++
	m.bucket, m.key, m.data = bucket, key, data
	return m.err
}

type mockJobs struct {
	jobID     string
	err       error
	requestID string
	job       models.JobRequest
	calls     int
}

func (m *mockJobs) SubmitJob(ctx context.Context, requestID string, job models.JobRequest) (string, error) {
	m.calls++
	m.requestID, m.job = requestID, job
	return m.jobID, m.err
}

type mockJudgements struct {
	record  *judgementdao.Record
	findErr error
	finds   int
	err     error
	input   judgementdao.UpdateJobInput
	calls   int
}

func (m *mockJudgements) Find(ctx context.Context, id judgementdao.ID) (*judgementdao.Record, error) {
	m.finds++
	return m.record, m.findErr
}

func (m *mockJudgements) UpdateJob(ctx context.Context, input judgementdao.UpdateJobInput) error {
	m.calls++
	m.input = input
	return m.err
}

type fixture struct {
	downloader *mockDownloader
	store      *mockStore
	jobs       *mockJobs
	judgements *mockJudgements
	processor  *Processor
}

func newFixture() *fixture {
	config := services.Config{}.WithDefaults()
	f := &fixture{
		downloader: &mockDownloader{downloadFunc: func(ctx context.Context, url string) ([]byte, error) {
			return []byte("%PDF-1.7"), nil
		}},
		store:      &mockStore{},
		jobs:       &mockJobs{jobID: "job-42"},
		judgements: &mockJudgements{},
	}
	f.processor = NewProcessor(&config, f.downloader, f.store, f.jobs, f.judgements)
	f.processor.newID = func() string { return "req-1" }
	f.processor.updateDelay = time.Millisecond
	return f
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

const testLink = "https://main.sci.gov.in/supremecourt/2019/12345/12345_2019_5_1501_05-Mar-2021.pdf"

func TestProcessor_Process(t *testing.T) {
	f := newFixture()

	result, err := f.processor.Process(testContext(), testLink)
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	want := Result{
		UniqueID:   "123452019_2021-03-05",
		FileName:   "12345_2019_5_1501_05-Mar-2021.pdf",
		InputPath:  "s3://judgement-pdfs/judgements/12345_2019_5_1501_05-Mar-2021.pdf",
		OutputPath: "s3://judgement-jsons/judgements/12345_2019_5_1501_05-Mar-2021.pdf",
		JobID:      "job-42",
		RequestID:  "req-1",
		Size:       8,
	}
	if result != want {
		t.Errorf("Process() = %+v, want %+v", result, want)
	}

	if f.store.bucket != "judgement-pdfs" || f.store.key != "judgements/12345_2019_5_1501_05-Mar-2021.pdf" {
		t.Errorf("PutPDF() wrote %s/%s", f.store.bucket, f.store.key)
	}
	if f.jobs.requestID != "req-1" {
		t.Errorf("SubmitJob() requestID = %q", f.jobs.requestID)
	}
	if f.jobs.job.InputFilePath != want.InputPath || f.jobs.job.OutputFilePath != want.OutputPath {
		t.Errorf("SubmitJob() job = %+v", f.jobs.job)
	}

	input := f.judgements.input
	if input.ID != "123452019_2021-03-05" || input.Status != judgementdao.StatusPendingOCR || input.JobID != "job-42" {
		t.Errorf("UpdateJob() input = %+v", input)
	}
	if input.SourceURL != testLink {
		t.Errorf("UpdateJob() SourceURL = %q", input.SourceURL)
	}
}

func TestProcessor_Process_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name          string
		link          string
		setup         func(f *fixture)
		wantErr       error
		wantFinds     int
		wantDownloads int
		wantStores    int
		wantSubmits   int
		wantUpdates   int
	}{
		{
			name:    "invalid url",
			link:    "not a url",
			wantErr: ierrors.ErrInvalidJudgementURL,
		},
		{
			name:    "invalid file name",
			link:    "https://example.com/judgement.pdf",
			wantErr: ierrors.ErrInvalidFileName,
		},
		{
			name: "download fails",
			link: testLink,
			setup: func(f *fixture) {
				f.downloader.downloadFunc = func(ctx context.Context, url string) ([]byte, error) {
					return nil, ierrors.ErrUnexpectedStatus
				}
			},
			wantErr:       ierrors.ErrUnexpectedStatus,
			wantFinds:     1,
			wantDownloads: 1,
		},
		{
			name:      "lookup fails",
			link:      testLink,
			setup:     func(f *fixture) { f.judgements.findErr = boom },
			wantErr:   boom,
			wantFinds: 1,
		},
		{
			name:          "store fails",
			link:          testLink,
			setup:         func(f *fixture) { f.store.err = boom },
			wantErr:       boom,
			wantFinds:     1,
			wantDownloads: 1,
			wantStores:    1,
		},
		{
			name:          "submit fails",
			link:          testLink,
			setup:         func(f *fixture) { f.jobs.err = ierrors.ErrMissingJobID },
			wantErr:       ierrors.ErrMissingJobID,
			wantFinds:     1,
			wantDownloads: 1,
			wantStores:    1,
			wantSubmits:   1,
		},
		{
			name:          "update fails",
			link:          testLink,
			setup:         func(f *fixture) { f.judgements.err = boom },
			wantErr:       boom,
			wantFinds:     1,
			wantDownloads: 1,
			wantStores:    1,
			wantSubmits:   1,
			wantUpdates:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.processor.Process(testContext(), tt.link)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
			}

			if f.judgements.finds != tt.wantFinds {
				t.Errorf("finds = %d, want %d", f.judgements.finds, tt.wantFinds)
			}
			if f.downloader.calls != tt.wantDownloads {
				t.Errorf("downloads = %d, want %d", f.downloader.calls, tt.wantDownloads)
			}
			if f.store.calls != tt.wantStores {
				t.Errorf("stores = %d, want %d", f.store.calls, tt.wantStores)
			}
			if f.jobs.calls != tt.wantSubmits {
				t.Errorf("submits = %d, want %d", f.jobs.calls, tt.wantSubmits)
			}
			if f.judgements.calls != tt.wantUpdates {
				t.Errorf("updates = %d, want %d", f.judgements.calls, tt.wantUpdates)
			}
		})
	}
}

func TestProcessor_Process_ExistingJob(t *testing.T) {
	const inputPath = "s3://judgement-pdfs/judgements/12345_2019_5_1501_05-Mar-2021.pdf"

	tests := []struct {
		name        string
		record      *judgementdao.Record
		wantJobID   string
		wantSubmits int
	}{
		{
			name:      "job recorded for the same pdf",
			record:    &judgementdao.Record{UniqueID: "123452019_2021-03-05", Status: judgementdao.StatusPendingOCR, JobID: "job-1", InputPath: inputPath, RequestID: "req-0"},
			wantJobID: "job-1",
		},
		{
			name:        "record without a job",
			record:      &judgementdao.Record{UniqueID: "123452019_2021-03-05", InputPath: inputPath},
			wantJobID:   "job-42",
			wantSubmits: 1,
		},
		{
			name:        "job recorded for another pdf",
			record:      &judgementdao.Record{UniqueID: "123452019_2021-03-05", JobID: "job-1", InputPath: "s3://judgement-pdfs/judgements/other.pdf"},
			wantJobID:   "job-42",
			wantSubmits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.judgements.record = tt.record

			result, err := f.processor.Process(testContext(), testLink)
			if err != nil {
				t.Fatalf("Process() unexpected error: %v", err)
			}
			if result.JobID != tt.wantJobID {
				t.Errorf("JobID = %q, want %q", result.JobID, tt.wantJobID)
			}
			if f.jobs.calls != tt.wantSubmits {
				t.Errorf("submits = %d, want %d", f.jobs.calls, tt.wantSubmits)
			}
			if result.Existing != (tt.wantSubmits == 0) {
				t.Errorf("Existing = %v", result.Existing)
			}
			if tt.wantSubmits == 0 {
				if f.downloader.calls != 0 || f.store.calls != 0 || f.judgements.calls != 0 {
					t.Errorf("existing job should skip all writes: downloads=%d stores=%d updates=%d",
						f.downloader.calls, f.store.calls, f.judgements.calls)
				}
				if result.RequestID != "req-0" {
					t.Errorf("RequestID = %q, want stored req-0", result.RequestID)
				}
			}
		})
	}
}

func TestProcessor_Process_RetriesUpdate(t *testing.T) {
	f := newFixture()
	recorder := &flakyJudgements{mockJudgements: f.judgements, failures: 1}
	f.processor.judgements = recorder

	result, err := f.processor.Process(testContext(), testLink)
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}
	if result.JobID != "job-42" {
		t.Errorf("JobID = %q, want job-42", result.JobID)
	}
	if f.jobs.calls != 1 {
		t.Errorf("submits = %d, want 1", f.jobs.calls)
	}
	if recorder.calls != 2 {
		t.Errorf("updates = %d, want 2", recorder.calls)
	}
}

// flakyJudgements fails the first few UpdateJob calls
type flakyJudgements struct {
	*mockJudgements
	failures int
}

func (m *flakyJudgements) UpdateJob(ctx context.Context, input judgementdao.UpdateJobInput) error {
	m.calls++
	if m.calls <= m.failures {
		return errors.New("throttled")
	}
	m.input = input
	return nil
}
