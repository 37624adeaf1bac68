package commands

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"
	ierrors "github.com/savaki/judgement-ingest/internal/errors"
	"github.com/savaki/judgement-ingest/internal/services"
)

const testRepoURI = "123456789012.dkr.ecr.us-east-1.amazonaws.com/judgement-ingest"

type mockImages struct {
	imageErr error
}

func (m *mockImages) DescribeRepository(ctx context.Context, repositoryName string) (*services.RepositoryInfo, error) {
	return &services.RepositoryInfo{Name: repositoryName, URI: testRepoURI}, nil
}

func (m *mockImages) DescribeImage(ctx context.Context, repositoryName, tag string) (*services.ImageInfo, error) {
	if m.imageErr != nil {
		return nil, m.imageErr
	}
	return &services.ImageInfo{Tag: tag, Digest: "sha256:abc", SizeBytes: 42_000_000}, nil
}

type mockFunctions struct {
	current   string
	status    types.LastUpdateStatus
	updateErr error
	updated   string
	waited    bool
	waitErr   error
}

func (m *mockFunctions) GetFunction(ctx context.Context, functionName string) (*services.FunctionInfo, error) {
	return &services.FunctionInfo{Name: functionName, ImageURI: m.current, LastUpdateStatus: string(m.status)}, nil
}

func (m *mockFunctions) UpdateFunctionImage(ctx context.Context, functionName, imageURI string) error {
	m.updated = imageURI
	return m.updateErr
}

func (m *mockFunctions) WaitForUpdate(ctx context.Context, functionName string, maxWait time.Duration) error {
	m.waited = true
	return m.waitErr
}

func TestDeploy(t *testing.T) {
	const sha = "3f2c1a9b7e6d5c4b3a2f1e0d9c8b7a6f5e4d3c2b"
	want := testRepoURI + ":" + sha

	tests := []struct {
		name        string
		input       deployInput
		images      *mockImages
		functions   *mockFunctions
		wantErr     error
		wantUpdated string
		wantWaited  bool
	}{
		{
			name:        "updates and waits",
			input:       deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha},
			images:      &mockImages{},
			functions:   &mockFunctions{current: testRepoURI + ":old"},
			wantUpdated: want,
			wantWaited:  true,
		},
		{
			name:        "no wait",
			input:       deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha, NoWait: true},
			images:      &mockImages{},
			functions:   &mockFunctions{},
			wantUpdated: want,
		},
		{
			name:      "dry run",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha, DryRun: true},
			images:    &mockImages{},
			functions: &mockFunctions{},
		},
		{
			name:      "already deployed",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha},
			images:    &mockImages{},
			functions: &mockFunctions{current: want, status: types.LastUpdateStatusSuccessful},
		},
		{
			name:       "same image still updating waits",
			input:      deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha},
			images:     &mockImages{},
			functions:  &mockFunctions{current: want, status: types.LastUpdateStatusInProgress},
			wantWaited: true,
		},
		{
			name:      "same image still updating with no wait",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha, NoWait: true},
			images:    &mockImages{},
			functions: &mockFunctions{current: want, status: types.LastUpdateStatusInProgress},
		},
		{
			name:        "same image after failed update is applied again",
			input:       deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha},
			images:      &mockImages{},
			functions:   &mockFunctions{current: want, status: types.LastUpdateStatusFailed},
			wantUpdated: want,
			wantWaited:  true,
		},
		{
			name:      "same image after failed update with dry run",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha, DryRun: true},
			images:    &mockImages{},
			functions: &mockFunctions{current: want, status: types.LastUpdateStatusFailed},
		},
		{
			name:      "invalid tag",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: "bad tag"},
			images:    &mockImages{},
			functions: &mockFunctions{},
			wantErr:   ierrors.ErrInvalidImageTag,
		},
		{
			name:      "image not pushed",
			input:     deployInput{FunctionName: "fn", Repository: "judgement-ingest", Tag: sha},
			images:    &mockImages{imageErr: ierrors.ErrImageNotFound},
			functions: &mockFunctions{},
			wantErr:   ierrors.ErrImageNotFound,
		},
	}

	logger := zerolog.New(io.Discard)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deploy(context.Background(), &logger, tt.images, tt.functions, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("deploy() error = %v, want %v", err, tt.wantErr)
				}
				if tt.functions.updated != "" {
					t.Error("function should not be updated on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("deploy() unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("deploy() = %q, want %q", got, want)
			}
			if tt.functions.updated != tt.wantUpdated {
				t.Errorf("updated = %q, want %q", tt.functions.updated, tt.wantUpdated)
			}
			if tt.functions.waited != tt.wantWaited {
				t.Errorf("waited = %v, want %v", tt.functions.waited, tt.wantWaited)
			}
		})
	}
}

func TestDeploy_UpdateError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	functions := &mockFunctions{updateErr: errors.New("conflict")}

	_, err := deploy(context.Background(), &logger, &mockImages{}, functions, deployInput{
		FunctionName: "fn",
		Repository:   "judgement-ingest",
		Tag:          "abc",
	})
	if err == nil {
		t.Fatal("deploy() should return update errors")
	}
	if functions.waited {
		t.Error("should not wait after a failed update")
	}
}

func TestDeploy_WaitError(t *testing.T) {
	const sha = "abc"
	logger := zerolog.New(io.Discard)
	functions := &mockFunctions{
		current: testRepoURI + ":" + sha,
		status:  types.LastUpdateStatusInProgress,
		waitErr: errors.New("update failed"),
	}

	got, err := deploy(context.Background(), &logger, &mockImages{}, functions, deployInput{
		FunctionName: "fn",
		Repository:   "judgement-ingest",
		Tag:          sha,
	})
	if err == nil {
		t.Fatal("deploy() should return wait errors")
	}
	if got != "" {
		t.Errorf("deploy() = %q, want empty on error", got)
	}
	if functions.updated != "" {
		t.Error("in-progress update should be waited on, not reapplied")
	}
}
