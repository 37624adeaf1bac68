package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	ierrors "github.com/savaki/judgement-ingest/internal/errors"
)

func TestImageExists(t *testing.T) {
	boom := errors.New("access denied")

	tests := []struct {
		name    string
		tag     string
		images  *mockImages
		want    bool
		wantErr error
	}{
		{
			name:   "pushed",
			tag:    "abc123",
			images: &mockImages{},
			want:   true,
		},
		{
			name:   "not pushed",
			tag:    "abc123",
			images: &mockImages{imageErr: ierrors.ErrImageNotFound},
			want:   false,
		},
		{
			name:    "lookup fails",
			tag:     "abc123",
			images:  &mockImages{imageErr: boom},
			wantErr: boom,
		},
		{
			name:    "invalid tag",
			tag:     "bad tag",
			images:  &mockImages{},
			wantErr: ierrors.ErrInvalidImageTag,
		},
	}

	logger := zerolog.New(io.Discard)
	ctx := logger.WithContext(context.Background())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := imageExists(ctx, tt.images, "judgement-ingest", tt.tag)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("imageExists() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("imageExists() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("imageExists() = %v, want %v", got, tt.want)
			}
		})
	}
}
