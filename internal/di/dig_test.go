package di

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/ingest"
	"github.com/savaki/judgement-ingest/internal/services"
	"go.uber.org/dig"
)

type Database struct {
	Name string
}

type Repository struct {
	DB  *Database
	Env string
}

// offline configures the container to load config from env vars only
func offline(t *testing.T) {
	t.Setenv("DISABLE_SSM", "true")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name: "no providers",
		},
		{
			name: "extra providers",
			opts: []Option{
				WithProviders(
					func() *Database { return &Database{Name: "judgements"} },
					func(db *Database, env string) *Repository { return &Repository{DB: db, Env: env} },
				),
			},
		},
		{
			name: "duplicate provider",
			opts: []Option{
				WithProviders(
					func() *Database { return &Database{} },
					func() *Database { return &Database{} },
				),
			},
			wantErr: true,
		},
		{
			name: "provider clashes with core",
			opts: []Option{
				WithProviders(func() *services.Storage { return nil }),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New("dev", tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && container == nil {
				t.Error("New() returned nil container without error")
			}
		})
	}
}

func TestMustGet(t *testing.T) {
	container, err := New("staging",
		WithProviders(
			func() *Database { return &Database{Name: "judgements"} },
			func(db *Database, env string) *Repository { return &Repository{DB: db, Env: env} },
		),
	)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	repo := MustGet[*Repository](container)
	if repo.DB.Name != "judgements" || repo.Env != "staging" {
		t.Errorf("MustGet() = %+v", repo)
	}

	t.Run("panics when dependency not found", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("MustGet() did not panic")
			}
		}()
		_ = MustGet[*bytes.Buffer](container)
	})

	t.Run("panics when provider fails", func(t *testing.T) {
		container, err := New("dev", WithProviders(func() (*Database, error) {
			return nil, errors.New("provider initialization failed")
		}))
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}
		defer func() {
			if r := recover(); r == nil {
				t.Error("MustGet() did not panic")
			}
		}()
		_ = MustGet[*Database](container)
	})
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	container, err := New("dev", WithLogger(logger))
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	ctx := MustGet[context.Context](container)
	zerolog.Ctx(ctx).Info().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"hello"`)) {
		t.Errorf("context logger should write to the configured logger, got %q", buf.String())
	}
}

func TestNew_EnvConfig(t *testing.T) {
	offline(t)
	t.Setenv("INPUT_BUCKET_NAME", "local-pdfs")
	t.Setenv("HTTP_TIMEOUT", "2s")
	t.Setenv("INGEST_CONCURRENCY", "3")

	container, err := New("dev", WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	if _, ok := MustGet[services.ParameterStore](container).(*services.EnvParameterStore); !ok {
		t.Error("expected env parameter store when SSM is disabled")
	}

	config := MustGet[*services.Config](container)
	if config.InputBucket != "local-pdfs" || config.HTTPTimeout != 2*time.Second || config.Concurrency != 3 {
		t.Errorf("Config = %+v", config)
	}
	if config.TableName != services.DefaultTableName {
		t.Errorf("TableName = %q, want default", config.TableName)
	}

	if metrics := MustGet[*services.Metrics](container); metrics.Enabled() {
		t.Error("metrics should be disabled without a namespace")
	}
	if MustGet[*services.DSAPIClient](container) == nil {
		t.Error("expected DS API client")
	}
}

func TestNew_Processor(t *testing.T) {
	offline(t)

	container, err := New("dev",
		WithLogger(zerolog.Nop()),
		WithProviders(ProvideJudgementDAO, ProvideProcessor),
	)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	if MustGet[*ingest.Processor](container) == nil {
		t.Error("expected processor")
	}
}

func TestContainer_Interface(t *testing.T) {
	var _ Container = (*dig.Container)(nil)
}
