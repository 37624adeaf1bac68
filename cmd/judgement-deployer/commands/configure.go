package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// configFile is the YAML form of services.Config
type configFile struct {
	InputBucket      string `yaml:"input_bucket,omitempty"`
	OutputBucket     string `yaml:"output_bucket,omitempty"`
	KeyPrefix        string `yaml:"key_prefix,omitempty"`
	TableName        string `yaml:"table_name,omitempty"`
	DSAPIURL         string `yaml:"ds_api_url,omitempty"`
	DSAPIKeySecret   string `yaml:"ds_api_key_secret,omitempty"`
	HTTPTimeout      string `yaml:"http_timeout,omitempty"` // 5s, 1m or a bare number of seconds
	Concurrency      int    `yaml:"concurrency,omitempty"`
	MetricsNamespace string `yaml:"metrics_namespace,omitempty"`
}

func (f configFile) toConfig() (services.Config, error) {
	config := services.Config{
		InputBucket:      f.InputBucket,
		OutputBucket:     f.OutputBucket,
		KeyPrefix:        f.KeyPrefix,
		TableName:        f.TableName,
		DSAPIURL:         f.DSAPIURL,
		DSAPIKeySecret:   f.DSAPIKeySecret,
		Concurrency:      f.Concurrency,
		MetricsNamespace: f.MetricsNamespace,
	}
	if v := strings.TrimSpace(f.HTTPTimeout); v != "" {
		timeout, err := services.ParseTimeout(v)
		if err != nil {
			return services.Config{}, fmt.Errorf("invalid http_timeout %q: %w", v, err)
		}
		config.HTTPTimeout = timeout
	}
	if config.Concurrency < 0 {
		return services.Config{}, fmt.Errorf("invalid concurrency %d", config.Concurrency)
	}
	return config, nil
}

func fromConfig(config services.Config) configFile {
	f := configFile{
		InputBucket:      config.InputBucket,
		OutputBucket:     config.OutputBucket,
		KeyPrefix:        config.KeyPrefix,
		TableName:        config.TableName,
		DSAPIURL:         config.DSAPIURL,
		DSAPIKeySecret:   config.DSAPIKeySecret,
		Concurrency:      config.Concurrency,
		MetricsNamespace: config.MetricsNamespace,
	}
	if config.HTTPTimeout > 0 {
		f.HTTPTimeout = config.HTTPTimeout.String()
	}
	return f
}

// decodeConfig reads a YAML config, rejecting unknown keys
func decodeConfig(r io.Reader) (services.Config, error) {
	var f configFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return services.Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return f.toConfig()
}

func ConfigureCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "Write the ingest function configuration to SSM Parameter Store",
		Description: `Write configuration under /{env}/judgement-ingest/ from a YAML file:

  input_bucket: judgement-pdfs
  output_bucket: judgement-jsons
  key_prefix: judgements
  table_name: judgements-table
  ds_api_url: https://ds.example.com/jobs
  ds_api_key_secret: judgement-ingest/prod/ds-api-key
  http_timeout: 5s
  concurrency: 4
  metrics_namespace: Judgements

Keys that are omitted are left untouched. Use --show to print the effective configuration.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "YAML config file, - for stdin",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"environment"},
				Usage:   "Environment name (dev, staging, prod)",
				Value:   "dev",
				EnvVars: []string{"ENV"},
			},
			regionFlag(),
			&cli.BoolFlag{
				Name:  "show",
				Usage: "Print the effective configuration instead of writing",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Validate the file without writing",
			},
		},
		Action: func(c *cli.Context) error {
			return configureAction(c, logger)
		},
	}
}

func configureAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)
	env := c.String("env")

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}
	store := services.NewSSMParameterStore(ssm.NewFromConfig(cfg), env)

	if c.Bool("show") {
		config, err := store.GetConfig(ctx)
		if err != nil {
			return err
		}
		encoder := yaml.NewEncoder(c.App.Writer)
		defer encoder.Close()
		return encoder.Encode(fromConfig(*config))
	}

	path := c.String("file")
	if path == "" {
		return fmt.Errorf("--file is required unless --show is given")
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		r = f
	}

	config, err := decodeConfig(r)
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		logger.Info().Msgf("DRY RUN: Would write configuration under %s", store.Path())
		encoder := yaml.NewEncoder(c.App.Writer)
		defer encoder.Close()
		return encoder.Encode(fromConfig(config))
	}

	written, err := store.PutConfig(ctx, config)
	if err != nil {
		return err
	}

	logger.Info().
		Str("path", store.Path()).
		Int("parameters", len(written)).
		Msg("configuration written")
	return nil
}
