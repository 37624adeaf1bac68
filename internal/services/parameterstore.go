package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	// AppName is the SSM path segment under which configuration lives
	AppName = "judgement-ingest"

	DefaultInputBucket  = "judgement-pdfs"
	DefaultOutputBucket = "judgement-jsons"
	DefaultKeyPrefix    = "judgements"
	DefaultTableName    = "judgements-table"
	DefaultDSAPIURL     = "https://jsonplaceholder.typicode.com/posts"
	DefaultHTTPTimeout  = 5 * time.Second
	DefaultConcurrency  = 1
)

// Parameter names relative to /{env}/judgement-ingest/
const (
	paramInputBucket      = "input-bucket"
	paramOutputBucket     = "output-bucket"
	paramKeyPrefix        = "key-prefix"
	paramTableName        = "table-name"
	paramDSAPIURL         = "ds-api-url"
	paramDSAPIKeySecret   = "ds-api-key-secret"
	paramHTTPTimeout      = "http-timeout"
	paramConcurrency      = "concurrency"
	paramMetricsNamespace = "metrics-namespace"
)

// Config holds all application configuration values from Parameter Store
type Config struct {
	InputBucket      string        // Bucket the downloaded PDFs are written to
	OutputBucket     string        // Bucket the DS API writes OCR output to
	KeyPrefix        string        // Key prefix shared by input and output objects
	TableName        string        // DynamoDB table holding judgement records
	DSAPIURL         string        // Endpoint that starts DS (OCR) jobs
	DSAPIKeySecret   string        // Optional Secrets Manager id holding the DS API key
	HTTPTimeout      time.Duration // Per-request timeout for downloads and DS API calls
	Concurrency      int           // Max SQS records processed at once
	MetricsNamespace string        // CloudWatch namespace, empty disables metrics
}

// WithDefaults fills unset fields with their default values
func (c Config) WithDefaults() Config {
	if c.InputBucket == "" {
		c.InputBucket = DefaultInputBucket
	}
	if c.OutputBucket == "" {
		c.OutputBucket = DefaultOutputBucket
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.DSAPIURL == "" {
		c.DSAPIURL = DefaultDSAPIURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// values returns the config as parameter name/value pairs, omitting empty values
func (c Config) values() map[string]string {
	values := map[string]string{
		paramInputBucket:      c.InputBucket,
		paramOutputBucket:     c.OutputBucket,
		paramKeyPrefix:        c.KeyPrefix,
		paramTableName:        c.TableName,
		paramDSAPIURL:         c.DSAPIURL,
		paramDSAPIKeySecret:   c.DSAPIKeySecret,
		paramMetricsNamespace: c.MetricsNamespace,
	}
	if c.HTTPTimeout > 0 {
		values[paramHTTPTimeout] = c.HTTPTimeout.String()
	}
	if c.Concurrency > 0 {
		values[paramConcurrency] = strconv.Itoa(c.Concurrency)
	}
	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	return values
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of the SSM client used by SSMParameterStore
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// Path returns the SSM path prefix for the environment
func (s *SSMParameterStore) Path() string {
	return ConfigPath(s.env)
}

// ConfigPath returns the SSM path prefix holding configuration for env
func ConfigPath(env string) string {
	return fmt.Sprintf("/%s/%s", env, AppName)
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := s.Path()

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	lookup := func(name string) string {
		return params[path+"/"+name]
	}

	config, err := parseConfig(lookup)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// PutConfig writes every non-empty config value under the environment's path
func (s *SSMParameterStore) PutConfig(ctx context.Context, config Config) ([]string, error) {
	var written []string
	for name, value := range config.values() {
		fullName := s.Path() + "/" + name
		_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
			Name:        aws.String(fullName),
			Value:       aws.String(value),
			Type:        types.ParameterTypeString,
			Overwrite:   aws.Bool(true),
			Description: aws.String(fmt.Sprintf("%s %s for %s", AppName, name, s.env)),
		})
		if err != nil {
			return written, fmt.Errorf("failed to put parameter %s: %w", fullName, err)
		}
		written = append(written, fullName)

		s.mu.Lock()
		s.cache[fullName] = value
		s.mu.Unlock()
	}
	return written, nil
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// envNames maps parameter names to environment variables
var envNames = map[string]string{
	paramInputBucket:      "INPUT_BUCKET_NAME",
	paramOutputBucket:     "OUTPUT_BUCKET_NAME",
	paramKeyPrefix:        "KEY_PREFIX",
	paramTableName:        "TABLE_NAME",
	paramDSAPIURL:         "DS_API_URL",
	paramDSAPIKeySecret:   "DS_API_KEY_SECRET",
	paramHTTPTimeout:      "HTTP_TIMEOUT",
	paramConcurrency:      "INGEST_CONCURRENCY",
	paramMetricsNamespace: "METRICS_NAMESPACE",
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return parseConfig(func(name string) string {
		return os.Getenv(envNames[name])
	})
}

func parseConfig(lookup func(name string) string) (*Config, error) {
	config := Config{
		InputBucket:      lookup(paramInputBucket),
		OutputBucket:     lookup(paramOutputBucket),
		KeyPrefix:        lookup(paramKeyPrefix),
		TableName:        lookup(paramTableName),
		DSAPIURL:         lookup(paramDSAPIURL),
		DSAPIKeySecret:   lookup(paramDSAPIKeySecret),
		MetricsNamespace: lookup(paramMetricsNamespace),
	}

	if v := strings.TrimSpace(lookup(paramHTTPTimeout)); v != "" {
		timeout, err := ParseTimeout(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", paramHTTPTimeout, v, err)
		}
		config.HTTPTimeout = timeout
	}

	if v := strings.TrimSpace(lookup(paramConcurrency)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", paramConcurrency, v, err)
		}
		config.Concurrency = n
	}

	config = config.WithDefaults()
	return &config, nil
}

// ParseTimeout accepts Go durations (5s, 1m) or a bare number of seconds
func ParseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
