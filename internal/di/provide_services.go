package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/dao/judgementdao"
	"github.com/savaki/judgement-ingest/internal/ingest"
	"github.com/savaki/judgement-ingest/internal/services"
)

func ProvideStorage(client *s3.Client) *services.Storage {
	return services.NewStorage(client)
}

func ProvideDownloader(client *http.Client, config *services.Config) *services.Downloader {
	return services.NewDownloader(client, config.HTTPTimeout)
}

func ProvideSecretsManagerService(client *secretsmanager.Client) *services.SecretsManagerService {
	return services.NewSecretsManagerService(client)
}

// ProvideDSAPIClient provides the DS API client, resolving its key from
// Secrets Manager when a secret is configured
func ProvideDSAPIClient(ctx context.Context, client *http.Client, config *services.Config, secrets *services.SecretsManagerService) (*services.DSAPIClient, error) {
	var apiKey string
	if config.DSAPIKeySecret != "" {
		key, err := secrets.GetDSAPIKey(ctx, config.DSAPIKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to load DS API key: %w", err)
		}
		apiKey = key
	}

	zerolog.Ctx(ctx).Info().
		Str("ds_api_url", config.DSAPIURL).
		Bool("has_api_key", apiKey != "").
		Msg("DS API client configured")

	return services.NewDSAPIClient(client, config.DSAPIURL, apiKey, config.HTTPTimeout), nil
}

func ProvideMetrics(client *cloudwatch.Client, config *services.Config, env string) *services.Metrics {
	return services.NewMetrics(client, config.MetricsNamespace, env)
}

func ProvideProcessor(
	config *services.Config,
	downloader *services.Downloader,
	storage *services.Storage,
	dsAPI *services.DSAPIClient,
	dao *judgementdao.DAO,
) *ingest.Processor {
	return ingest.NewProcessor(config, downloader, storage, dsAPI, dao)
}
