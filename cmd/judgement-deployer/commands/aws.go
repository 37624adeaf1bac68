package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
)

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "region",
		Usage:   "AWS region",
		Value:   "us-east-1",
		EnvVars: []string{"AWS_REGION", "AWS_DEFAULT_REGION"},
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func newECRService(cfg aws.Config) *services.ECRService {
	return services.NewECRService(
		ecr.NewFromConfig(cfg),
		sts.NewFromConfig(cfg),
		organizations.NewFromConfig(cfg),
	)
}
