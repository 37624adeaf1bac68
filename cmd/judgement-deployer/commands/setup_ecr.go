package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
)

func SetupECRCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "setup-ecr",
		Usage: "Create the ECR repository the function image is pushed to",
		Description: `Create ECR repositories with scan-on-push and tag immutability.

Creating a repository that already exists is not an error. If the AWS account
belongs to an organization, org-wide read permissions are configured.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "repository",
				Aliases:  []string{"r"},
				Usage:    "ECR repository name(s) to create (can be specified multiple times)",
				Required: true,
				EnvVars:  []string{"ECR_REPOSITORY"},
			},
			regionFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be created without creating resources",
			},
		},
		Action: func(c *cli.Context) error {
			return setupECRAction(c, logger)
		},
	}
}

func setupECRAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	repositories := c.StringSlice("repository")
	region := c.String("region")

	if c.Bool("dry-run") {
		logger.Info().Msgf("DRY RUN: Would create in %s: %s", region, strings.Join(repositories, ", "))
		logger.Info().Msg("DRY RUN: Would enable scan on push and tag immutability")
		logger.Info().Msg("DRY RUN: Would set org-wide read permissions if the account is in an organization")
		return nil
	}

	cfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return err
	}

	ecrService := newECRService(cfg)
	result, err := createECRRepositories(ctx, logger, ecrService, repositories)
	if err != nil {
		return err
	}

	accountID, err := ecrService.GetAccountID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get account ID")
		accountID = "unknown"
	}

	uris := slicex.Map(result.Repositories, func(r *services.RepositoryInfo) string { return r.URI })

	logger.Info().
		Str("region", region).
		Str("account", accountID).
		Bool("org_wide_read", result.OrganizationID != "").
		Strs("uris", uris).
		Msg("ECR setup complete")

	for _, uri := range uris {
		fmt.Fprintln(c.App.Writer, uri)
	}
	return nil
}
