package main

import (
	"context"
	"os"

	"github.com/savaki/judgement-ingest/cmd/judgement-deployer/commands"
	"github.com/savaki/judgement-ingest/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "judgement-deployer",
		Usage: "Deploy and operate the judgement ingest function",
		Description: `Release tooling for the judgement ingest Lambda.

This tool provides commands for:
  - Repointing the function at a pushed container image
  - Logging in to ECR and creating the image repository
  - Creating the CI principal and writing runtime configuration
  - Enqueueing judgement links for ingestion`,
		Commands: []*cli.Command{
			commands.DeployCommand(&logger),
			commands.LoginCommand(&logger),
			commands.ImageExistsCommand(&logger),
			commands.SetupECRCommand(&logger),
			commands.SetupCICommand(&logger),
			commands.ConfigureCommand(&logger),
			commands.EnqueueCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
