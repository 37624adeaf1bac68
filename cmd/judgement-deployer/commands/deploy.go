package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
)

// imageResolver finds the pushed image for a deploy
type imageResolver interface {
	DescribeRepository(ctx context.Context, repositoryName string) (*services.RepositoryInfo, error)
	DescribeImage(ctx context.Context, repositoryName, tag string) (*services.ImageInfo, error)
}

// functionUpdater repoints the function at a new image
type functionUpdater interface {
	GetFunction(ctx context.Context, functionName string) (*services.FunctionInfo, error)
	UpdateFunctionImage(ctx context.Context, functionName, imageURI string) error
	WaitForUpdate(ctx context.Context, functionName string, maxWait time.Duration) error
}

type deployInput struct {
	FunctionName string
	Repository   string
	Tag          string
	NoWait       bool
	DryRun       bool
	Timeout      time.Duration
}

func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Point the Lambda function at a pushed image",
		Description: `Update the function's code pointer to {registry}/{repository}:{tag}.

The image must already exist in ECR. The command waits for the update to
finish unless --no-wait is given. There is no rollback: a failed update
leaves the function on whatever image the Lambda service settled on.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "function-name",
				Aliases:  []string{"f"},
				Usage:    "Lambda function to update",
				Required: true,
				EnvVars:  []string{"LAMBDA_FUNCTION_NAME"},
			},
			&cli.StringFlag{
				Name:     "repository",
				Aliases:  []string{"r"},
				Usage:    "ECR repository holding the image",
				Required: true,
				EnvVars:  []string{"ECR_REPOSITORY"},
			},
			&cli.StringFlag{
				Name:     "tag",
				Aliases:  []string{"t"},
				Usage:    "Image tag, normally the commit SHA",
				Required: true,
				EnvVars:  []string{"IMAGE_TAG", "GITHUB_SHA"},
			},
			regionFlag(),
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Return as soon as the update is accepted",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait for the update to finish",
				Value: services.DefaultUpdateWait,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Resolve the image without updating the function",
			},
		},
		Action: func(c *cli.Context) error {
			return deployAction(c, logger)
		},
	}
}

func deployAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}

	input := deployInput{
		FunctionName: c.String("function-name"),
		Repository:   c.String("repository"),
		Tag:          c.String("tag"),
		NoWait:       c.Bool("no-wait"),
		DryRun:       c.Bool("dry-run"),
		Timeout:      c.Duration("timeout"),
	}

	lambdaService := services.NewLambdaService(lambda.NewFromConfig(cfg))
	imageURI, err := deploy(ctx, logger, newECRService(cfg), lambdaService, input)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, imageURI)
	return nil
}

// deploy resolves the image and updates the function, returning the deployed image URI
func deploy(ctx context.Context, logger *zerolog.Logger, images imageResolver, functions functionUpdater, input deployInput) (string, error) {
	if err := services.ValidateImageTag(input.Tag); err != nil {
		return "", err
	}

	repo, err := images.DescribeRepository(ctx, input.Repository)
	if err != nil {
		return "", err
	}

	image, err := images.DescribeImage(ctx, input.Repository, input.Tag)
	if err != nil {
		return "", err
	}

	imageURI := services.ImageURI(repo.URI, input.Tag)
	logger.Info().
		Str("image", imageURI).
		Str("digest", image.Digest).
		Str("size", humanize.Bytes(uint64(image.SizeBytes))).
		Msg("resolved image")

	current, err := functions.GetFunction(ctx, input.FunctionName)
	if err != nil {
		return "", err
	}
	// A matching image only counts once its update has settled successfully.
	// A failed update is applied again.
	sameImage := current.ImageURI == imageURI
	switch {
	case sameImage && current.IsUpdateSuccessful():
		logger.Info().
			Str("function", input.FunctionName).
			Msg("function already runs this image")
		return imageURI, nil

	case sameImage && current.IsUpdateInProgress():
		logger.Info().
			Str("function", input.FunctionName).
			Msg("update to this image already in progress")
		if input.DryRun || input.NoWait {
			return imageURI, nil
		}
		if err := waitForDeploy(ctx, logger, functions, input, imageURI, time.Now()); err != nil {
			return "", err
		}
		return imageURI, nil

	case input.DryRun:
		logger.Info().
			Str("function", input.FunctionName).
			Str("from", current.ImageURI).
			Str("to", imageURI).
			Str("last_update_status", current.LastUpdateStatus).
			Msg("DRY RUN: would update function code")
		return imageURI, nil
	}

	started := time.Now()
	if err := functions.UpdateFunctionImage(ctx, input.FunctionName, imageURI); err != nil {
		return "", err
	}
	logger.Info().
		Str("function", input.FunctionName).
		Str("previous", current.ImageURI).
		Str("previous_status", current.LastUpdateStatus).
		Msg("update accepted")

	if input.NoWait {
		return imageURI, nil
	}

	if err := waitForDeploy(ctx, logger, functions, input, imageURI, started); err != nil {
		return "", err
	}
	return imageURI, nil
}

func waitForDeploy(ctx context.Context, logger *zerolog.Logger, functions functionUpdater, input deployInput, imageURI string, started time.Time) error {
	if err := functions.WaitForUpdate(ctx, input.FunctionName, input.Timeout); err != nil {
		return err
	}
	logger.Info().
		Str("function", input.FunctionName).
		Str("image", imageURI).
		Dur("took", time.Since(started)).
		Msg("deployed")
	return nil
}
