package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	ierrors "github.com/savaki/judgement-ingest/internal/errors"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
)

// imageFinder looks up a tagged image
type imageFinder interface {
	DescribeImage(ctx context.Context, repositoryName, tag string) (*services.ImageInfo, error)
}

func ImageExistsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "image-exists",
		Usage: "Print true when the tag is already in ECR, false otherwise",
		Description: `Repositories are created with immutable tags, so a tag can be pushed once.
CI uses this to skip the build and push on a rerun:

  if [ "$(judgement-deployer image-exists)" = "false" ]; then docker push ...; fi`,
		Flags: []cli.Flag{
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
		},
		Action: func(c *cli.Context) error {
			return imageExistsAction(c, logger)
		},
	}
}

func imageExistsAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}

	exists, err := imageExists(ctx, newECRService(cfg), c.String("repository"), c.String("tag"))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, exists)
	return nil
}

// imageExists reports whether repository:tag has been pushed.
// Any lookup failure other than a missing image is returned.
func imageExists(ctx context.Context, images imageFinder, repository, tag string) (bool, error) {
	if err := services.ValidateImageTag(tag); err != nil {
		return false, err
	}

	logger := zerolog.Ctx(ctx)
	image, err := images.DescribeImage(ctx, repository, tag)
	if errors.Is(err, ierrors.ErrImageNotFound) {
		logger.Info().
			Str("repository", repository).
			Str("tag", tag).
			Msg("image not pushed yet")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger.Info().
		Str("repository", repository).
		Str("tag", tag).
		Str("digest", image.Digest).
		Msg("image already pushed")
	return true, nil
}
