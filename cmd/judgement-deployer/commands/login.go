package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func LoginCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Print ECR credentials for docker login",
		Description: `Print the ECR password on stdout so it can be piped to docker:

  judgement-deployer login | docker login --username AWS --password-stdin $(judgement-deployer login --registry)`,
		Flags: []cli.Flag{
			regionFlag(),
			&cli.BoolFlag{
				Name:  "registry",
				Usage: "Print the registry host instead of the password",
			},
		},
		Action: func(c *cli.Context) error {
			return loginAction(c, logger)
		},
	}
}

func loginAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}

	creds, err := newECRService(cfg).GetLoginCredentials(ctx)
	if err != nil {
		return err
	}

	if c.Bool("registry") {
		fmt.Fprintln(c.App.Writer, creds.Registry)
		return nil
	}

	logger.Info().
		Str("registry", creds.Registry).
		Str("username", creds.Username).
		Msg("issued ECR credentials")
	fmt.Fprintln(c.App.Writer, creds.Password)
	return nil
}
