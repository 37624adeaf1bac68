package commands

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/services"
	"github.com/urfave/cli/v2"
)

// SetupCICommand returns the command that creates the principal CI deploys with
func SetupCICommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "setup-ci",
		Usage: "Create the IAM principal the CI workflow deploys with",
		Description: `Create an IAM principal allowed to push the function image and update the function.

By default an IAM user is created and a new access key is printed for the
AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY repository secrets. With --oidc a
GitHub Actions OIDC role is created instead and no long-lived key is issued.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Usage:    "GitHub repository in format 'owner/repo'",
				Required: true,
				EnvVars:  []string{"GITHUB_REPOSITORY"},
			},
			&cli.StringFlag{
				Name:     "function-name",
				Aliases:  []string{"f"},
				Usage:    "Lambda function CI may update",
				Required: true,
				EnvVars:  []string{"LAMBDA_FUNCTION_NAME"},
			},
			&cli.StringFlag{
				Name:     "repository",
				Aliases:  []string{"r"},
				Usage:    "ECR repository CI may push to",
				Required: true,
				EnvVars:  []string{"ECR_REPOSITORY"},
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "IAM user or role name (defaults to 'github-{repo}')",
			},
			&cli.BoolFlag{
				Name:  "oidc",
				Usage: "Create a GitHub OIDC role instead of a user with an access key",
			},
			regionFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the deploy policy without creating resources",
			},
		},
		Action: func(c *cli.Context) error {
			return setupCIAction(c, logger)
		},
	}
}

// splitRepo splits owner/repo
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repo format: %q (expected 'owner/repo')", repo)
	}
	return owner, name, nil
}

func setupCIAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(c.Context)

	owner, repo, err := splitRepo(c.String("repo"))
	if err != nil {
		return err
	}

	name := c.String("name")
	if name == "" {
		name = "github-" + repo
	}

	cfg, err := loadAWSConfig(ctx, c.String("region"))
	if err != nil {
		return err
	}

	iamService := services.NewIAMService(iam.NewFromConfig(cfg), sts.NewFromConfig(cfg))
	accountID, err := iamService.GetAWSAccountID(ctx)
	if err != nil {
		return err
	}

	target := services.DeployTarget{
		Region:       cfg.Region,
		AccountID:    accountID,
		Repository:   c.String("repository"),
		FunctionName: c.String("function-name"),
	}

	if c.Bool("dry-run") {
		policy, err := services.DeployPolicy(target)
		if err != nil {
			return err
		}
		logger.Info().Msgf("DRY RUN: Would attach %s to %s", services.DeployPolicyName, name)
		fmt.Fprintln(c.App.Writer, policy)
		return nil
	}

	if c.Bool("oidc") {
		roleARN, err := iamService.CreateGitHubOIDCRole(ctx, name, owner, repo, target)
		if err != nil {
			return err
		}
		logger.Info().
			Str("role_arn", roleARN).
			Str("repo", owner+"/"+repo).
			Msg("GitHub OIDC role ready")
		fmt.Fprintln(c.App.Writer, roleARN)
		return nil
	}

	creds, err := iamService.CreateDeployUser(ctx, name, target)
	if err != nil {
		return err
	}

	logger.Info().
		Str("user", name).
		Str("access_key_id", creds.AccessKeyID).
		Msg("deploy user ready, store the key below as repository secrets")

	fmt.Fprintf(c.App.Writer, "AWS_ACCESS_KEY_ID=%s\n", creds.AccessKeyID)
	fmt.Fprintf(c.App.Writer, "AWS_SECRET_ACCESS_KEY=%s\n", creds.SecretAccessKey)
	fmt.Fprintf(c.App.Writer, "AWS_REGION=%s\n", target.Region)
	fmt.Fprintf(c.App.Writer, "ECR_REPOSITORY=%s\n", target.Repository)
	fmt.Fprintf(c.App.Writer, "LAMBDA_FUNCTION_NAME=%s\n", target.FunctionName)
	return nil
}
