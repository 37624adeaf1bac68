package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/services"
)

// repositoryCreator creates ECR repositories and applies org-wide pull access
type repositoryCreator interface {
	GetOrganizationID(ctx context.Context) (string, error)
	CreateRepository(ctx context.Context, repositoryName string) (*services.RepositoryInfo, error)
	SetRepositoryPolicy(ctx context.Context, repositoryName, organizationID string) error
}

// ECRCreationResult contains information about created ECR repositories
type ECRCreationResult struct {
	Repositories   []*services.RepositoryInfo
	OrganizationID string
}

// createECRRepositories creates ECR repositories with org-wide permissions
func createECRRepositories(ctx context.Context, logger *zerolog.Logger, ecrService repositoryCreator, repositoryNames []string) (*ECRCreationResult, error) {
	if len(repositoryNames) == 0 {
		return &ECRCreationResult{}, nil
	}

	logger.Info().Msgf("Creating %d ECR repositor(ies)...", len(repositoryNames))

	orgID, err := ecrService.GetOrganizationID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to check organization status (will skip org-wide permissions)")
		orgID = ""
	}

	if orgID != "" {
		logger.Info().Msgf("✓ Account is in organization: %s", orgID)
	} else {
		logger.Info().Msg("✓ Account is not in an organization, skipping org-wide permissions")
	}

	var repositories []*services.RepositoryInfo
	for _, name := range repositoryNames {
		repoInfo, err := ecrService.CreateRepository(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository %q: %w", name, err)
		}

		logger.Info().
			Str("name", repoInfo.Name).
			Str("arn", repoInfo.ARN).
			Str("uri", repoInfo.URI).
			Msg("repository ready")

		if orgID != "" {
			if err := ecrService.SetRepositoryPolicy(ctx, name, orgID); err != nil {
				logger.Warn().Err(err).Msgf("Failed to set org-wide policy on %s (repository still created)", name)
			} else {
				logger.Info().Msgf("  ✓ Org-wide read permissions configured on %s", name)
			}
		}

		repositories = append(repositories, repoInfo)
	}

	return &ECRCreationResult{
		Repositories:   repositories,
		OrganizationID: orgID,
	}, nil
}
