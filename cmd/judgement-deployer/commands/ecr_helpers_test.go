package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/services"
)

type mockRepositoryCreator struct {
	orgID     string
	orgErr    error
	createErr error
	policies  []string
}

func (m *mockRepositoryCreator) GetOrganizationID(ctx context.Context) (string, error) {
	return m.orgID, m.orgErr
}

func (m *mockRepositoryCreator) CreateRepository(ctx context.Context, repositoryName string) (*services.RepositoryInfo, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &services.RepositoryInfo{Name: repositoryName, URI: "registry/" + repositoryName}, nil
}

func (m *mockRepositoryCreator) SetRepositoryPolicy(ctx context.Context, repositoryName, organizationID string) error {
	m.policies = append(m.policies, repositoryName+"@"+organizationID)
	return nil
}

func TestCreateECRRepositories(t *testing.T) {
	logger := zerolog.New(io.Discard)

	tests := []struct {
		name         string
		creator      *mockRepositoryCreator
		repos        []string
		wantRepos    int
		wantPolicies int
		wantErr      bool
	}{
		{
			name:      "no repositories",
			creator:   &mockRepositoryCreator{},
			wantRepos: 0,
		},
		{
			name:         "organization member",
			creator:      &mockRepositoryCreator{orgID: "o-abc"},
			repos:        []string{"judgement-ingest", "judgement-ingest-staging"},
			wantRepos:    2,
			wantPolicies: 2,
		},
		{
			name:      "organization lookup fails",
			creator:   &mockRepositoryCreator{orgErr: errors.New("denied")},
			repos:     []string{"judgement-ingest"},
			wantRepos: 1,
		},
		{
			name:    "create fails",
			creator: &mockRepositoryCreator{createErr: errors.New("limit exceeded")},
			repos:   []string{"judgement-ingest"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := createECRRepositories(context.Background(), &logger, tt.creator, tt.repos)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createECRRepositories() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(result.Repositories) != tt.wantRepos {
				t.Errorf("repositories = %d, want %d", len(result.Repositories), tt.wantRepos)
			}
			if len(tt.creator.policies) != tt.wantPolicies {
				t.Errorf("policies = %v, want %d", tt.creator.policies, tt.wantPolicies)
			}
		})
	}
}
