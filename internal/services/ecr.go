package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/savaki/judgement-ingest/internal/errors"
)

// imageTagPattern is the tag grammar ECR accepts
var imageTagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// ECRAPI is the subset of the ECR client in use
type ECRAPI interface {
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	SetRepositoryPolicy(ctx context.Context, params *ecr.SetRepositoryPolicyInput, optFns ...func(*ecr.Options)) (*ecr.SetRepositoryPolicyOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// STSAPI is the subset of the STS client in use
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// OrganizationsAPI is the subset of the Organizations client in use
type OrganizationsAPI interface {
	DescribeOrganization(ctx context.Context, params *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error)
}

type ECRService struct {
	client    ECRAPI
	stsClient STSAPI
	orgClient OrganizationsAPI
}

func NewECRService(client ECRAPI, stsClient STSAPI, orgClient OrganizationsAPI) *ECRService {
	return &ECRService{
		client:    client,
		stsClient: stsClient,
		orgClient: orgClient,
	}
}

type RepositoryInfo struct {
	Name string
	ARN  string
	URI  string
}

// Registry returns the registry host portion of the repository URI
func (r RepositoryInfo) Registry() string {
	registry, _, _ := strings.Cut(r.URI, "/")
	return registry
}

// ImageInfo describes a pushed image
type ImageInfo struct {
	Tag       string
	Digest    string
	SizeBytes int64
}

// Credentials holds the docker login for an ECR registry
type Credentials struct {
	Username string
	Password string
	Registry string // proxy endpoint host, no scheme
}

// ValidateImageTag reports ErrInvalidImageTag when tag is not a valid ECR tag
func ValidateImageTag(tag string) error {
	if !imageTagPattern.MatchString(tag) {
		return fmt.Errorf("%w: %q", errors.ErrInvalidImageTag, tag)
	}
	return nil
}

// ImageURI joins a repository URI and tag
func ImageURI(repositoryURI, tag string) string {
	return repositoryURI + ":" + tag
}

// errorCode returns the AWS error code, or "" for non-API errors
func errorCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func toRepositoryInfo(repo *types.Repository) *RepositoryInfo {
	return &RepositoryInfo{
		Name: aws.ToString(repo.RepositoryName),
		ARN:  aws.ToString(repo.RepositoryArn),
		URI:  aws.ToString(repo.RepositoryUri),
	}
}

// CreateRepository creates an ECR repository with scan-on-push enabled.
// An existing repository is returned as is.
func (s *ECRService) CreateRepository(ctx context.Context, repositoryName string) (*RepositoryInfo, error) {
	input := &ecr.CreateRepositoryInput{
		RepositoryName:     aws.String(repositoryName),
		ImageTagMutability: types.ImageTagMutabilityImmutable,
		ImageScanningConfiguration: &types.ImageScanningConfiguration{
			ScanOnPush: true,
		},
		Tags: []types.Tag{
			{
				Key:   aws.String("ManagedBy"),
				Value: aws.String(AppName),
			},
		},
	}

	output, err := s.client.CreateRepository(ctx, input)
	if err != nil {
		if errorCode(err) == "RepositoryAlreadyExistsException" {
			return s.DescribeRepository(ctx, repositoryName)
		}
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	return toRepositoryInfo(output.Repository), nil
}

// DescribeRepository looks up an existing repository
func (s *ECRService) DescribeRepository(ctx context.Context, repositoryName string) (*RepositoryInfo, error) {
	output, err := s.client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{repositoryName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe repository %s: %w", repositoryName, err)
	}
	if len(output.Repositories) == 0 {
		return nil, fmt.Errorf("repository %s not found", repositoryName)
	}
	return toRepositoryInfo(&output.Repositories[0]), nil
}

// DescribeImage returns the image tagged tag, or ErrImageNotFound
func (s *ECRService) DescribeImage(ctx context.Context, repositoryName, tag string) (*ImageInfo, error) {
	output, err := s.client.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repositoryName),
		ImageIds:       []types.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		if errorCode(err) == "ImageNotFoundException" {
			return nil, fmt.Errorf("%w: %s:%s", errors.ErrImageNotFound, repositoryName, tag)
		}
		return nil, fmt.Errorf("failed to describe image %s:%s: %w", repositoryName, tag, err)
	}
	if len(output.ImageDetails) == 0 {
		return nil, fmt.Errorf("%w: %s:%s", errors.ErrImageNotFound, repositoryName, tag)
	}

	detail := output.ImageDetails[0]
	return &ImageInfo{
		Tag:       tag,
		Digest:    aws.ToString(detail.ImageDigest),
		SizeBytes: aws.ToInt64(detail.ImageSizeInBytes),
	}, nil
}

// GetLoginCredentials decodes the ECR authorization token into docker credentials
func (s *ECRService) GetLoginCredentials(ctx context.Context) (*Credentials, error) {
	output, err := s.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization token: %w", err)
	}
	if len(output.AuthorizationData) == 0 {
		return nil, fmt.Errorf("no authorization data returned")
	}

	data := output.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return nil, fmt.Errorf("failed to decode authorization token: %w", err)
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, fmt.Errorf("malformed authorization token")
	}

	registry := aws.ToString(data.ProxyEndpoint)
	registry = strings.TrimPrefix(registry, "https://")
	registry = strings.TrimPrefix(registry, "http://")

	return &Credentials{
		Username: username,
		Password: password,
		Registry: registry,
	}, nil
}

// GetOrganizationID retrieves the AWS Organization ID if the account belongs to one
func (s *ECRService) GetOrganizationID(ctx context.Context) (string, error) {
	output, err := s.orgClient.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	if err != nil {
		// Not in an organization or no permissions
		switch errorCode(err) {
		case "AWSOrganizationsNotInUseException", "AccessDeniedException":
			return "", nil
		}
		return "", fmt.Errorf("failed to describe organization: %w", err)
	}

	return aws.ToString(output.Organization.Id), nil
}

// SetRepositoryPolicy sets an organization-wide read policy on the repository
func (s *ECRService) SetRepositoryPolicy(ctx context.Context, repositoryName, organizationID string) error {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Sid":    "OrganizationAccess",
				"Effect": "Allow",
				"Principal": map[string]interface{}{
					"AWS": "*",
				},
				"Action": []string{
					"ecr:GetDownloadUrlForLayer",
					"ecr:BatchGetImage",
					"ecr:BatchCheckLayerAvailability",
				},
				"Condition": map[string]interface{}{
					"StringEquals": map[string]interface{}{
						"aws:PrincipalOrgID": organizationID,
					},
				},
			},
			{
				"Sid":    "LambdaECRImageRetrievalPolicy",
				"Effect": "Allow",
				"Principal": map[string]interface{}{
					"Service": "lambda.amazonaws.com",
				},
				"Action": []string{
					"ecr:BatchGetImage",
					"ecr:GetDownloadUrlForLayer",
				},
			},
		},
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	_, err = s.client.SetRepositoryPolicy(ctx, &ecr.SetRepositoryPolicyInput{
		RepositoryName: aws.String(repositoryName),
		PolicyText:     aws.String(string(policyJSON)),
	})
	if err != nil {
		return fmt.Errorf("failed to set repository policy: %w", err)
	}

	return nil
}

// GetAccountID retrieves the AWS account ID
func (s *ECRService) GetAccountID(ctx context.Context) (string, error) {
	output, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return aws.ToString(output.Account), nil
}
