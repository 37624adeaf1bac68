package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	GitHubOIDCProviderURL = "token.actions.githubusercontent.com"
	GitHubOIDCAudience    = "sts.amazonaws.com"

	// DeployPolicyName is the inline policy attached to the CI principal
	DeployPolicyName = "judgement-ingest-deploy"
)

// IAMAPI is the subset of the IAM client in use
type IAMAPI interface {
	GetOpenIDConnectProvider(ctx context.Context, params *iam.GetOpenIDConnectProviderInput, optFns ...func(*iam.Options)) (*iam.GetOpenIDConnectProviderOutput, error)
	CreateOpenIDConnectProvider(ctx context.Context, params *iam.CreateOpenIDConnectProviderInput, optFns ...func(*iam.Options)) (*iam.CreateOpenIDConnectProviderOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	CreateUser(ctx context.Context, params *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	PutUserPolicy(ctx context.Context, params *iam.PutUserPolicyInput, optFns ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error)
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
}

type IAMService struct {
	client    IAMAPI
	stsClient STSAPI
}

type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

func NewIAMService(client IAMAPI, stsClient STSAPI) *IAMService {
	return &IAMService{
		client:    client,
		stsClient: stsClient,
	}
}

// DeployTarget names the resources CI is allowed to deploy to
type DeployTarget struct {
	Region       string
	AccountID    string
	Repository   string
	FunctionName string
}

// RepositoryARN returns the ECR repository ARN
func (d DeployTarget) RepositoryARN() string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", d.Region, d.AccountID, d.Repository)
}

// FunctionARN returns the Lambda function ARN
func (d DeployTarget) FunctionARN() string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", d.Region, d.AccountID, d.FunctionName)
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Principal map[string]any `json:"Principal,omitempty"`
	Action    any            `json:"Action"`
	Resource  any            `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// DeployPolicy returns the permissions needed to push the image and repoint the function
func DeployPolicy(target DeployTarget) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Sid:      "ECRLogin",
				Effect:   "Allow",
				Action:   []string{"ecr:GetAuthorizationToken"},
				Resource: "*",
			},
			{
				Sid:    "ECRPush",
				Effect: "Allow",
				Action: []string{
					"ecr:BatchCheckLayerAvailability",
					"ecr:BatchGetImage",
					"ecr:CompleteLayerUpload",
					"ecr:DescribeImages",
					"ecr:DescribeRepositories",
					"ecr:GetDownloadUrlForLayer",
					"ecr:InitiateLayerUpload",
					"ecr:PutImage",
					"ecr:UploadLayerPart",
				},
				Resource: target.RepositoryARN(),
			},
			{
				Sid:    "LambdaDeploy",
				Effect: "Allow",
				Action: []string{
					"lambda:GetFunction",
					"lambda:UpdateFunctionCode",
				},
				Resource: target.FunctionARN(),
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal deploy policy: %w", err)
	}
	return string(data), nil
}

// GitHubTrustPolicy allows GitHub Actions runs of owner/repo to assume the role
func GitHubTrustPolicy(providerARN, owner, repo string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:    "Allow",
				Principal: map[string]any{"Federated": providerARN},
				Action:    "sts:AssumeRoleWithWebIdentity",
				Condition: map[string]any{
					"StringEquals": map[string]string{
						GitHubOIDCProviderURL + ":aud": GitHubOIDCAudience,
					},
					"StringLike": map[string]string{
						GitHubOIDCProviderURL + ":sub": fmt.Sprintf("repo:%s/%s:*", owner, repo),
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal trust policy: %w", err)
	}
	return string(data), nil
}

// GetAWSAccountID retrieves the AWS account ID
func (s *IAMService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// GetOrCreateGitHubOIDCProvider ensures GitHub OIDC provider exists and returns its ARN
func (s *IAMService) GetOrCreateGitHubOIDCProvider(ctx context.Context, accountID string) (string, error) {
	providerARN := fmt.Sprintf("arn:aws:iam::%s:oidc-provider/%s", accountID, GitHubOIDCProviderURL)

	_, err := s.client.GetOpenIDConnectProvider(ctx, &iam.GetOpenIDConnectProviderInput{
		OpenIDConnectProviderArn: aws.String(providerARN),
	})
	if err == nil {
		return providerARN, nil
	}
	if errorCode(err) != "NoSuchEntity" {
		return "", fmt.Errorf("failed to check OIDC provider: %w", err)
	}

	_, err = s.client.CreateOpenIDConnectProvider(ctx, &iam.CreateOpenIDConnectProviderInput{
		Url:          aws.String("https://" + GitHubOIDCProviderURL),
		ClientIDList: []string{GitHubOIDCAudience},
		// AWS validates GitHub's certificate itself, the thumbprint is only required by the API
		ThumbprintList: []string{"6938fd4d98bab03faadb97b34396831e3780aea1"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return providerARN, nil
}

// CreateGitHubOIDCRole creates or updates a role GitHub Actions can assume to deploy target
func (s *IAMService) CreateGitHubOIDCRole(ctx context.Context, roleName, owner, repo string, target DeployTarget) (string, error) {
	providerARN, err := s.GetOrCreateGitHubOIDCProvider(ctx, target.AccountID)
	if err != nil {
		return "", fmt.Errorf("failed to get/create OIDC provider: %w", err)
	}

	trustPolicy, err := GitHubTrustPolicy(providerARN, owner, repo)
	if err != nil {
		return "", err
	}

	getResult, err := s.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	switch {
	case err == nil && getResult.Role != nil:
		_, err = s.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyDocument: aws.String(trustPolicy),
		})
		if err != nil {
			return "", fmt.Errorf("failed to update trust policy: %w", err)
		}
	case err == nil || errorCode(err) == "NoSuchEntity":
		_, err = s.client.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(roleName),
			AssumeRolePolicyDocument: aws.String(trustPolicy),
			Description:              aws.String(fmt.Sprintf("GitHub Actions OIDC role for %s/%s", owner, repo)),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create role: %w", err)
		}
	default:
		return "", fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	policy, err := DeployPolicy(target)
	if err != nil {
		return "", err
	}

	// PutRolePolicy replaces any existing policy of the same name
	_, err = s.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(DeployPolicyName),
		PolicyDocument: aws.String(policy),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach/update policy to role: %w", err)
	}

	return fmt.Sprintf("arn:aws:iam::%s:role/%s", target.AccountID, roleName), nil
}

// CreateDeployUser creates a non-console IAM user limited to deploying target
// and returns a fresh access key for the CI secrets
func (s *IAMService) CreateDeployUser(ctx context.Context, username string, target DeployTarget) (*AWSCredentials, error) {
	_, err := s.client.CreateUser(ctx, &iam.CreateUserInput{
		UserName: aws.String(username),
	})
	if err != nil && errorCode(err) != "EntityAlreadyExists" {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	policy, err := DeployPolicy(target)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(username),
		PolicyName:     aws.String(DeployPolicyName),
		PolicyDocument: aws.String(policy),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach policy to user: %w", err)
	}

	return s.CreateAccessKey(ctx, username)
}

// CreateAccessKey creates an access key for an IAM user
func (s *IAMService) CreateAccessKey(ctx context.Context, username string) (*AWSCredentials, error) {
	result, err := s.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(username),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access key: %w", err)
	}

	if result.AccessKey == nil {
		return nil, fmt.Errorf("access key is nil")
	}

	return &AWSCredentials{
		AccessKeyID:     aws.ToString(result.AccessKey.AccessKeyId),
		SecretAccessKey: aws.ToString(result.AccessKey.SecretAccessKey),
	}, nil
}
