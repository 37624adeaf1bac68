package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client in use
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
}

func NewSecretsManagerService(client SecretsManagerAPI) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
	}
}

// DSAPIKeySecret is the JSON form of the DS API key secret
type DSAPIKeySecret struct {
	APIKey string `json:"api_key"`
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}

// GetDSAPIKey retrieves the DS API key.
// The secret may hold the bare key or {"api_key": "..."}.
func (s *SecretsManagerService) GetDSAPIKey(ctx context.Context, secretPath string) (string, error) {
	value, err := s.GetSecret(ctx, secretPath)
	if err != nil {
		return "", err
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") {
		if value == "" {
			return "", fmt.Errorf("secret %s is empty", secretPath)
		}
		return value, nil
	}

	var secret DSAPIKeySecret
	if err := json.Unmarshal([]byte(value), &secret); err != nil {
		return "", fmt.Errorf("failed to unmarshal DS API key secret: %w", err)
	}

	if secret.APIKey == "" {
		return "", fmt.Errorf("api_key field is empty in secret %s", secretPath)
	}

	return secret.APIKey, nil
}
