package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"
)

// DefaultUpdateWait bounds how long to wait for a code update to settle
const DefaultUpdateWait = 5 * time.Minute

// LambdaAPI is the subset of the Lambda client in use
type LambdaAPI interface {
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
}

// FunctionInfo is the code pointer of a container image function
type FunctionInfo struct {
	Name             string
	ImageURI         string
	State            string
	LastUpdateStatus string
}

type LambdaService struct {
	client   LambdaAPI
	attempts uint
	delay    time.Duration
}

func NewLambdaService(client LambdaAPI) *LambdaService {
	return &LambdaService{
		client:   client,
		attempts: 6,
		delay:    2 * time.Second,
	}
}

// GetFunction returns the function's current image and update status
func (s *LambdaService) GetFunction(ctx context.Context, functionName string) (*FunctionInfo, error) {
	output, err := s.client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get function %s: %w", functionName, err)
	}

	info := &FunctionInfo{Name: functionName}
	if output.Code != nil {
		info.ImageURI = aws.ToString(output.Code.ImageUri)
	}
	if output.Configuration != nil {
		info.State = string(output.Configuration.State)
		info.LastUpdateStatus = string(output.Configuration.LastUpdateStatus)
	}
	return info, nil
}

// UpdateFunctionImage points the function at imageURI.
// A conflicting in-progress update is retried with backoff.
func (s *LambdaService) UpdateFunctionImage(ctx context.Context, functionName, imageURI string) error {
	logger := zerolog.Ctx(ctx)

	err := retry.Do(
		func() error {
			_, err := s.client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
				FunctionName: aws.String(functionName),
				ImageUri:     aws.String(imageURI),
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errorCode(err) == "ResourceConflictException"
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().
				Err(err).
				Uint("attempt", n+1).
				Str("function", functionName).
				Msg("function update in progress, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to update function code for %s: %w", functionName, err)
	}
	return nil
}

// WaitForUpdate blocks until the last update of the function succeeds
func (s *LambdaService) WaitForUpdate(ctx context.Context, functionName string, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = DefaultUpdateWait
	}

	waiter := lambda.NewFunctionUpdatedV2Waiter(s.client, func(o *lambda.FunctionUpdatedV2WaiterOptions) {
		o.MinDelay = time.Second
	})
	err := waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	}, maxWait)
	if err != nil {
		return fmt.Errorf("function %s did not finish updating: %w", functionName, err)
	}
	return nil
}

// IsUpdateSuccessful reports whether the last update status is Successful
func (f FunctionInfo) IsUpdateSuccessful() bool {
	return f.LastUpdateStatus == string(types.LastUpdateStatusSuccessful)
}

// IsUpdateInProgress reports whether an update is still being applied
func (f FunctionInfo) IsUpdateInProgress() bool {
	return f.LastUpdateStatus == string(types.LastUpdateStatusInProgress)
}
