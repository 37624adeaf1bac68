// Package di wires the judgement ingest graph: AWS clients, SSM-backed
// configuration, the judgement table, and the services the processor
// depends on. The Lambda main and tests resolve what they need with MustGet.
package di

import (
	"github.com/rs/zerolog"
	"go.uber.org/dig"
)

// Container is the subset of *dig.Container used by callers
type Container interface {
	Invoke(function any, opts ...dig.InvokeOption) error
	Provide(constructor any, opts ...dig.ProvideOption) error
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// MustGet resolves T from the container and panics when it cannot.
// Used at startup, where a missing AWS client or config is fatal anyway.
//
//	processor := di.MustGet[*ingest.Processor](container)
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// New builds the container for env, which selects the /{env}/judgement-ingest
// parameter path. The logger defaults to ProvideLogger; WithProviders adds
// constructors such as ProvideJudgementDAO or the Lambda handler.
func New(env string, opts ...Option) (Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := ProvideLogger()
	if o.logger != nil {
		logger = *o.logger
	}

	container := dig.New()
	values := []any{
		func() string { return env },
		func() zerolog.Logger { return logger },
	}
	if err := provideAll(container, values); err != nil {
		return nil, err
	}
	if err := provideAll(container, core); err != nil {
		return nil, err
	}
	if err := provideAll(container, o.providers); err != nil {
		return nil, err
	}

	return container, nil
}

func provideAll(container *dig.Container, providers []any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}

// core is registered in every container. dig builds lazily, so a client is
// only created when something resolves it. ProvideJudgementDAO and
// ProvideProcessor are added through WithProviders.
var core = []any{
	ProvideContext,
	ProvideAWSConfig,
	ProvideSSMClient,
	ProvideParameterStore,
	ProvideAppConfig,
	ProvideDynamoDB,
	ProvideS3Client,
	ProvideSecretsManagerClient,
	ProvideCloudWatchClient,
	ProvideHTTPClient,
	ProvideStorage,
	ProvideDownloader,
	ProvideSecretsManagerService,
	ProvideDSAPIClient,
	ProvideMetrics,
}
