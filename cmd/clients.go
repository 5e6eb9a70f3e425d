package cmd

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/chalkan3/sloth-deploy/pkg/build"
	"github.com/chalkan3/sloth-deploy/pkg/config"
	"github.com/chalkan3/sloth-deploy/pkg/credentials"
	"github.com/chalkan3/sloth-deploy/pkg/identity"
	"github.com/chalkan3/sloth-deploy/pkg/publish"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

// awsClients bundles the service clients a single command run needs.
// All clients share one resolved credential chain and region.
type awsClients struct {
	cloudformation *cloudformation.Client
	ssm            *ssm.Client
	cognito        *cognitoidentityprovider.Client
	s3             *s3.Client
	cloudfront     *cloudfront.Client
	sts            *sts.Client
}

func newAWSClients(ctx context.Context, region string) (*awsClients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &awsClients{
		cloudformation: cloudformation.NewFromConfig(awsCfg),
		ssm:            ssm.NewFromConfig(awsCfg),
		cognito:        cognitoidentityprovider.NewFromConfig(awsCfg),
		s3:             s3.NewFromConfig(awsCfg),
		cloudfront:     cloudfront.NewFromConfig(awsCfg),
		sts:            sts.NewFromConfig(awsCfg),
	}, nil
}

// services are the domain components every command composes from the
// raw AWS clients and the effective configuration
type services struct {
	stacks    *stack.Controller
	creds     *credentials.Manager
	pools     *identity.Client
	publisher *publish.Publisher
	builder   *build.Builder
}

func newServices(clients *awsClients, cfg *config.Config) *services {
	return &services{
		stacks:    stack.NewController(clients.cloudformation, cfg.PollInterval, cfg.StackTimeout),
		creds:     credentials.NewManager(clients.ssm, cfg.CredentialLength),
		pools:     identity.NewClient(clients.cognito, cfg.Project),
		publisher: publish.New(clients.s3, clients.cloudfront, cfg.PollInterval, cfg.StackTimeout),
		builder:   build.New(cfg.FrontendDir, cfg.BuildCommand, cfg.ArtifactDir),
	}
}
