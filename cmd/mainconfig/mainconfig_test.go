package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

func TestLoadAWSConfigRoutesLocalServices(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, awsCfg.EndpointResolverWithOptions)

	ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(sqs.ServiceID, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", ep.URL)

	ep, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint(s3.ServiceID, "us-east-1")
	require.NoError(t, err)
	assert.True(t, ep.HostnameImmutable)

	_, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint("Lambda", "us-east-1")
	assert.Error(t, err)
}

func TestOptionalAWSSkipsMemoryMode(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, UseMemoryStore: true}
	awsCfg, err := OptionalAWS(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, awsCfg)
}
