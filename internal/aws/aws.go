package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
)

const kubernetesTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// LoadAWSConfig loads the default credential chain. An explicit profile wins over
// AWS_PROFILE; no shared profile is selected inside Kubernetes, where credentials
// come from the service account.
func LoadAWSConfig(ctx context.Context, region string, profile string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	if p := resolveProfile(profile, isInKubernetes()); p != "" {
		options = append(options, config.WithSharedConfigProfile(p))
	}
	if region != "" {
		options = append(options, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return aws.Config{}, errors.Wrapf(err, "failed to load AWS config")
	}
	return cfg, nil
}

func resolveProfile(profile string, inKubernetes bool) string {
	if profile != "" {
		return profile
	}
	if inKubernetes {
		return ""
	}
	if env := os.Getenv("AWS_PROFILE"); env != "" {
		return env
	}
	return ""
}

func isInKubernetes() bool {
	_, err := os.Stat(kubernetesTokenPath)
	return err == nil
}

// STSClient is the subset of the STS API used to identify the signing principal.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// GetCallerIdentity returns the ARN of the principal cfg authenticates as.
func GetCallerIdentity(ctx context.Context, cfg aws.Config) (string, error) {
	return callerArn(ctx, sts.NewFromConfig(cfg))
}

func callerArn(ctx context.Context, client STSClient) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get caller identity")
	}
	return aws.ToString(out.Arn), nil
}
