package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveAWSSecretsManager fetches a Secrets Manager secret by name or
// ARN. Credentials and region come from the default AWS chain. Only
// string secrets are usable as config values.
func resolveAWSSecretsManager(ref string) (string, error) {
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS credentials: %w", err)
	}

	sm := secretsmanager.NewFromConfig(awsCfg)
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return "", fmt.Errorf("fetching AWS secret %q: %w", ref, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("AWS secret %q is binary, config values must be strings", ref)
	}
	return *out.SecretString, nil
}
