package aws

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretsAPI interface {
	BatchGetSecretValue(ctx context.Context, params *secretsmanager.BatchGetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.BatchGetSecretValueOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretStore loads the service's string secrets from Secrets Manager.
type SecretStore struct {
	client secretsAPI
}

func NewSecretStore(cfg sdkaws.Config) *SecretStore {
	return &SecretStore{client: secretsmanager.NewFromConfig(cfg)}
}

// GetSecrets fetches names in one batch call, falling back to one call per
// name when the batch API is refused. The map holds every secret that loaded
// with a non-empty value; the error joins the failures of the others.
func (s *SecretStore) GetSecrets(ctx context.Context, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	if len(names) == 0 {
		return values, nil
	}

	out, err := s.client.BatchGetSecretValue(ctx, &secretsmanager.BatchGetSecretValueInput{SecretIdList: names})
	if err != nil {
		return s.getEach(ctx, names)
	}

	for _, entry := range out.SecretValues {
		if entry.Name != nil && entry.SecretString != nil && *entry.SecretString != "" {
			values[*entry.Name] = *entry.SecretString
		}
	}

	var errs []error
	for _, name := range names {
		if _, ok := values[name]; !ok {
			errs = append(errs, fmt.Errorf("secret %s: %s", name, batchFailure(out, name)))
		}
	}
	return values, errors.Join(errs...)
}

func (s *SecretStore) getEach(ctx context.Context, names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	var errs []error
	for _, name := range names {
		out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("secret %s: %w", name, err))
		case out.SecretString == nil || *out.SecretString == "":
			errs = append(errs, fmt.Errorf("secret %s: no string value", name))
		default:
			values[name] = *out.SecretString
		}
	}
	return values, errors.Join(errs...)
}

func batchFailure(out *secretsmanager.BatchGetSecretValueOutput, name string) string {
	for _, e := range out.Errors {
		if e.SecretId != nil && *e.SecretId == name {
			return sdkaws.ToString(e.ErrorCode) + ": " + sdkaws.ToString(e.Message)
		}
	}
	return "no string value"
}
