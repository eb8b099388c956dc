package config

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// FetchSecret reads a secret version from GCP Secret Manager. A bare
// "projects/<p>/secrets/<name>" resource resolves to its latest version.
func FetchSecret(ctx context.Context, resource string) (string, error) {
	name := SecretVersionName(resource)
	if name == "" {
		return "", fmt.Errorf("empty secret resource")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return string(result.GetPayload().GetData()), nil
}

// SecretVersionName normalises resource into a version resource name.
func SecretVersionName(resource string) string {
	name := strings.Trim(strings.TrimSpace(resource), "/")
	if name == "" {
		return ""
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}
	return name
}
