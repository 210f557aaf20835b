package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/secret"
)

// TestConnection verifies that a storage configuration reaches its bucket.
// It builds a throwaway client and issues HeadBucket, so bad endpoints, bad
// credentials and missing buckets all surface before the config is used by a
// mount.
func TestConnection(ctx context.Context, cfg *models.S3Config, secrets *secret.Box) error {
	secretKey, err := secrets.Decrypt(cfg.EncryptedSecretKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt secret key for config %q: %w", cfg.Name, err)
	}

	client, err := newClient(ctx, cfg, secretKey)
	if err != nil {
		return err
	}

	if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return mapError("/", err)
	}
	return nil
}
