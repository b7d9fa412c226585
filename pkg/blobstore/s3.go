package blobstore

import (
	"bytes"
	"context"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3Store archives original source documents. It is optional: when the AWS
// environment is not configured, FromEnv returns nil and ingestion simply
// skips the archive step.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *logrus.Logger
}

// FromEnv builds the store from S3_BUCKET_NAME, AWS_REGION,
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY. Missing settings disable
// archiving without error.
func FromEnv(ctx context.Context, logger *logrus.Logger) *S3Store {
	bucket := os.Getenv("S3_BUCKET_NAME")
	region := os.Getenv("AWS_REGION")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		logger.Info("S3 archive not configured, source documents will not be archived")
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to load AWS config, source documents will not be archived")
		return nil
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger,
	}
}

// Put uploads content under the given key.
func (s *S3Store) Put(ctx context.Context, key string, content []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s to bucket %s", key, s.bucket)
	}

	s.logger.WithFields(logrus.Fields{"bucket": s.bucket, "key": key}).Info("Archived source document")
	return nil
}
