package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "hirexp-auth/internal/config"
)

const presignExpiry = 15 * time.Minute

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads audit exports and hands out short-lived download links.
type S3Archive struct {
	client     objectPutter
	presigner  *s3.PresignClient
	BucketName string
}

func NewS3Archive(ctx context.Context, cfg appconfig.S3Config) (*S3Archive, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Archive{
		client:     s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		BucketName: cfg.Bucket,
	}, nil
}

func (a *S3Archive) Store(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	request, err := a.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(a.BucketName),
			Key:    aws.String(key),
		},
		func(opts *s3.PresignOptions) {
			opts.Expires = presignExpiry
		},
	)
	if err != nil {
		return "", err
	}

	return request.URL, nil
}
