package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/services/storage/aws_client"
)

// RawMessageService stores raw message content in object storage, keyed per
// account. Raw bytes are kept verbatim so DSN parsing and re-resolution can
// always run against the original wire form.
type RawMessageService struct {
	client     aws_client.S3Client
	bucketName string
}

type StorageConfig struct {
	BucketName string
}

func NewStorageService(client aws_client.S3Client, config StorageConfig) interfaces.StorageService {
	return &RawMessageService{
		client:     client,
		bucketName: config.BucketName,
	}
}

// RawMessageKey is the canonical object key for a stored message.
func RawMessageKey(userID, emailID string) string {
	return fmt.Sprintf("raw/%s/%s.eml", userID, emailID)
}

func (s *RawMessageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RawMessageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.client.Upload(ctx, s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
}

func (s *RawMessageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RawMessageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.client.Download(ctx, s.bucketName, key)
}

func (s *RawMessageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RawMessageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.client.Delete(ctx, s.bucketName, key)
}
