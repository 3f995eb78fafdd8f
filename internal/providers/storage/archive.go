package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores delivered documents.
type Archiver interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Enabled() bool
}

type NoOpArchiver struct{}

func (NoOpArchiver) Put(ctx context.Context, key string, contentType string, data []byte) error {
	return nil
}

func (NoOpArchiver) Enabled() bool { return false }

// ObjectPutter is the part of the S3 client used by the archiver.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archiver) Enabled() bool { return true }

func (a *S3Archiver) Put(ctx context.Context, key string, contentType string, data []byte) error {
	objectKey := path.Join(a.prefix, key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", objectKey, a.bucket, err)
	}
	return nil
}

// BatchKey is the object key of one document delivered in a batch.
func BatchKey(batchID, fileName string) string {
	return path.Join("batches", batchID, fileName)
}
