package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const ndjsonContentType = "application/x-ndjson"

// s3API is the slice of the S3 client the destination uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Destination keeps the studio export as a single object in an
// S3-compatible bucket.
type S3Destination struct {
	client s3API
	bucket string
	key    string
}

var (
	_ Destination = (*S3Destination)(nil)
	_ Snapshot    = (*S3Destination)(nil)
)

// NewS3Destination loads the default AWS credential chain for region. A
// non-empty endpoint switches to path-style addressing for MinIO and other
// S3-compatible stores.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 destination needs a bucket and key")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Destination(client, bucket, key), nil
}

func newS3Destination(client s3API, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key}
}

// Write replaces the export object with data.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ndjsonContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return nil
}

// Fetch downloads the last export written to the bucket.
func (d *S3Destination) Fetch(ctx context.Context) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get s3://%s/%s: %w", d.bucket, d.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return data, nil
}

func (d *S3Destination) String() string {
	return "s3://" + d.bucket + "/" + d.key
}
