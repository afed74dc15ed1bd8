package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const uriScheme = "s3://"

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Client reads source documents from S3-compatible storage (e.g., RustFS)
type S3Client struct {
	client *s3.Client
}

// ObjectLocation identifies an object or a key prefix inside a bucket.
type ObjectLocation struct {
	Bucket string
	Key    string
}

// IsPrefix reports whether the location names a folder rather than one object.
func (l ObjectLocation) IsPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

func (l ObjectLocation) String() string {
	return uriScheme + l.Bucket + "/" + l.Key
}

// ObjectMetadata contains metadata about an S3 object
type ObjectMetadata struct {
	Key           string
	ContentLength int64
	ContentType   string
	ETag          string
}

// IsS3URI reports whether source uses the s3:// scheme.
func IsS3URI(source string) bool {
	return strings.HasPrefix(source, uriScheme)
}

// ParseS3URI splits s3://bucket/key into its parts. A missing key or a key
// ending in "/" addresses a prefix.
func ParseS3URI(uri string) (ObjectLocation, error) {
	if !IsS3URI(uri) {
		return ObjectLocation{}, fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("s3 uri %q has no bucket", uri)
	}
	return ObjectLocation{Bucket: bucket, Key: key}, nil
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client}, nil
}

// GetObject opens an object for reading. The caller closes the body.
func (c *S3Client) GetObject(ctx context.Context, loc ObjectLocation) (io.ReadCloser, *ObjectMetadata, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object %s: %w", loc, err)
	}

	return output.Body, &ObjectMetadata{
		Key:           loc.Key,
		ContentLength: aws.ToInt64(output.ContentLength),
		ContentType:   aws.ToString(output.ContentType),
		ETag:          aws.ToString(output.ETag),
	}, nil
}

// HeadObject checks if an object exists and returns its metadata
func (c *S3Client) HeadObject(ctx context.Context, loc ObjectLocation) (*ObjectMetadata, error) {
	output, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	return &ObjectMetadata{
		Key:           loc.Key,
		ContentLength: aws.ToInt64(output.ContentLength),
		ContentType:   aws.ToString(output.ContentType),
		ETag:          aws.ToString(output.ETag),
	}, nil
}

// ListObjects returns every object under the location's prefix, skipping
// folder placeholder keys.
func (c *S3Client) ListObjects(ctx context.Context, loc ObjectLocation) ([]ObjectMetadata, error) {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(loc.Key),
	})

	var objects []ObjectMetadata
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", loc, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, ObjectMetadata{
				Key:           key,
				ContentLength: aws.ToInt64(obj.Size),
				ETag:          aws.ToString(obj.ETag),
			})
		}
	}
	return objects, nil
}

// PutObject uploads body under loc.
func (c *S3Client) PutObject(ctx context.Context, loc ObjectLocation, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", loc, err)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
