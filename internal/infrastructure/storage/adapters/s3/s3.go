package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
)

// DeleteObjects accepts at most this many keys per request
const maxDeleteBatch = 1000

// api is the subset of *s3.Client the adapter uses
type api interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// client implements ports.Storage for AWS S3 and S3-compatible services
type client struct {
	s3Client api
	bucket   string
	region   string
	logger   ports.Logger
	metrics  ports.Metrics
}

// New creates an S3 storage client and makes sure the configured bucket exists
func New(cfg *config.StorageConfig, logger ports.Logger, metrics ports.Metrics) (ports.Storage, error) {
	if cfg.BucketOrPath == "" {
		return nil, fmt.Errorf("invalid S3 configuration: bucket is required")
	}

	awsCfg, err := buildAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	var signer *cargoSigner
	if cfg.Cargo.Endpoint != "" {
		if signer, err = newCargoSigner(cfg.Cargo, logger, metrics); err != nil {
			return nil, fmt.Errorf("invalid cargo configuration: %w", err)
		}
		logger.Info("Signing S3 requests through cargo", "endpoint", cfg.Cargo.Endpoint)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3.ForcePathStyle
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		if signer != nil {
			o.APIOptions = append(o.APIOptions, signer.register)
		}
	})

	c := newClient(s3Client, cfg.BucketOrPath, cfg.S3.Region, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.ensureBucketExists(ctx); err != nil {
		logger.Error("Failed to verify bucket existence", "error", err, "bucket", c.bucket)
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	logger.Info("S3 client initialized successfully",
		"bucket", c.bucket,
		"region", cfg.S3.Region,
		"endpoint", cfg.S3.Endpoint,
		"path_style", cfg.S3.ForcePathStyle)
	return c, nil
}

func newClient(s3Client api, bucket, region string, logger ports.Logger, metrics ports.Metrics) *client {
	return &client{
		s3Client: s3Client,
		bucket:   bucket,
		region:   region,
		logger:   logger,
		metrics:  metrics,
	}
}

func (c *client) bucketOrDefault(bucket string) string {
	if bucket == "" {
		return c.bucket
	}
	return bucket
}

// Put stores an object in S3
func (c *client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	// The SDK needs a seekable body to sign the payload
	buf := &bytes.Buffer{}
	bytesRead, err := io.Copy(buf, reader)
	if err != nil {
		c.metrics.IncrementCounter("s3.put.errors", map[string]string{"error_type": "read_error"})
		return fmt.Errorf("failed to read content: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(bytesRead),
	}
	if metadata.ContentType != "" {
		input.ContentType = aws.String(metadata.ContentType)
	}
	if metadata.ContentEncoding != "" {
		input.ContentEncoding = aws.String(metadata.ContentEncoding)
	}
	if metadata.CacheControl != "" {
		input.CacheControl = aws.String(metadata.CacheControl)
	}
	if len(metadata.UserMetadata) > 0 {
		input.Metadata = metadata.UserMetadata
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		c.logger.Error("Failed to put object", "error", err, "bucket", bucket, "key", key)
		c.metrics.IncrementCounter("s3.put.errors", map[string]string{"error_type": "s3_error"})
		return fmt.Errorf("failed to put object: %w", err)
	}

	duration := time.Since(start)
	c.logger.Info("Object stored",
		"bucket", bucket,
		"key", key,
		"size_bytes", bytesRead,
		"duration_ms", duration.Milliseconds())
	c.metrics.IncrementCounter("s3.put.success", nil)
	c.metrics.RecordHistogram("s3.put.duration_ms", float64(duration.Milliseconds()), nil)
	c.metrics.RecordHistogram("s3.put.size_bytes", float64(bytesRead), nil)
	return nil
}

// Get retrieves an object from S3
func (c *client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, _, err := c.GetWithMetadata(ctx, bucket, key)
	return body, err
}

// GetWithMetadata retrieves an object along with its metadata
func (c *client) GetWithMetadata(ctx context.Context, bucket, key string) (io.ReadCloser, *ports.ObjectMetadata, error) {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			c.metrics.IncrementCounter("s3.get.not_found", nil)
			return nil, nil, ports.ErrObjectNotFound
		}
		c.logger.Error("Failed to get object", "error", err, "bucket", bucket, "key", key)
		c.metrics.IncrementCounter("s3.get.errors", nil)
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	metadata := &ports.ObjectMetadata{
		ContentType:     aws.ToString(result.ContentType),
		ContentLength:   aws.ToInt64(result.ContentLength),
		ContentEncoding: aws.ToString(result.ContentEncoding),
		CacheControl:    aws.ToString(result.CacheControl),
		LastModified:    aws.ToTime(result.LastModified),
		ETag:            aws.ToString(result.ETag),
		UserMetadata:    result.Metadata,
	}

	c.metrics.IncrementCounter("s3.get.success", nil)
	c.metrics.RecordHistogram("s3.get.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	return result.Body, metadata, nil
}

// Delete removes an object from S3. DeleteObject succeeds for a missing key,
// so the key is checked with HeadObject first and a missing one is reported
// as ErrObjectNotFound.
func (c *client) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	exists, err := c.Exists(ctx, bucket, key)
	if err != nil {
		c.logger.Error("Failed to check object before delete", "error", err, "bucket", bucket, "key", key)
		c.metrics.IncrementCounter("s3.delete.errors", nil)
		return err
	}
	if !exists {
		c.metrics.IncrementCounter("s3.delete.not_found", nil)
		return ports.ErrObjectNotFound
	}

	_, err = c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return ports.ErrObjectNotFound
		}
		c.logger.Error("Failed to delete object", "error", err, "bucket", bucket, "key", key)
		c.metrics.IncrementCounter("s3.delete.errors", nil)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	duration := time.Since(start)
	c.logger.Info("Object deleted", "bucket", bucket, "key", key, "duration_ms", duration.Milliseconds())
	c.metrics.IncrementCounter("s3.delete.success", nil)
	c.metrics.RecordHistogram("s3.delete.duration_ms", float64(duration.Milliseconds()), nil)
	return nil
}

// DeleteBatch removes keys with DeleteObjects, 1000 keys per request
func (c *client) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	for i := 0; i < len(keys); i += maxDeleteBatch {
		end := i + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]s3types.ObjectIdentifier, 0, end-i)
		for _, k := range keys[i:end] {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			c.logger.Error("Failed to delete objects", "error", err, "bucket", bucket, "count", len(objects))
			c.metrics.IncrementCounter("s3.delete_batch.errors", nil)
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			c.logger.Error("Some objects were not deleted",
				"bucket", bucket,
				"failed", len(out.Errors),
				"key", aws.ToString(first.Key),
				"code", aws.ToString(first.Code))
			c.metrics.IncrementCounter("s3.delete_batch.errors", nil)
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	duration := time.Since(start)
	c.logger.Info("Objects deleted", "bucket", bucket, "count", len(keys), "duration_ms", duration.Milliseconds())
	c.metrics.IncrementCounter("s3.delete_batch.success", nil)
	c.metrics.RecordHistogram("s3.delete_batch.duration_ms", float64(duration.Milliseconds()), nil)
	return nil
}

// Exists checks if an object exists in S3
func (c *client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = c.bucketOrDefault(bucket)

	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		c.metrics.IncrementCounter("s3.exists.errors", nil)
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// List returns every object under prefix
func (c *client) List(ctx context.Context, bucket, prefix string) ([]ports.ObjectInfo, error) {
	res, err := c.list(ctx, bucket, prefix, "")
	if err != nil {
		return nil, err
	}
	return res.Objects, nil
}

// ListDelimited returns one level below prefix, sub-prefixes grouped
func (c *client) ListDelimited(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	return c.list(ctx, bucket, prefix, delimiter)
}

func (c *client) list(ctx context.Context, bucket, prefix, delimiter string) (*ports.ListResult, error) {
	start := time.Now()
	bucket = c.bucketOrDefault(bucket)

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	result := &ports.ListResult{Objects: []ports.ObjectInfo{}, CommonPrefixes: []string{}}
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	pageCount := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logger.Error("Failed to list objects",
				"error", err,
				"bucket", bucket,
				"prefix", prefix,
				"pages_processed", pageCount)
			c.metrics.IncrementCounter("s3.list.errors", nil)
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			result.Objects = append(result.Objects, ports.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
		for _, cp := range page.CommonPrefixes {
			result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
		}
		pageCount++
	}

	duration := time.Since(start)
	c.metrics.IncrementCounter("s3.list.success", nil)
	c.metrics.RecordHistogram("s3.list.duration_ms", float64(duration.Milliseconds()), nil)
	c.logger.Info("Objects listed",
		"bucket", bucket,
		"prefix", prefix,
		"delimiter", delimiter,
		"count", len(result.Objects),
		"prefixes", len(result.CommonPrefixes),
		"pages", pageCount,
		"duration_ms", duration.Milliseconds())
	return result, nil
}

// CreateBucket creates a new S3 bucket
func (c *client) CreateBucket(ctx context.Context, bucket string) error {
	bucket = c.bucketOrDefault(bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}

	// us-east-1 rejects an explicit location constraint
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.region),
		}
	}

	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		var bae *s3types.BucketAlreadyExists
		var baoyb *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &bae) || errors.As(err, &baoyb) {
			c.logger.Info("Bucket already exists", "bucket", bucket)
			return nil
		}
		c.logger.Error("Failed to create bucket", "error", err, "bucket", bucket)
		c.metrics.IncrementCounter("s3.create_bucket.errors", nil)
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	c.logger.Info("Bucket created", "bucket", bucket)
	c.metrics.IncrementCounter("s3.create_bucket.success", nil)
	return nil
}

func (c *client) ensureBucketExists(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		if isNotFoundError(err) {
			c.logger.Info("Bucket does not exist, attempting to create", "bucket", c.bucket)
			return c.CreateBucket(ctx, c.bucket)
		}
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return nil
}

func buildAWSConfig(storageConfig *config.StorageConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	s3Config := storageConfig.S3

	if s3Config.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(s3Config.Region))
	}

	if s3Config.AccessKeyID != "" && s3Config.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3Config.AccessKeyID,
				s3Config.SecretAccessKey,
				"",
			),
		))
	}

	if storageConfig.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(storageConfig.MaxRetries))
	}

	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{
		Timeout: storageConfig.Timeout,
	}))

	return awsconfig.LoadDefaultConfig(context.Background(), optFns...)
}

// isNotFoundError recognizes the typed SDK errors and, for S3-compatible
// servers that only send a code, the generic API error codes.
func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
