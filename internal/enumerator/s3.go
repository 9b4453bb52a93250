package enumerator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/stream"
)

// ErrTypedRefUnsupported is returned by the s3 engine for requests naming a
// non-default bucket type; S3 has no bucket-type namespace.
var ErrTypedRefUnsupported = errors.New("bucket types are not supported by the s3 engine")

// S3 enumerates a remote S3-compatible endpoint. ListObjectsV2 pages become
// key batches; bucket listing maps onto ListBuckets. Used when a node fronts
// an object store instead of its own keyspace.
type S3 struct {
	client    *s3.Client
	endpoint  string
	batchSize int32
	logger    *logrus.Logger
	jobs      *registry
}

// NewS3 creates an enumeration engine backed by a remote S3 endpoint.
func NewS3(cfg config.S3Config, batchSize int, logger *logrus.Logger) *S3 {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               cfg.Endpoint,
			HostnameImmutable: true,
			SigningRegion:     region,
		}, nil
	})

	awsCfg := aws.Config{
		Region:                      cfg.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		EndpointResolverWithOptions: customResolver,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // path-style URLs for compatibility
	})

	return &S3{
		client:    client,
		endpoint:  cfg.Endpoint,
		batchSize: int32(batchSize),
		logger:    logger,
		jobs:      newRegistry(),
	}
}

// Start begins an asynchronous remote enumeration.
func (e *S3) Start(ctx context.Context, req stream.Request, sink chan<- stream.Msg) (stream.Token, error) {
	if req.Ref.IsTyped() {
		return "", ErrTypedRefUnsupported
	}

	token := stream.NewToken()

	jobCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, req.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}
	e.jobs.add(token, cancel)

	go e.run(jobCtx, newJob(token, sink), req)

	return token, nil
}

// Ack releases the flow control attached to a batch.
func (e *S3) Ack(h *stream.AckHandle) {
	h.Ack()
}

// Cancel requests best-effort termination of a running job.
func (e *S3) Cancel(token stream.Token) {
	e.jobs.cancel(token)
}

func (e *S3) run(ctx context.Context, j *job, req stream.Request) {
	defer e.jobs.remove(j.token)

	var err error
	switch req.Kind {
	case stream.ListKeys:
		err = e.streamKeys(ctx, j, req.Ref.Bucket)
	case stream.ListBuckets:
		err = e.streamBuckets(ctx, j)
	default:
		j.fail(fmt.Sprintf("unsupported request kind %d", req.Kind))
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		e.logger.WithFields(logrus.Fields{
			"endpoint": e.endpoint,
			"token":    string(j.token),
			"reason":   reason,
		}).Debug("S3 enumeration failed")
		j.fail(reason)
		return
	}

	j.finish()
}

func (e *S3) streamKeys(ctx context.Context, j *job, bucket string) error {
	var continuation *string
	for {
		out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			MaxKeys:           aws.Int32(e.batchSize),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		keys := make([]string, 0, len(out.Contents))
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if len(keys) > 0 && !j.emitBatch(ctx, keys) {
			return ctx.Err()
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		continuation = out.NextContinuationToken
	}
}

func (e *S3) streamBuckets(ctx context.Context, j *job) error {
	names, err := e.listBucketNames(ctx)
	if err != nil {
		return err
	}
	if len(names) > 0 && !j.emitBatch(ctx, names) {
		return ctx.Err()
	}
	return nil
}

func (e *S3) listBucketNames(ctx context.Context) ([]string, error) {
	out, err := e.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// CollectBuckets returns the complete bucket name set in one blocking call.
func (e *S3) CollectBuckets(ctx context.Context, bucketType string, timeout time.Duration) ([]string, error) {
	if bucketType != "" && bucketType != buckettype.DefaultType {
		return nil, ErrTypedRefUnsupported
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.listBucketNames(ctx)
}
