package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/pkg/errors"
)

// S3 limits DeleteObjects to 1000 keys per call.
const s3MaxDeleteBatch = 1000

// S3API is the subset of *s3.Client used by the S3 backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures the S3 compatible backend.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

type s3Store struct {
	client S3API
	bucket string
}

// NewS3Store builds an S3 client from the default AWS credential chain.
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewS3Store(ctx context.Context, opts S3Options) (Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3StoreWithClient(client, opts.Bucket), nil
}

// NewS3StoreWithClient wraps an existing client, mainly for tests.
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewS3StoreWithClient(client S3API, bucket string) Store {
	return &s3Store{client: client, bucket: bucket}
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	if err != nil {
		return classifyS3Error(err, "put "+key)
	}

	return nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err, "get "+key)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(ErrTransient, "get %s: read body: %v", key, err)
	}

	return b, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error(err, "delete "+key)
	}

	return nil
}

func (s *s3Store) DeleteMany(ctx context.Context, keys []string) (map[string]error, error) {
	failed := make(map[string]error)

	for start := 0; start < len(keys); start += s3MaxDeleteBatch {
		end := min(start+s3MaxDeleteBatch, len(keys))
		batch := keys[start:end]

		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			classified := classifyS3Error(err, "delete batch")
			for _, k := range batch {
				failed[k] = classified
			}
			continue
		}

		for _, e := range out.Errors {
			failed[aws.ToString(e.Key)] = errors.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}

	return failed, nil
}

func (s *s3Store) List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	out := make([]ObjectInfo, 0)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error(err, "list "+prefix)
		}

		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			out = append(out, info)
		}

		if maxKeys > 0 && len(out) >= maxKeys {
			break
		}
	}

	// S3 returns UTF-8 binary order already; sorting keeps the contract explicit for compatible stores.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if maxKeys > 0 && len(out) > maxKeys {
		out = out[:maxKeys]
	}

	return out, nil
}

func classifyS3Error(err error, op string) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return errors.Wrapf(ErrNotFound, "%s: %v", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Wrapf(ErrTransient, "%s: %v", op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errors.Wrapf(ErrNotFound, "%s: %v", op, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Wrapf(ErrPermissionDenied, "%s: %v", op, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling":
			return errors.Wrapf(ErrTransient, "%s: %v", op, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return errors.Wrapf(ErrNotFound, "%s: %v", op, err)
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return errors.Wrapf(ErrPermissionDenied, "%s: %v", op, err)
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return errors.Wrapf(ErrTransient, "%s: %v", op, err)
		}
	}

	return errors.Wrap(err, op)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(key, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
