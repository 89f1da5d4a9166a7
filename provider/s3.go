package provider

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ensure interfaces are implemented
var (
	_ ObjectStore   = (*S3Store)(nil)
	_ UploadAborter = (*S3Store)(nil)
	_ s3API         = (*s3.Client)(nil)
)

// s3API is the subset of the S3 client used by S3Store. It also satisfies
// manager.UploadAPIClient so the same value can back the uploader.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Region       string
	Profile      string
	Endpoint     string
	UsePathStyle bool
	Prefix       string
}

// S3Store writes objects into one S3 bucket.
type S3Store struct {
	client   s3API
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Store creates an S3Store for bucket using the default AWS credential
// chain. A non-empty Endpoint targets an S3-compatible service.
func NewS3Store(ctx context.Context, bucket string, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return newS3Store(client, bucket, opts.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}
}

// buildKey constructs the full S3 key based on the store's prefix
func (p *S3Store) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	// Avoid double slashes
	key := path.Join(p.prefix, subPath)
	return strings.TrimPrefix(key, "/")
}

func (p *S3Store) opErr(op, key string, err error) error {
	return &OpError{Backend: "s3", Op: op, Bucket: p.bucket, Key: key, Err: err}
}

// Put uploads data through the transfer manager.
func (p *S3Store) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	key = p.buildKey(key)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		return p.opErr("put", key, err)
	}
	return nil
}

// NewMultipartUpload starts a multipart upload for key.
func (p *S3Store) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error) {
	key = p.buildKey(key)
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	out, err := p.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, p.opErr("create multipart upload", key, err)
	}
	return &s3Upload{store: p, key: key, id: aws.ToString(out.UploadId)}, nil
}

// AbortUpload aborts the upload session uploadID for key.
func (p *S3Store) AbortUpload(ctx context.Context, key, uploadID string) error {
	return p.abort(ctx, p.buildKey(key), uploadID)
}

func (p *S3Store) abort(ctx context.Context, key, uploadID string) error {
	_, err := p.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(p.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return p.opErr("abort multipart upload", key, err)
	}
	return nil
}

type s3Upload struct {
	store *S3Store
	key   string
	id    string
}

func (u *s3Upload) ID() string { return u.id }

func (u *s3Upload) UploadPart(ctx context.Context, number int, data []byte) (Part, error) {
	out, err := u.store.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.store.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.id),
		PartNumber:    aws.Int32(int32(number)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Part{}, u.store.opErr(fmt.Sprintf("upload part %d", number), u.key, err)
	}
	return Part{Number: number, ETag: aws.ToString(out.ETag), Size: int64(len(data))}, nil
}

func (u *s3Upload) Complete(ctx context.Context, parts []Part) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.Number)),
		})
	}

	_, err := u.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.store.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.id),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return u.store.opErr("complete multipart upload", u.key, err)
	}
	return nil
}

func (u *s3Upload) Abort(ctx context.Context) error {
	return u.store.abort(ctx, u.key, u.id)
}
