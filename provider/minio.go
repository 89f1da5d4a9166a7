package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ ObjectStore   = (*MinioStore)(nil)
	_ UploadAborter = (*MinioStore)(nil)
	_ minioAPI      = (*minio.Core)(nil)
)

// minioAPI is the subset of minio.Core used by MinioStore.
type minioAPI interface {
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	Secure       bool
}

// MinioStore writes objects into one bucket of a MinIO (or other
// S3-compatible) server through the low level minio Core API.
type MinioStore struct {
	core   minioAPI
	bucket string
}

// NewMinioStore connects to the endpoint in opts. No request is made until
// the first write.
func NewMinioStore(bucket string, opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("minio: endpoint is required")
	}
	core, err := minio.NewCore(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: create client: %w", err)
	}
	return &MinioStore{core: core, bucket: bucket}, nil
}

func (m *MinioStore) opErr(op, key string, err error) error {
	return &OpError{Backend: "minio", Op: op, Bucket: m.bucket, Key: key, Err: err}
}

func minioPutOptions(opts PutOptions) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	_, err := m.core.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), "", "", minioPutOptions(opts))
	if err != nil {
		return m.opErr("put", key, err)
	}
	return nil
}

func (m *MinioStore) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error) {
	id, err := m.core.NewMultipartUpload(ctx, m.bucket, key, minioPutOptions(opts))
	if err != nil {
		return nil, m.opErr("create multipart upload", key, err)
	}
	return &minioUpload{store: m, key: key, id: id}, nil
}

func (m *MinioStore) AbortUpload(ctx context.Context, key, uploadID string) error {
	if err := m.core.AbortMultipartUpload(ctx, m.bucket, key, uploadID); err != nil {
		return m.opErr("abort multipart upload", key, err)
	}
	return nil
}

type minioUpload struct {
	store *MinioStore
	key   string
	id    string
}

func (u *minioUpload) ID() string { return u.id }

func (u *minioUpload) UploadPart(ctx context.Context, number int, data []byte) (Part, error) {
	op, err := u.store.core.PutObjectPart(ctx, u.store.bucket, u.key, u.id, number,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, u.store.opErr(fmt.Sprintf("upload part %d", number), u.key, err)
	}
	return Part{Number: number, ETag: op.ETag, Size: int64(len(data))}, nil
}

func (u *minioUpload) Complete(ctx context.Context, parts []Part) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: part.Number, ETag: part.ETag})
	}
	if _, err := u.store.core.CompleteMultipartUpload(ctx, u.store.bucket, u.key, u.id, completed, minio.PutObjectOptions{}); err != nil {
		return u.store.opErr("complete multipart upload", u.key, err)
	}
	return nil
}

func (u *minioUpload) Abort(ctx context.Context) error {
	return u.store.AbortUpload(ctx, u.key, u.id)
}
