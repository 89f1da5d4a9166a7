package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

var (
	_ ObjectStore   = (*OSSStore)(nil)
	_ UploadAborter = (*OSSStore)(nil)
	_ ossBucket     = (*oss.Bucket)(nil)
)

// ossBucket is the subset of oss.Bucket used by OSSStore.
type ossBucket interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
	InitiateMultipartUpload(objectKey string, options ...oss.Option) (oss.InitiateMultipartUploadResult, error)
	UploadPart(imur oss.InitiateMultipartUploadResult, reader io.Reader, partSize int64, partNumber int, options ...oss.Option) (oss.UploadPart, error)
	CompleteMultipartUpload(imur oss.InitiateMultipartUploadResult, parts []oss.UploadPart, options ...oss.Option) (oss.CompleteMultipartUploadResult, error)
	AbortMultipartUpload(imur oss.InitiateMultipartUploadResult, options ...oss.Option) error
}

// OSSOptions configures an OSSStore.
type OSSOptions struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
	StorageClass    string
}

// OSSStore writes objects into one Alibaba Cloud OSS bucket.
type OSSStore struct {
	bucket       ossBucket
	name         string
	storageClass string
}

// NewOSSStore creates an OSSStore for bucket.
func NewOSSStore(bucket string, opts OSSOptions) (*OSSStore, error) {
	var clientOpts []oss.ClientOption
	if opts.SecurityToken != "" {
		clientOpts = append(clientOpts, oss.SecurityToken(opts.SecurityToken))
	}
	client, err := oss.New(opts.Endpoint, opts.AccessKeyID, opts.AccessKeySecret, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("oss: create client: %w", err)
	}
	b, err := client.Bucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("oss: open bucket %s: %w", bucket, err)
	}
	return &OSSStore{bucket: b, name: bucket, storageClass: opts.StorageClass}, nil
}

func (s *OSSStore) opErr(op, key string, err error) error {
	return &OpError{Backend: "oss", Op: op, Bucket: s.name, Key: key, Err: err}
}

func (s *OSSStore) options(opts PutOptions) []oss.Option {
	var out []oss.Option
	if opts.ContentType != "" {
		out = append(out, oss.ContentType(opts.ContentType))
	}
	for k, v := range opts.Metadata {
		out = append(out, oss.Meta(k, v))
	}
	if s.storageClass != "" {
		out = append(out, oss.ObjectStorageClass(oss.StorageClassType(s.storageClass)))
	}
	return out
}

// ossCall runs fn, a request the SDK can not cancel, and stops waiting for
// it once ctx is done. The request itself keeps running to completion, so fn
// must not share buffers the caller reuses.
func ossCall[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *OSSStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	_, err := ossCall(ctx, func() (struct{}, error) {
		return struct{}{}, s.bucket.PutObject(key, bytes.NewReader(data), s.options(opts)...)
	})
	if err != nil {
		return s.opErr("put", key, err)
	}
	return nil
}

func (s *OSSStore) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error) {
	imur, err := ossCall(ctx, func() (oss.InitiateMultipartUploadResult, error) {
		return s.bucket.InitiateMultipartUpload(key, s.options(opts)...)
	})
	if err != nil {
		return nil, s.opErr("initiate multipart upload", key, err)
	}
	return &ossUpload{store: s, imur: imur}, nil
}

func (s *OSSStore) AbortUpload(ctx context.Context, key, uploadID string) error {
	imur := oss.InitiateMultipartUploadResult{Bucket: s.name, Key: key, UploadID: uploadID}
	_, err := ossCall(ctx, func() (struct{}, error) {
		return struct{}{}, s.bucket.AbortMultipartUpload(imur)
	})
	if err != nil {
		return s.opErr("abort multipart upload", key, err)
	}
	return nil
}

type ossUpload struct {
	store *OSSStore
	imur  oss.InitiateMultipartUploadResult
}

func (u *ossUpload) ID() string { return u.imur.UploadID }

func (u *ossUpload) UploadPart(ctx context.Context, number int, data []byte) (Part, error) {
	// the sink reuses data once this returns
	body := bytes.Clone(data)
	part, err := ossCall(ctx, func() (oss.UploadPart, error) {
		return u.store.bucket.UploadPart(u.imur, bytes.NewReader(body), int64(len(body)), number)
	})
	if err != nil {
		return Part{}, u.store.opErr(fmt.Sprintf("upload part %d", number), u.imur.Key, err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag, Size: int64(len(data))}, nil
}

func (u *ossUpload) Complete(ctx context.Context, parts []Part) error {
	uploaded := make([]oss.UploadPart, 0, len(parts))
	for _, p := range parts {
		uploaded = append(uploaded, oss.UploadPart{PartNumber: p.Number, ETag: p.ETag})
	}
	_, err := ossCall(ctx, func() (oss.CompleteMultipartUploadResult, error) {
		return u.store.bucket.CompleteMultipartUpload(u.imur, uploaded)
	})
	if err != nil {
		return u.store.opErr("complete multipart upload", u.imur.Key, err)
	}
	return nil
}

func (u *ossUpload) Abort(ctx context.Context) error {
	_, err := ossCall(ctx, func() (struct{}, error) {
		return struct{}{}, u.store.bucket.AbortMultipartUpload(u.imur)
	})
	if err != nil {
		return u.store.opErr("abort multipart upload", u.imur.Key, err)
	}
	return nil
}
