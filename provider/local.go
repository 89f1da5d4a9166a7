package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	_ ObjectStore   = (*LocalStore)(nil)
	_ UploadAborter = (*LocalStore)(nil)
)

// LocalStore implements ObjectStore on a posix-compliant local filesystem.
// Multipart uploads are staged in a hidden file next to the target and
// renamed into place on Complete.
type LocalStore struct {
	basePath string
	fileMode os.FileMode
}

// NewLocalStore creates a LocalStore rooted at basePath.
// If basePath is empty, keys are used as absolute or relative paths directly.
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{basePath: basePath, fileMode: 0644}
}

// WithFileMode sets the permission bits of written objects.
func (p *LocalStore) WithFileMode(mode os.FileMode) *LocalStore {
	p.fileMode = mode
	return p
}

func (p *LocalStore) resolve(key string) string {
	if p.basePath == "" {
		return filepath.Clean(key)
	}
	// keys can not climb out of the base directory
	return filepath.Join(p.basePath, filepath.Clean("/"+key))
}

func stagingPath(fullPath, uploadID string) string {
	return filepath.Join(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".upload-"+uploadID)
}

func (p *LocalStore) opErr(op, key string, err error) error {
	return &OpError{Backend: "file", Op: op, Key: key, Err: err}
}

func (p *LocalStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := p.resolve(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return p.opErr("put", key, err)
	}

	tmp := stagingPath(fullPath, uuid.NewString())
	if err := os.WriteFile(tmp, data, p.fileMode); err != nil {
		_ = os.Remove(tmp)
		return p.opErr("put", key, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return p.opErr("put", key, err)
	}
	return nil
}

func (p *LocalStore) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := p.resolve(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, p.opErr("create multipart upload", key, err)
	}

	id := uuid.NewString()
	staging := stagingPath(fullPath, id)
	file, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_EXCL, p.fileMode)
	if err != nil {
		return nil, p.opErr("create multipart upload", key, err)
	}

	return &localUpload{
		store:    p,
		key:      key,
		id:       id,
		fullPath: fullPath,
		staging:  staging,
		file:     file,
	}, nil
}

// AbortUpload removes the staging file of an upload left behind by another
// process.
func (p *LocalStore) AbortUpload(_ context.Context, key, uploadID string) error {
	if uploadID == "" || strings.ContainsAny(uploadID, `/\`) {
		return p.opErr("abort multipart upload", key, fmt.Errorf("invalid upload id %q", uploadID))
	}
	err := os.Remove(stagingPath(p.resolve(key), uploadID))
	if err != nil && !os.IsNotExist(err) {
		return p.opErr("abort multipart upload", key, err)
	}
	return nil
}

// localUpload appends parts to the staging file in order.
type localUpload struct {
	store    *LocalStore
	key      string
	id       string
	fullPath string
	staging  string

	mu   sync.Mutex
	file *os.File
	next int
}

func (u *localUpload) ID() string { return u.id }

func (u *localUpload) UploadPart(ctx context.Context, number int, data []byte) (Part, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.file == nil {
		return Part{}, u.store.opErr("upload part", u.key, os.ErrClosed)
	}
	if number != u.next+1 {
		return Part{}, u.store.opErr("upload part", u.key, fmt.Errorf("part %d out of order, expected %d", number, u.next+1))
	}
	if _, err := u.file.Write(data); err != nil {
		return Part{}, u.store.opErr(fmt.Sprintf("upload part %d", number), u.key, err)
	}
	u.next = number
	return Part{Number: number, ETag: fmt.Sprintf("%s-%d", u.id, number), Size: int64(len(data))}, nil
}

func (u *localUpload) Complete(ctx context.Context, parts []Part) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.file == nil {
		return u.store.opErr("complete multipart upload", u.key, os.ErrClosed)
	}
	if len(parts) != u.next {
		return u.store.opErr("complete multipart upload", u.key, fmt.Errorf("got %d parts, uploaded %d", len(parts), u.next))
	}

	err := u.file.Close()
	u.file = nil
	if err == nil {
		err = os.Rename(u.staging, u.fullPath)
	}
	if err != nil {
		_ = os.Remove(u.staging)
		return u.store.opErr("complete multipart upload", u.key, err)
	}
	return nil
}

func (u *localUpload) Abort(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.file != nil {
		_ = u.file.Close()
		u.file = nil
	}
	if err := os.Remove(u.staging); err != nil && !os.IsNotExist(err) {
		return u.store.opErr("abort multipart upload", u.key, err)
	}
	return nil
}
