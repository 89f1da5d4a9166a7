package provider

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	_ ObjectStore   = (*MemoryStore)(nil)
	_ UploadAborter = (*MemoryStore)(nil)
)

// MemoryBuckets is a process-local set of named MemoryStores.
type MemoryBuckets struct {
	mu      sync.Mutex
	buckets map[string]*MemoryStore
}

func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{buckets: make(map[string]*MemoryStore)}
}

// Bucket returns the store for name, creating it on first use.
func (b *MemoryBuckets) Bucket(name string) *MemoryStore {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.buckets[name]
	if !ok {
		s = NewMemoryStore()
		b.buckets[name] = s
	}
	return s
}

// Object is a stored object and the attributes it was written with.
type Object struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// MemoryStore keeps objects in memory. Multipart objects become visible
// only once their upload completes.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object
	uploads map[string]*memoryUpload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		uploads: make(map[string]*memoryUpload),
	}
}

// Object returns a copy of the object at key.
func (m *MemoryStore) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, false
	}
	obj.Data = bytes.Clone(obj.Data)
	return obj, true
}

// Keys lists stored object keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.objects))
}

// PendingUploads lists the IDs of uploads neither completed nor aborted.
func (m *MemoryStore) PendingUploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.uploads))
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{
		Data:        bytes.Clone(data),
		ContentType: opts.ContentType,
		Metadata:    maps.Clone(opts.Metadata),
	}
	return nil
}

func (m *MemoryStore) NewMultipartUpload(ctx context.Context, key string, opts PutOptions) (MultipartUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := &memoryUpload{
		store: m,
		key:   key,
		id:    uuid.NewString(),
		opts:  opts,
		parts: make(map[int][]byte),
	}
	m.mu.Lock()
	m.uploads[u.id] = u
	m.mu.Unlock()
	return u, nil
}

func (m *MemoryStore) AbortUpload(_ context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok || u.key != key {
		return &OpError{Backend: "memory", Op: "abort multipart upload", Key: key, Err: fmt.Errorf("no such upload %q", uploadID)}
	}
	delete(m.uploads, uploadID)
	return nil
}

type memoryUpload struct {
	store *MemoryStore
	key   string
	id    string
	opts  PutOptions
	parts map[int][]byte
}

func (u *memoryUpload) ID() string { return u.id }

func (u *memoryUpload) live() bool {
	_, ok := u.store.uploads[u.id]
	return ok
}

func (u *memoryUpload) UploadPart(ctx context.Context, number int, data []byte) (Part, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if !u.live() {
		return Part{}, fmt.Errorf("upload %s is closed", u.id)
	}
	u.parts[number] = bytes.Clone(data)
	return Part{Number: number, ETag: fmt.Sprintf("%x", len(u.parts)), Size: int64(len(data))}, nil
}

func (u *memoryUpload) Complete(ctx context.Context, parts []Part) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if !u.live() {
		return fmt.Errorf("upload %s is closed", u.id)
	}
	if len(parts) == 0 {
		return fmt.Errorf("upload %s: at least one part is required", u.id)
	}

	var buf bytes.Buffer
	for _, p := range parts {
		data, ok := u.parts[p.Number]
		if !ok {
			return fmt.Errorf("upload %s: part %d was never uploaded", u.id, p.Number)
		}
		buf.Write(data)
	}
	u.store.objects[u.key] = Object{
		Data:        buf.Bytes(),
		ContentType: u.opts.ContentType,
		Metadata:    maps.Clone(u.opts.Metadata),
	}
	delete(u.store.uploads, u.id)
	return nil
}

func (u *memoryUpload) Abort(ctx context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	delete(u.store.uploads, u.id)
	return nil
}
