package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"syscall"

	"github.com/franksops/cloudsave/location"
	"github.com/franksops/cloudsave/provider"
)

// fakeUpload records every call made against a multipart session.
type fakeUpload struct {
	mu        sync.Mutex
	parts     [][]byte
	completed []provider.Part
	done      bool
	aborted   bool

	failPart     error
	failComplete error
}

func (u *fakeUpload) ID() string { return "fake-upload" }

func (u *fakeUpload) UploadPart(_ context.Context, number int, data []byte) (provider.Part, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failPart != nil {
		return provider.Part{}, u.failPart
	}
	u.parts = append(u.parts, bytes.Clone(data))
	return provider.Part{Number: number, ETag: "e", Size: int64(len(data))}, nil
}

func (u *fakeUpload) Complete(_ context.Context, parts []provider.Part) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failComplete != nil {
		return u.failComplete
	}
	u.completed = parts
	u.done = true
	return nil
}

func (u *fakeUpload) Abort(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.aborted = true
	return nil
}

func (u *fakeUpload) object() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return bytes.Join(u.parts, nil)
}

// fakeStore is an ObjectStore handing out one fakeUpload.
type fakeStore struct {
	upload   *fakeUpload
	puts     map[string][]byte
	putTypes map[string]string
	opened   int
	failPut  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		upload:   &fakeUpload{},
		puts:     make(map[string][]byte),
		putTypes: make(map[string]string),
	}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, opts provider.PutOptions) error {
	if s.failPut != nil {
		return s.failPut
	}
	s.puts[key] = bytes.Clone(data)
	s.putTypes[key] = opts.ContentType
	return nil
}

func (s *fakeStore) NewMultipartUpload(context.Context, string, provider.PutOptions) (provider.MultipartUpload, error) {
	s.opened++
	return s.upload, nil
}

// countingResolver serves one store and counts lookups.
type countingResolver struct {
	store provider.ObjectStore
	calls int
}

func (r *countingResolver) Resolve(_ context.Context, dest *location.Destination) (provider.ObjectStore, string, error) {
	r.calls++
	return r.store, dest.Key, nil
}

// scriptedReader replays a fixed sequence of read results.
type scriptedReader struct {
	steps []readStep
	reads int
}

type readStep struct {
	data []byte
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	n := copy(p, step.data)
	return n, step.err
}

var errEINTR = syscall.EINTR

var errBackend = errors.New("503 Service Unavailable")

// chunkRecorder records the size of every write.
type chunkRecorder struct {
	bytes.Buffer
	writes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.Buffer.Write(p)
}
