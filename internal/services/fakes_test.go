package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/profilehub/apiserver/internal/store"
	"github.com/profilehub/apiserver/types"
)

// fakeUserRepo is an in-memory append-only record store.
type fakeUserRepo struct {
	mu      sync.Mutex
	records []types.User
}

func (r *fakeUserRepo) History(_ context.Context, email string) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var history []types.User
	for _, rec := range r.records {
		if rec.Email == email {
			history = append(history, rec)
		}
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].VersionStamp > history[j].VersionStamp
	})
	return history, nil
}

func (r *fakeUserRepo) Put(_ context.Context, user types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, user)
	return nil
}

func (r *fakeUserRepo) SetProfileImage(_ context.Context, email, versionStamp, imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.Email == email && rec.VersionStamp == versionStamp {
			r.records[i].ProfileImageURL = imageURL
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeObjects implements storage.ObjectStorage in memory.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
}

func (f *fakeObjects) EnsureBucket(context.Context) error { return nil }

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://upload.test/" + key, nil
}

func (f *fakeObjects) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (f *fakeObjects) Bucket() string { return "profile-images" }

// fakePublisher records published transcode jobs.
type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	channels []string
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, data)
	return "msg-1", nil
}
