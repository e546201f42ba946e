// Package mocks holds hand-rolled, function-field fakes for the core's
// collaborator interfaces (struct of XxxFunc fields, methods that
// delegate to them) rather than a mocking framework.
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// Gateway is an in-memory store.Gateway fake backed by a map, used by
// every package above store in its tests so no test talks to a real
// cloud bucket.
type Gateway struct {
	mu      sync.RWMutex
	objects map[string][]byte
	scheme  string
	bucket  string

	// ListFunc etc. override the default in-memory behaviour when set,
	// letting tests inject specific failures (transient errors, conflicts).
	ListFunc   func(ctx context.Context, prefix string, recursive bool) ([]store.Object, error)
	HeadFunc   func(ctx context.Context, key string) (store.ObjectInfo, error)
	GetFunc    func(ctx context.Context, key string, rng *store.ByteRange) ([]byte, error)
	PutFunc    func(ctx context.Context, key string, body []byte, ifNoneMatch bool) error
	DeleteFunc func(ctx context.Context, key string) error
}

// NewGateway returns an empty in-memory Gateway fake for the given
// scheme/bucket (used to build absolute add.path URIs in tests).
func NewGateway(scheme, bucket string) *Gateway {
	return &Gateway{
		objects: make(map[string][]byte),
		scheme:  scheme,
		bucket:  bucket,
	}
}

// Seed inserts an object directly, bypassing Put, for test setup.
func (g *Gateway) Seed(key string, body []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = body
}

func (g *Gateway) Scheme() string { return g.scheme }
func (g *Gateway) Bucket() string { return g.bucket }

func (g *Gateway) List(ctx context.Context, prefix string, recursive bool) ([]store.Object, error) {
	if g.ListFunc != nil {
		return g.ListFunc(ctx, prefix, recursive)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []store.Object
	for key, body := range g.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if !recursive {
			if idx := strings.Index(rest, "/"); idx >= 0 {
				child := prefix + rest[:idx+1]
				if _, ok := seen[child]; ok {
					continue
				}
				seen[child] = struct{}{}
				out = append(out, store.Object{Key: child})
				continue
			}
		}
		out = append(out, store.Object{Key: key, Size: int64(len(body))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (g *Gateway) Head(ctx context.Context, key string) (store.ObjectInfo, error) {
	if g.HeadFunc != nil {
		return g.HeadFunc(ctx, key)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	body, ok := g.objects[key]
	if !ok {
		return store.ObjectInfo{}, &model.StoreError{Kind: model.KindNotFound, Key: key}
	}
	return store.ObjectInfo{Size: int64(len(body))}, nil
}

func (g *Gateway) Get(ctx context.Context, key string, rng *store.ByteRange) ([]byte, error) {
	if g.GetFunc != nil {
		return g.GetFunc(ctx, key, rng)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	body, ok := g.objects[key]
	if !ok {
		return nil, &model.StoreError{Kind: model.KindNotFound, Key: key}
	}
	if rng == nil {
		return body, nil
	}
	end := rng.End
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return body[rng.Start:end], nil
}

func (g *Gateway) Put(ctx context.Context, key string, body []byte, ifNoneMatch bool) error {
	if g.PutFunc != nil {
		return g.PutFunc(ctx, key, body, ifNoneMatch)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if ifNoneMatch {
		if _, exists := g.objects[key]; exists {
			return &model.StoreError{Kind: model.KindConflict, Key: key}
		}
	}
	g.objects[key] = body
	return nil
}

func (g *Gateway) Delete(ctx context.Context, key string) error {
	if g.DeleteFunc != nil {
		return g.DeleteFunc(ctx, key)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, key)
	return nil
}

func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.objects[key]
	return ok, nil
}
