// Package store provides a uniform list/head/get/put/delete abstraction
// over the object stores that back a CDA export (source) and a Delta
// table (target), so the rest of the core never imports a cloud SDK
// directly.
package store

import "context"

// Object is one entry returned by a List call.
type Object struct {
	Key  string
	Size int64
}

// ObjectInfo is the result of a Head call.
type ObjectInfo struct {
	Size int64
	ETag string
}

// ByteRange requests a partial read; End is exclusive. A nil *ByteRange
// means "read the whole object".
type ByteRange struct {
	Start int64
	End   int64
}

// Gateway is the capability set every backend (S3, GCS, Azure Blob/DFS)
// implements identically. Role (source vs target) is a property of which
// Gateway instance the caller holds, not of the interface itself.
type Gateway interface {
	// List returns every object whose key starts with prefix. When
	// recursive is false, only immediate "directory" children are
	// returned (an object store has no real directories; backends
	// simulate this with a delimiter).
	List(ctx context.Context, prefix string, recursive bool) ([]Object, error)

	// Head returns size/etag for key without transferring its body.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// Get reads key, optionally restricted to rng.
	Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error)

	// Put writes body to key. When ifNoneMatch is true, the write only
	// succeeds if key does not already exist; a losing race surfaces as
	// a *model.StoreError with Kind == model.KindConflict.
	Put(ctx context.Context, key string, body []byte, ifNoneMatch bool) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Scheme returns the URI scheme ("s3", "gs", "abfs", ...) this
	// Gateway's objects are addressed with, so callers can build
	// absolute URIs back into this store.
	Scheme() string

	// Bucket returns the bucket/container name this Gateway is bound to,
	// so callers can build absolute URIs.
	Bucket() string
}

// AbsoluteURI builds the absolute URI for key as seen from gw, in the
// form <scheme>://<bucket>/<key>. This is what the Delta Log Writer
// writes into add.path so the shallow clone points back at the source
// store.
func AbsoluteURI(gw Gateway, key string) string {
	return gw.Scheme() + "://" + gw.Bucket() + "/" + key
}
