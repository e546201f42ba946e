package store

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// gcsGateway is the Google Cloud Storage backend.
type gcsGateway struct {
	bucket     *storage.BucketHandle
	bucketName string
	cap        int
}

// NewGCSGateway builds a Gateway backed by a GCS bucket.
func NewGCSGateway(ctx context.Context, creds Credentials, bucketName string, retryCap int, opts ...option.ClientOption) (Gateway, error) {
	if creds.GCPCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsFile(creds.GCPCredentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &gcsGateway{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		cap:        retryCap,
	}, nil
}

func (g *gcsGateway) Scheme() string { return "gs" }
func (g *gcsGateway) Bucket() string { return g.bucketName }

func (g *gcsGateway) List(ctx context.Context, prefix string, recursive bool) ([]Object, error) {
	query := &storage.Query{Prefix: prefix}
	if !recursive {
		query.Delimiter = "/"
	}
	_ = query.SetAttrSelection([]string{"Name", "Size"})

	var objects []Object
	err := withRetry(ctx, g.cap, func() error {
		objects = objects[:0]
		it := g.bucket.Objects(ctx, query)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return classifyGCSError(prefix, err)
			}
			if attrs.Prefix != "" {
				objects = append(objects, Object{Key: attrs.Prefix})
				continue
			}
			objects = append(objects, Object{Key: attrs.Name, Size: attrs.Size})
		}
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (g *gcsGateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := withRetry(ctx, g.cap, func() error {
		attrs, err := g.bucket.Object(key).Attrs(ctx)
		if err != nil {
			return classifyGCSError(key, err)
		}
		info = ObjectInfo{Size: attrs.Size, ETag: attrs.Etag}
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

func (g *gcsGateway) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	var body []byte
	err := withRetry(ctx, g.cap, func() error {
		var r *storage.Reader
		var err error
		if rng == nil {
			r, err = g.bucket.Object(key).NewReader(ctx)
		} else {
			r, err = g.bucket.Object(key).NewRangeReader(ctx, rng.Start, rng.End-rng.Start)
		}
		if err != nil {
			return classifyGCSError(key, err)
		}
		defer r.Close()
		body, err = io.ReadAll(r)
		if err != nil {
			return classifyGCSError(key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (g *gcsGateway) Put(ctx context.Context, key string, body []byte, ifNoneMatch bool) error {
	return withRetry(ctx, g.cap, func() error {
		obj := g.bucket.Object(key)
		if ifNoneMatch {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		}
		w := obj.NewWriter(ctx)
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return classifyGCSError(key, err)
		}
		err := w.Close()
		if err != nil {
			if ifNoneMatch && isPreconditionFailed(err) {
				return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
			}
			return classifyGCSError(key, err)
		}
		return nil
	})
}

func (g *gcsGateway) Delete(ctx context.Context, key string) error {
	return withRetry(ctx, g.cap, func() error {
		err := g.bucket.Object(key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return classifyGCSError(key, err)
		}
		return nil
	})
}

func (g *gcsGateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Head(ctx, key)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 412
	}
	return strings.Contains(err.Error(), "412")
}

func classifyGCSError(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, iterator.Done) {
		return &model.StoreError{Kind: model.KindNotFound, Key: key, Err: err}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 404:
			return &model.StoreError{Kind: model.KindNotFound, Key: key, Err: err}
		case 403, 401:
			return &model.StoreError{Kind: model.KindAccessDenied, Key: key, Err: err}
		case 412:
			return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
		}
	}
	return &model.StoreError{Kind: model.KindTransient, Key: key, Err: err}
}
