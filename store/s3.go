package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// s3Gateway is the AWS S3 backend.
type s3Gateway struct {
	bucket string
	svc    *s3.S3
	cap    int
}

// NewS3Gateway builds a Gateway backed by an S3 (or S3-compatible) bucket.
func NewS3Gateway(creds Credentials, bucket string, retryCap int) (Gateway, error) {
	cfg := &aws.Config{
		Region: aws.String(creds.AWSRegion),
	}
	if creds.AWSAccessKeyID != "" {
		cfg.Credentials = credentialsFromStatic(creds)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not initialize AWS session: %w", err)
	}
	g := &s3Gateway{
		bucket: bucket,
		svc:    s3.New(sess),
		cap:    retryCap,
	}
	return g, nil
}

func (g *s3Gateway) Scheme() string { return "s3" }
func (g *s3Gateway) Bucket() string { return g.bucket }

func (g *s3Gateway) List(ctx context.Context, prefix string, recursive bool) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(prefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var objects []Object
	err := withRetry(ctx, g.cap, func() error {
		objects = objects[:0]
		pageErr := g.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				objects = append(objects, Object{Key: aws.StringValue(obj.Key), Size: aws.Int64Value(obj.Size)})
			}
			if !recursive {
				for _, cp := range page.CommonPrefixes {
					objects = append(objects, Object{Key: aws.StringValue(cp.Prefix)})
				}
			}
			return true
		})
		if pageErr != nil {
			return classifyS3Error(prefix, pageErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (g *s3Gateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := withRetry(ctx, g.cap, func() error {
		out, err := g.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classifyS3Error(key, err)
		}
		info = ObjectInfo{Size: aws.Int64Value(out.ContentLength), ETag: aws.StringValue(out.ETag)}
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

func (g *s3Gateway) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End-1))
	}

	var body []byte
	err := withRetry(ctx, g.cap, func() error {
		out, err := g.svc.GetObjectWithContext(ctx, input)
		if err != nil {
			return classifyS3Error(key, err)
		}
		defer out.Body.Close()
		body, err = readAll(out.Body)
		if err != nil {
			return classifyS3Error(key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Put writes body to key. AWS S3 proper does not honor If-None-Match on
// PutObject; only some S3-compatible backends (MinIO, Ceph) do. We send
// it anyway and, if the backend reports NotImplemented,
// UnsupportedArgument or PreconditionFailed, fall back to a single
// Head-then-Put check: an existing key is reported as a conflict, a
// missing one is written unconditionally. The check is not atomic: a
// key created by another writer between the Head and the Put is
// overwritten.
func (g *s3Gateway) Put(ctx context.Context, key string, body []byte, ifNoneMatch bool) error {
	return withRetry(ctx, g.cap, func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    aws.String(key),
			Body:   newReadSeeker(body),
		}
		if ifNoneMatch {
			input.IfNoneMatch = aws.String("*")
		}
		_, err := g.svc.PutObjectWithContext(ctx, input)
		if err == nil {
			return nil
		}
		if ifNoneMatch && isUnsupportedArgument(err) {
			exists, headErr := g.Exists(ctx, key)
			if headErr != nil {
				return headErr
			}
			if exists {
				return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
			}
			input.IfNoneMatch = nil
			input.Body = newReadSeeker(body)
			_, err = g.svc.PutObjectWithContext(ctx, input)
			if err != nil {
				return classifyS3Error(key, err)
			}
			return nil
		}
		return classifyS3Error(key, err)
	})
}

func (g *s3Gateway) Delete(ctx context.Context, key string) error {
	return withRetry(ctx, g.cap, func() error {
		_, err := g.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classifyS3Error(key, err)
		}
		return nil
	})
}

func (g *s3Gateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Head(ctx, key)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isUnsupportedArgument(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && (aerr.Code() == "NotImplemented" || aerr.Code() == "UnsupportedArgument" || aerr.Code() == "PreconditionFailed")
}

func classifyS3Error(key string, err error) error {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return &model.StoreError{Kind: model.KindTransient, Key: key, Err: err}
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return &model.StoreError{Kind: model.KindNotFound, Key: key, Err: err}
	case "AccessDenied", "Forbidden":
		return &model.StoreError{Kind: model.KindAccessDenied, Key: key, Err: err}
	case "PreconditionFailed":
		return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
	default:
		return &model.StoreError{Kind: model.KindTransient, Key: key, Err: err}
	}
}
